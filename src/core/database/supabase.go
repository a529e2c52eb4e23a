package database

import (
	"errors"

	"Postboard/src/core/config"

	storage_go "github.com/supabase-community/storage-go"
)

// SupabaseStorage initializes the storage client and bucket name
func SupabaseStorage(s config.Settings) (*storage_go.Client, string, error) {
	if s.SupabaseURL == "" || s.SupabaseKey == "" || s.BucketName == "" {
		return nil, "", errors.New("missing SUPABASE_URL, SUPABASE_KEY, or BUCKET_NAME in environment variables")
	}

	storageClient := storage_go.NewClient(s.SupabaseURL+"/storage/v1", s.SupabaseKey, nil)
	return storageClient, s.BucketName, nil
}
