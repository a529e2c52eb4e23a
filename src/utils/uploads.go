package utils

import (
	"context"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"Postboard/src/core/config"
	"Postboard/src/core/database"

	storage_go "github.com/supabase-community/storage-go"
)

// StoredFile describes an uploaded file.
type StoredFile struct {
	// Path identifies the file inside the backing storage.
	Path string
	// URL is what clients use to fetch it.
	URL string
}

// Uploader persists multipart files.
type Uploader interface {
	Upload(ctx context.Context, file *multipart.FileHeader) (StoredFile, error)
	Delete(ctx context.Context, path string) error
}

// NewUploader returns the uploader selected by STORAGE_DRIVER.
func NewUploader(s config.Settings) (Uploader, error) {
	switch s.StorageDriver {
	case "local", "":
		return NewLocalUploader(s.UploadDir, "/images"), nil
	case "supabase":
		client, bucket, err := database.SupabaseStorage(s)
		if err != nil {
			return nil, err
		}
		return &SupabaseUploader{Client: client, Bucket: bucket}, nil
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", s.StorageDriver)
	}
}

// storedName gives every upload a unique, path-safe name.
func storedName(filename string) string {
	base := strings.ReplaceAll(filepath.Base(filename), " ", "_")
	return fmt.Sprintf("%d_%s", time.Now().UnixNano(), base)
}

// DeleteAll removes the given files, logging failures.
func DeleteAll(ctx context.Context, u Uploader, files []StoredFile) {
	for _, f := range files {
		if err := u.Delete(ctx, f.Path); err != nil {
			log.Printf("[Uploads] Failed to remove %s: %v", f.Path, err)
		}
	}
}

// LocalUploader writes files into Dir and serves them under URLPrefix.
type LocalUploader struct {
	Dir       string
	URLPrefix string
}

func NewLocalUploader(dir, urlPrefix string) *LocalUploader {
	return &LocalUploader{Dir: dir, URLPrefix: strings.TrimSuffix(urlPrefix, "/")}
}

func (u *LocalUploader) Upload(_ context.Context, file *multipart.FileHeader) (StoredFile, error) {
	src, err := file.Open()
	if err != nil {
		return StoredFile{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(u.Dir, os.ModePerm); err != nil {
		return StoredFile{}, fmt.Errorf("create upload dir: %w", err)
	}

	name := storedName(file.Filename)
	dst, err := os.Create(filepath.Join(u.Dir, name))
	if err != nil {
		return StoredFile{}, fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return StoredFile{}, fmt.Errorf("write file: %w", err)
	}

	return StoredFile{Path: name, URL: u.URLPrefix + "/" + name}, nil
}

func (u *LocalUploader) Delete(_ context.Context, path string) error {
	err := os.Remove(filepath.Join(u.Dir, filepath.Base(path)))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// SupabaseUploader stores files in a Supabase storage bucket.
type SupabaseUploader struct {
	Client *storage_go.Client
	Bucket string
	// Folder is prepended to every object path.
	Folder string
}

func (u *SupabaseUploader) Upload(_ context.Context, file *multipart.FileHeader) (StoredFile, error) {
	fileBody, err := file.Open()
	if err != nil {
		return StoredFile{}, err
	}
	defer fileBody.Close()

	// Detect content type from the first bytes, then rewind
	head := make([]byte, 512)
	n, err := io.ReadFull(fileBody, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return StoredFile{}, err
	}
	contentType := http.DetectContentType(head[:n])
	if _, err := fileBody.Seek(0, io.SeekStart); err != nil {
		return StoredFile{}, err
	}

	folderPath := storedName(file.Filename)
	if u.Folder != "" {
		folderPath = strings.TrimSuffix(u.Folder, "/") + "/" + folderPath
	}

	_, err = u.Client.UploadFile(u.Bucket, folderPath, fileBody, storage_go.FileOptions{ContentType: &contentType})
	if err != nil {
		return StoredFile{}, fmt.Errorf("upload to supabase: %w", err)
	}

	response := u.Client.GetPublicUrl(u.Bucket, folderPath)
	return StoredFile{Path: folderPath, URL: response.SignedURL}, nil
}

func (u *SupabaseUploader) Delete(_ context.Context, path string) error {
	_, err := u.Client.RemoveFile(u.Bucket, []string{path})
	return err
}
