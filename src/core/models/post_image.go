package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PostImage records an uploaded file that belongs to a post.
type PostImage struct {
	ID          uuid.UUID `gorm:"column:id;type:char(36);primaryKey" json:"id"`
	PostID      uuid.UUID `gorm:"column:post_id;type:char(36);not null;index" json:"post_id"`
	URL         string    `gorm:"column:url;type:text;not null" json:"url"`
	StoragePath string    `gorm:"column:storage_path;type:text;not null" json:"-"`
	CreatedAt   time.Time `gorm:"column:created_at;not null" json:"created_at"`
}

func (PostImage) TableName() string {
	return "post_images"
}

func (i *PostImage) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
