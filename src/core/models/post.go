package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Post is a user-authored content record. Tags, images and comments are kept
// in their own tables and assembled into responses by the posts module.
type Post struct {
	ID          uuid.UUID `gorm:"column:id;type:char(36);primaryKey" json:"id"`
	UserID      uuid.UUID `gorm:"column:user_id;type:char(36);not null;index" json:"user_id"`
	Description string    `gorm:"column:description;type:text;not null" json:"description"`
	CreatedAt   time.Time `gorm:"column:created_at;not null;index" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null" json:"updated_at"`
}

func (Post) TableName() string {
	return "posts"
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
