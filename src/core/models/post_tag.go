package models

import (
	"time"

	"github.com/google/uuid"
)

// PostTag links one post and one tag. Both directions of the association are
// read from this row.
type PostTag struct {
	PostID    uuid.UUID `gorm:"column:post_id;type:char(36);primaryKey"`
	TagID     uuid.UUID `gorm:"column:tag_id;type:char(36);primaryKey;index"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (PostTag) TableName() string {
	return "post_tags"
}
