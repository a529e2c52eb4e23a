// Package taglinks maintains the post-tag association. Every function runs on
// the *gorm.DB it is given, so callers can compose several of them in one
// transaction.
package taglinks

import (
	"errors"
	"fmt"
	"time"

	"Postboard/src/core/models"
	"Postboard/src/utils"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagSummary is the tag shape embedded in post responses.
type TagSummary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// FindOrCreate returns the tag called name (normalized), creating it when it
// does not exist yet. created reports whether a new row was inserted.
func FindOrCreate(tx *gorm.DB, name string) (tag models.Tag, created bool, err error) {
	name = utils.NormalizeTag(name)
	if name == "" {
		return models.Tag{}, false, errors.New("empty tag name")
	}

	err = tx.Where("name = ?", name).First(&tag).Error
	if err == nil {
		return tag, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.Tag{}, false, fmt.Errorf("find tag %q: %w", name, err)
	}

	return insertTag(tx, name)
}

// insertTag creates the tag unless a concurrent writer got there first, in
// which case the winner's row is returned.
func insertTag(tx *gorm.DB, name string) (models.Tag, bool, error) {
	tag := models.Tag{Name: name}
	res := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&tag)
	if res.Error != nil {
		return models.Tag{}, false, fmt.Errorf("create tag %q: %w", name, res.Error)
	}
	if res.RowsAffected == 1 {
		return tag, true, nil
	}

	var existing models.Tag
	if err := tx.Where("name = ?", name).First(&existing).Error; err != nil {
		return models.Tag{}, false, fmt.Errorf("find tag %q: %w", name, err)
	}
	return existing, false, nil
}

// Link associates a post and a tag. Linking an existing pair is a no-op.
func Link(tx *gorm.DB, postID, tagID uuid.UUID) error {
	link := models.PostTag{PostID: postID, TagID: tagID, CreatedAt: time.Now()}
	err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&link).Error
	if err != nil {
		return fmt.Errorf("link post %s to tag %s: %w", postID, tagID, err)
	}
	return nil
}

// Unlink removes the association between a post and a tag, if any.
func Unlink(tx *gorm.DB, postID, tagID uuid.UUID) error {
	err := tx.Where("post_id = ? AND tag_id = ?", postID, tagID).Delete(&models.PostTag{}).Error
	if err != nil {
		return fmt.Errorf("unlink post %s from tag %s: %w", postID, tagID, err)
	}
	return nil
}

// UnlinkPost removes every association of a post.
func UnlinkPost(tx *gorm.DB, postID uuid.UUID) error {
	return tx.Where("post_id = ?", postID).Delete(&models.PostTag{}).Error
}

// UnlinkTag removes every association of a tag.
func UnlinkTag(tx *gorm.DB, tagID uuid.UUID) error {
	return tx.Where("tag_id = ?", tagID).Delete(&models.PostTag{}).Error
}

// PostIDsForTag lists the posts carrying a tag, oldest link first.
func PostIDsForTag(db *gorm.DB, tagID uuid.UUID) ([]uuid.UUID, error) {
	byTag, err := PostIDsByTag(db, []uuid.UUID{tagID})
	if err != nil {
		return nil, err
	}
	return byTag[tagID], nil
}

// PostIDsByTag lists the posts of each tag in tagIDs. A nil tagIDs means every tag.
func PostIDsByTag(db *gorm.DB, tagIDs []uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	var links []models.PostTag
	q := db.Model(&models.PostTag{}).Order("created_at ASC").Order("post_id ASC")
	if tagIDs != nil {
		if len(tagIDs) == 0 {
			return map[uuid.UUID][]uuid.UUID{}, nil
		}
		q = q.Where("tag_id IN ?", tagIDs)
	}
	if err := q.Find(&links).Error; err != nil {
		return nil, fmt.Errorf("load post tags: %w", err)
	}

	byTag := make(map[uuid.UUID][]uuid.UUID)
	for _, l := range links {
		byTag[l.TagID] = append(byTag[l.TagID], l.PostID)
	}
	return byTag, nil
}

// TagsForPosts resolves the tags of each post in postIDs, in link order.
func TagsForPosts(db *gorm.DB, postIDs []uuid.UUID) (map[uuid.UUID][]TagSummary, error) {
	byPost := make(map[uuid.UUID][]TagSummary)
	if len(postIDs) == 0 {
		return byPost, nil
	}

	var rows []struct {
		PostID uuid.UUID `gorm:"column:post_id"`
		ID     uuid.UUID `gorm:"column:id"`
		Name   string    `gorm:"column:name"`
	}
	err := db.Table("post_tags").
		Joins("JOIN tags ON post_tags.tag_id = tags.id").
		Where("post_tags.post_id IN ?", postIDs).
		Select("post_tags.post_id, tags.id, tags.name").
		Order("post_tags.created_at ASC").
		Order("tags.name ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load tags for posts: %w", err)
	}

	for _, r := range rows {
		byPost[r.PostID] = append(byPost[r.PostID], TagSummary{ID: r.ID, Name: r.Name})
	}
	return byPost, nil
}
