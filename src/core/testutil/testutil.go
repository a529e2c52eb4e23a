// Package testutil builds throwaway databases for handler tests.
package testutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"Postboard/src/core/config"
	"Postboard/src/core/database"
	"Postboard/src/core/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NewDB opens a migrated SQLite database that lives for the duration of the test.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_busy_timeout=5000"
	db, err := database.Open(context.Background(), config.Settings{
		DBDriver:   database.DriverSQLite,
		DBDSN:      dsn,
		DBLogLevel: "silent",
	})
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := database.Migrate(db, database.DriverSQLite); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}

	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

// CreateUser inserts a user with the given nickname.
func CreateUser(t *testing.T, db *gorm.DB, nick string) models.User {
	t.Helper()

	u := models.User{NickName: nick, Email: nick + "@example.org", Password: "x"}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

// CreatePost inserts a post owned by userID. Posts created in sequence get
// strictly increasing creation times.
func CreatePost(t *testing.T, db *gorm.DB, userID uuid.UUID, description string) models.Post {
	t.Helper()

	p := models.Post{UserID: userID, Description: description}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("create post: %v", err)
	}
	time.Sleep(2 * time.Millisecond)
	return p
}

// CreateTag inserts a tag with an already normalized name.
func CreateTag(t *testing.T, db *gorm.DB, name string) models.Tag {
	t.Helper()

	tag := models.Tag{Name: name}
	if err := db.Create(&tag).Error; err != nil {
		t.Fatalf("create tag: %v", err)
	}
	return tag
}

// QueryCounter counts the statements gorm runs against db, reads and writes.
type QueryCounter struct {
	n int
}

func (c *QueryCounter) Count() int { return c.n }

func (c *QueryCounter) Reset() { c.n = 0 }

// CountQueries registers callbacks on db that count every statement.
func CountQueries(t *testing.T, db *gorm.DB) *QueryCounter {
	t.Helper()

	c := &QueryCounter{}
	count := func(*gorm.DB) { c.n++ }
	cb := db.Callback()
	errs := []error{
		cb.Query().Before("gorm:query").Register("testutil:count_query", count),
		cb.Row().Before("gorm:row").Register("testutil:count_row", count),
		cb.Raw().Before("gorm:raw").Register("testutil:count_raw", count),
		cb.Create().Before("gorm:create").Register("testutil:count_create", count),
		cb.Update().Before("gorm:update").Register("testutil:count_update", count),
		cb.Delete().Before("gorm:delete").Register("testutil:count_delete", count),
	}
	for _, err := range errs {
		if err != nil {
			t.Fatalf("register statement counter: %v", err)
		}
	}
	return c
}
