// Package gormdoc persists the ledger document as a single JSON row in a
// relational database (sqlite or postgres), selected by connection string.
package gormdoc

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const documentName = "post_it_ledger"

// Document is the stored row.
type Document struct {
	Name      string         `gorm:"primaryKey"`
	Payload   datatypes.JSON `gorm:"not null"`
	UpdatedAt time.Time
}

// TableName implements the GORM tabler interface.
func (Document) TableName() string { return "ledger_documents" }

// Backend reads and writes the document row.
type Backend struct {
	db *gorm.DB
}

// New returns a Backend over an open gorm handle, migrating the schema.
func New(db *gorm.DB) (*Backend, error) {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, fmt.Errorf("gormdoc migrate: %w", err)
	}
	return &Backend{db: db}, nil
}

// Open resolves the DSN scheme (postgres:// or a sqlite path), opens the
// database, and returns a migrated Backend with its cleanup function.
func Open(ctx context.Context, dsn string) (*Backend, func() error, error) {
	driver, sqlitePath, err := resolveDriver(dsn)
	if err != nil {
		return nil, nil, err
	}
	var db *gorm.DB
	switch driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(sqlitePath), &gorm.Config{})
	default:
		return nil, nil, fmt.Errorf("gormdoc: unsupported database scheme %q", driver)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("gormdoc open: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, nil, fmt.Errorf("gormdoc handle: %w", err)
	}
	backend, err := New(db.WithContext(ctx))
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, err
	}
	return backend, sqlDB.Close, nil
}

// Name identifies the backend in logs.
func (backend *Backend) Name() string {
	return "database"
}

// Load reads the document row, returning a zero-length document when the row
// does not exist yet.
func (backend *Backend) Load(ctx context.Context) ([]byte, error) {
	var document Document
	err := backend.db.WithContext(ctx).First(&document, "name = ?", documentName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gormdoc load: %w", err)
	}
	return []byte(document.Payload), nil
}

// Save upserts the document row.
func (backend *Backend) Save(ctx context.Context, payload []byte) error {
	document := Document{
		Name:      documentName,
		Payload:   datatypes.JSON(payload),
		UpdatedAt: time.Now().UTC(),
	}
	err := backend.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"payload", "updated_at"}),
		}).
		Create(&document).Error
	if err != nil {
		return fmt.Errorf("gormdoc save: %w", err)
	}
	return nil
}

func resolveDriver(dsn string) (string, string, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres", "", nil
	}
	if strings.HasPrefix(dsn, "sqlite://") {
		parsed, err := url.Parse(dsn)
		if err != nil {
			return "", "", fmt.Errorf("gormdoc parse sqlite url: %w", err)
		}
		path := parsed.Path
		if path == "" {
			path = parsed.Host
		}
		if path == "" || path == "/" {
			path = "postit.db"
		}
		sqlitePath, err := normalizeSQLitePath(path)
		return "sqlite", sqlitePath, err
	}
	// Treat everything else as a direct sqlite path.
	sqlitePath, err := normalizeSQLitePath(dsn)
	return "sqlite", sqlitePath, err
}

func normalizeSQLitePath(path string) (string, error) {
	if path == ":memory:" {
		return path, nil
	}
	if strings.HasPrefix(path, "/") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		return path, nil
	}
	joined := filepath.Join(".", path)
	if err := os.MkdirAll(filepath.Dir(joined), 0o755); err != nil {
		return "", err
	}
	return joined, nil
}
