// Package ledger keeps the persistent set of destinations known to be
// permanently undeliverable, and the payments blacklist, and filters them
// out of a run before anything is sent.
//
// The ledger is read at the start of a run and written back once. There is
// no file locking; two runs sharing one ledger path may lose updates.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-outreach-batch/internal/domain"
)

// Store persists an ordered list of destinations.
type Store interface {
	Load(ctx context.Context) ([]string, error)
	Save(ctx context.Context, items []string) error
}

// Open picks the store for path: a SQLite database when path ends in
// ".db", a JSON file otherwise. The returned close func is never nil.
func Open(path string) (Store, func() error, error) {
	if strings.EqualFold(filepath.Ext(path), ".db") {
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, func() error { return nil }, err
		}
		return s, s.Close, nil
	}
	return &FileStore{Path: path}, func() error { return nil }, nil
}

// ---- JSON file ----

// FileStore keeps the list as a JSON array of strings. A missing file is
// an empty list.
type FileStore struct {
	Path string
}

// Load reads the list.
func (s *FileStore) Load(_ context.Context) ([]string, error) {
	b, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []string
	if len(strings.TrimSpace(string(b))) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(b, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// Save replaces the file contents through a temp file and rename.
func (s *FileStore) Save(_ context.Context, items []string) error {
	if items == nil {
		items = []string{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".ledger-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

// ---- SQLite ----

// SQLiteStore keeps the list in a bad_recipients table.
type SQLiteStore struct {
	DB *gorm.DB
}

// OpenSQLite opens (or creates) the ledger database, applies PRAGMAs,
// installs the tracing plugin and migrates the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	// Fail early if the parent directory does not exist.
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Single writer
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	}

	if err := db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&domain.BadRecipient{}); err != nil {
		return nil, err
	}
	return &SQLiteStore{DB: db}, nil
}

// Load returns destinations in insertion order.
func (s *SQLiteStore) Load(ctx context.Context) ([]string, error) {
	var rows []domain.BadRecipient
	if err := s.DB.WithContext(ctx).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Destination
	}
	return out, nil
}

// Save replaces the table contents with items, keeping the first-seen time
// of destinations already present.
func (s *SQLiteStore) Save(ctx context.Context, items []string) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []domain.BadRecipient
		if err := tx.Find(&existing).Error; err != nil {
			return err
		}
		created := make(map[string]time.Time, len(existing))
		for _, e := range existing {
			created[e.Destination] = e.CreatedAt
		}

		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&domain.BadRecipient{}).Error; err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}

		now := time.Now().UTC()
		rows := make([]domain.BadRecipient, len(items))
		for i, d := range items {
			at, ok := created[d]
			if !ok {
				at = now
			}
			rows[i] = domain.BadRecipient{Destination: d, Position: i, CreatedAt: at}
		}
		return tx.CreateInBatches(rows, 200).Error
	})
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
