// Package index builds a queryable secondary index over the session
// journal. The journal (internal/infrastructure/persistence, NDJSON) is
// the only source of truth; this index is a derived cache that can
// always be thrown away and rebuilt by replaying the journal from
// scratch. Nothing here is ever read before falling back to the journal.
package index

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/coderunner/agentcore/internal/infrastructure/config"
	"github.com/coderunner/agentcore/internal/infrastructure/persistence"
)

// SessionIndexModel is the row shape of the derived index: just enough
// to search sessions by id or time range without parsing the whole
// journal. It carries no conversation content.
type SessionIndexModel struct {
	ID           string `gorm:"primaryKey;size:64"`
	CreatedAt    time.Time
	UpdatedAt    time.Time `gorm:"index"`
	MessageCount int
}

func (SessionIndexModel) TableName() string {
	return "session_index"
}

// Index wraps a gorm.DB over the SessionIndexModel table.
type Index struct {
	db *gorm.DB
}

// Open connects to the configured database (sqlite or postgres, per
// cfg.Type, mirroring the teacher's dialector switch) and migrates the
// index schema.
func Open(cfg *config.DatabaseConfig) (*Index, error) {
	var dialector gorm.Dialector
	switch cfg.Type {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported index database type: %s", cfg.Type)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	if err := db.AutoMigrate(&SessionIndexModel{}); err != nil {
		return nil, fmt.Errorf("migrate index db: %w", err)
	}
	return &Index{db: db}, nil
}

// Upsert records or updates one session's index row. Called after every
// journal Append so the index stays current without a full rebuild.
func (idx *Index) Upsert(rec persistence.SessionRecord) error {
	row := SessionIndexModel{
		ID:           rec.ID,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
		MessageCount: len(rec.Messages),
	}
	return idx.db.Save(&row).Error
}

// Rebuild drops and repopulates the index by replaying every record in
// the journal. Safe to call at any time — the index is never the
// source of truth, so discarding and rebuilding it loses nothing.
func (idx *Index) Rebuild(j *persistence.Journal) error {
	records, err := j.All()
	if err != nil {
		return fmt.Errorf("read journal for rebuild: %w", err)
	}

	return idx.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("DELETE FROM session_index").Error; err != nil {
			return err
		}
		latest := make(map[string]persistence.SessionRecord, len(records))
		for _, rec := range records {
			latest[rec.ID] = rec
		}
		for _, rec := range latest {
			row := SessionIndexModel{
				ID:           rec.ID,
				CreatedAt:    rec.CreatedAt,
				UpdatedAt:    rec.UpdatedAt,
				MessageCount: len(rec.Messages),
			}
			if err := tx.Create(&row).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// BySince returns index rows updated at or after t, newest first —
// e.g. "sessions touched today".
func (idx *Index) BySince(t time.Time) ([]SessionIndexModel, error) {
	var rows []SessionIndexModel
	err := idx.db.Where("updated_at >= ?", t).Order("updated_at desc").Find(&rows).Error
	return rows, err
}

// ByID returns the index row for id, or nil if the session has never
// been indexed.
func (idx *Index) ByID(id string) (*SessionIndexModel, error) {
	var row SessionIndexModel
	err := idx.db.Where("id = ?", id).First(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}
