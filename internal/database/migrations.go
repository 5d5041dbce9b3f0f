package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/notesync/internal/localstore"
	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationBackfillNoteTags     = "2026-09-14_backfill_note_tags"
	migrationDropGlobalSyncStatus = "2026-09-14_drop_global_sync_status"

	legacyGlobalLedgerKey = "sync_status"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger, migrations []migrationDefinition) error {
	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// Rows written before tags were mandatory carry NULL or "null".
func backfillNoteTags(db *gorm.DB) error {
	return db.Model(&notes.StoredNote{}).
		Where("tags_json IS NULL OR tags_json = '' OR tags_json = 'null'").
		Update("tags_json", "[]").Error
}

// Ledgers used to live under one key shared by every owner; they are now kept
// per owner and the shared entry is meaningless.
func dropGlobalSyncStatus(db *gorm.DB) error {
	return db.Where("entry_key = ?", legacyGlobalLedgerKey).Delete(&localstore.Entry{}).Error
}
