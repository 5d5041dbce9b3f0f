package database

import (
	"fmt"

	"github.com/MarcoPoloResearchLab/notesync/internal/localstore"
	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Schema names the tables and one-shot migrations of one database flavour.
type Schema struct {
	name       string
	models     []any
	migrations []migrationDefinition
}

// Name identifies the schema in logs.
func (s Schema) Name() string {
	return s.name
}

var (
	// ServerSchema backs the notes API document store.
	ServerSchema = Schema{
		name:       "server",
		models:     []any{&notes.StoredNote{}},
		migrations: []migrationDefinition{{name: migrationBackfillNoteTags, apply: backfillNoteTags}},
	}
	// ClientSchema backs the local cache of the sync client.
	ClientSchema = Schema{
		name:       "client",
		models:     []any{&localstore.Entry{}},
		migrations: []migrationDefinition{{name: migrationDropGlobalSyncStatus, apply: dropGlobalSyncStatus}},
	}
)

// OpenSQLite establishes a SQLite connection and migrates the schema.
func OpenSQLite(path string, logger *zap.Logger, schema Schema) (*gorm.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	models := append([]any{&migrationRecord{}}, schema.models...)
	if err := db.AutoMigrate(models...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger, schema.migrations); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("path", path), zap.String("schema", schema.name))
	}

	return db, nil
}
