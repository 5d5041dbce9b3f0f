// Package localstore persists an owner's note collection and sync ledger on
// the client, addressed by owner identity.
package localstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errMissingDatabase = errors.New("localstore: database handle is required")

// KeyValueStore is the durable string store the note and ledger stores build on.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string) error
}

// Entry is one persisted key-value pair.
type Entry struct {
	Key             string `gorm:"column:entry_key;primaryKey;size:255;not null"`
	Value           string `gorm:"column:entry_value;type:text;not null"`
	UpdatedAtMillis int64  `gorm:"column:updated_at_ms;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Entry) TableName() string {
	return "local_entries"
}

// GormKeyValueStore keeps entries in a SQLite table through GORM. Each Set
// replaces the whole value for its key.
type GormKeyValueStore struct {
	db    *gorm.DB
	clock func() time.Time
}

// NewGormKeyValueStore constructs a store over an already migrated database.
func NewGormKeyValueStore(db *gorm.DB, clock func() time.Time) (*GormKeyValueStore, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	if clock == nil {
		clock = time.Now
	}
	return &GormKeyValueStore{db: db, clock: clock}, nil
}

// Get returns the value for key and whether it exists.
func (s *GormKeyValueStore) Get(ctx context.Context, key string) (string, bool, error) {
	var entry Entry
	err := s.db.WithContext(ctx).Where("entry_key = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return entry.Value, true, nil
}

// Set upserts the value for key.
func (s *GormKeyValueStore) Set(ctx context.Context, key string, value string) error {
	entry := Entry{
		Key:             key,
		Value:           value,
		UpdatedAtMillis: s.clock().UTC().UnixMilli(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "entry_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"entry_value", "updated_at_ms"}),
	}).Create(&entry).Error
}
