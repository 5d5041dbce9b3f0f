package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
	"go.uber.org/zap"
)

const notesKeyPrefix = "notes:"

var errMissingKeyValueStore = errors.New("localstore: key-value store is required")

// NoteStore persists whole note collections per owner.
type NoteStore struct {
	kv     KeyValueStore
	logger *zap.Logger
}

// NewNoteStore constructs a NoteStore. A nil logger discards output.
func NewNoteStore(kv KeyValueStore, logger *zap.Logger) (*NoteStore, error) {
	if kv == nil {
		return nil, errMissingKeyValueStore
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NoteStore{kv: kv, logger: logger}, nil
}

// Load returns the owner's collection. Missing or unreadable data yields an
// empty collection; read failures are logged, never returned.
func (s *NoteStore) Load(ctx context.Context, owner notes.UserID) []notes.Note {
	raw, found, err := s.kv.Get(ctx, notesKey(owner))
	if err != nil {
		s.logger.Warn("local notes read failed", zap.String("user_id", owner.String()), zap.Error(err))
		return []notes.Note{}
	}
	if !found || raw == "" {
		return []notes.Note{}
	}

	var collection []notes.Note
	if err := json.Unmarshal([]byte(raw), &collection); err != nil {
		s.logger.Warn("local notes decode failed", zap.String("user_id", owner.String()), zap.Error(err))
		return []notes.Note{}
	}
	if collection == nil {
		return []notes.Note{}
	}
	for index := range collection {
		if collection[index].Tags == nil {
			collection[index].Tags = []string{}
		}
	}
	return collection
}

// Save replaces the owner's whole collection.
func (s *NoteStore) Save(ctx context.Context, owner notes.UserID, collection []notes.Note) error {
	if collection == nil {
		collection = []notes.Note{}
	}
	encoded, err := json.Marshal(collection)
	if err != nil {
		return fmt.Errorf("localstore: encode notes: %w", err)
	}
	if err := s.kv.Set(ctx, notesKey(owner), string(encoded)); err != nil {
		return fmt.Errorf("localstore: save notes: %w", err)
	}
	return nil
}

func notesKey(owner notes.UserID) string {
	return notesKeyPrefix + owner.String()
}
