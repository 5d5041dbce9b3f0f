package localstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MarcoPoloResearchLab/notesync/internal/ledger"
	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
)

const ledgerKeyPrefix = "sync_status:"

// LedgerStore persists one sync ledger per owner.
type LedgerStore struct {
	kv KeyValueStore
}

// NewLedgerStore constructs a LedgerStore.
func NewLedgerStore(kv KeyValueStore) (*LedgerStore, error) {
	if kv == nil {
		return nil, errMissingKeyValueStore
	}
	return &LedgerStore{kv: kv}, nil
}

// Load returns the owner's ledger, persisting a fresh empty one on first access.
func (s *LedgerStore) Load(ctx context.Context, owner notes.UserID) (ledger.Ledger, error) {
	raw, found, err := s.kv.Get(ctx, ledgerKey(owner))
	if err != nil {
		return ledger.Ledger{}, fmt.Errorf("localstore: read ledger: %w", err)
	}
	if !found {
		fresh := ledger.New()
		if err := s.Save(ctx, owner, fresh); err != nil {
			return ledger.Ledger{}, err
		}
		return fresh, nil
	}

	var stored ledger.Ledger
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return ledger.Ledger{}, fmt.Errorf("localstore: decode ledger: %w", err)
	}
	stored.Normalize()
	return stored, nil
}

// Save replaces the owner's ledger.
func (s *LedgerStore) Save(ctx context.Context, owner notes.UserID, entry ledger.Ledger) error {
	entry.Normalize()
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("localstore: encode ledger: %w", err)
	}
	if err := s.kv.Set(ctx, ledgerKey(owner), string(encoded)); err != nil {
		return fmt.Errorf("localstore: save ledger: %w", err)
	}
	return nil
}

func ledgerKey(owner notes.UserID) string {
	return ledgerKeyPrefix + owner.String()
}
