// Package ledger tracks note mutations that could not be propagated to the
// remote store, together with the time of the last full reconciliation.
package ledger

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
)

// Kind enumerates the pending operation queues.
type Kind string

const (
	// KindCreate queues notes whose remote creation failed.
	KindCreate Kind = "create"
	// KindUpdate queues notes whose remote update failed.
	KindUpdate Kind = "update"
	// KindDelete queues notes whose remote deletion failed.
	KindDelete Kind = "delete"
)

var (
	// ErrCrossSetMembership indicates an identifier is already pending under another kind.
	ErrCrossSetMembership = errors.New("ledger: identifier already pending under another kind")
	// ErrUnknownKind indicates an unsupported pending operation kind.
	ErrUnknownKind = errors.New("ledger: unknown kind")
	// ErrEmptyNoteID indicates an empty identifier was recorded.
	ErrEmptyNoteID = errors.New("ledger: empty note id")
)

// Kinds lists every pending queue in a stable order.
var Kinds = []Kind{KindCreate, KindUpdate, KindDelete}

// PendingChanges holds the identifiers awaiting remote propagation per kind.
type PendingChanges struct {
	Create []notes.NoteID `json:"create"`
	Update []notes.NoteID `json:"update"`
	Delete []notes.NoteID `json:"delete"`
}

// Ledger is the per-owner sync bookkeeping record. LastSyncedAt is unix
// milliseconds, zero when the owner was never synchronized.
type Ledger struct {
	LastSyncedAt   int64          `json:"lastSyncedAt"`
	PendingChanges PendingChanges `json:"pendingChanges"`
}

// New returns an empty ledger.
func New() Ledger {
	return Ledger{
		PendingChanges: PendingChanges{
			Create: []notes.NoteID{},
			Update: []notes.NoteID{},
			Delete: []notes.NoteID{},
		},
	}
}

// Normalize replaces nil queues with empty ones so the serialized form is stable.
func (l *Ledger) Normalize() {
	if l.PendingChanges.Create == nil {
		l.PendingChanges.Create = []notes.NoteID{}
	}
	if l.PendingChanges.Update == nil {
		l.PendingChanges.Update = []notes.NoteID{}
	}
	if l.PendingChanges.Delete == nil {
		l.PendingChanges.Delete = []notes.NoteID{}
	}
}

// Pending returns a copy of the queue for kind.
func (l Ledger) Pending(kind Kind) []notes.NoteID {
	queue := l.queue(kind)
	if queue == nil {
		return []notes.NoteID{}
	}
	return slices.Clone(*queue)
}

// Contains reports whether the identifier is pending under kind.
func (l Ledger) Contains(kind Kind, id notes.NoteID) bool {
	queue := l.queue(kind)
	return queue != nil && slices.Contains(*queue, id)
}

// KindOf returns the kind under which the identifier is pending, if any.
func (l Ledger) KindOf(id notes.NoteID) (Kind, bool) {
	for _, kind := range Kinds {
		if l.Contains(kind, id) {
			return kind, true
		}
	}
	return "", false
}

// IsEmpty reports whether nothing is pending.
func (l Ledger) IsEmpty() bool {
	return len(l.PendingChanges.Create) == 0 &&
		len(l.PendingChanges.Update) == 0 &&
		len(l.PendingChanges.Delete) == 0
}

// Record adds the identifier to the kind's queue and reports whether the
// ledger changed. Recording an already pending identifier is a no-op.
//
// An identifier lives in at most one queue. A delete supersedes a pending
// update (the identifier moves) and cancels a pending create (the remote never
// saw the note). Any other collision returns ErrCrossSetMembership and leaves
// the ledger untouched.
func (l *Ledger) Record(kind Kind, id notes.NoteID) (bool, error) {
	if id == "" {
		return false, ErrEmptyNoteID
	}
	queue := l.queue(kind)
	if queue == nil {
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	if slices.Contains(*queue, id) {
		return false, nil
	}

	existing, pending := l.KindOf(id)
	if pending {
		switch {
		case kind == KindDelete && existing == KindUpdate:
			l.remove(KindUpdate, id)
		case kind == KindDelete && existing == KindCreate:
			l.remove(KindCreate, id)
			return true, nil
		default:
			return false, fmt.Errorf("%w: %s pending as %s, refused as %s", ErrCrossSetMembership, id, existing, kind)
		}
	}

	*queue = append(*queue, id)
	return true, nil
}

// Reset empties every queue and stamps the sync time.
func (l *Ledger) Reset(syncedAt time.Time) {
	l.LastSyncedAt = syncedAt.UnixMilli()
	l.PendingChanges = New().PendingChanges
}

func (l *Ledger) remove(kind Kind, id notes.NoteID) {
	queue := l.queue(kind)
	if queue == nil {
		return
	}
	*queue = slices.DeleteFunc(*queue, func(candidate notes.NoteID) bool {
		return candidate == id
	})
}

func (l *Ledger) queue(kind Kind) *[]notes.NoteID {
	switch kind {
	case KindCreate:
		return &l.PendingChanges.Create
	case KindUpdate:
		return &l.PendingChanges.Update
	case KindDelete:
		return &l.PendingChanges.Delete
	default:
		return nil
	}
}
