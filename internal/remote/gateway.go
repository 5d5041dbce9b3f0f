// Package remote defines the contract of the authoritative document store and
// an HTTP client for the notesync API.
package remote

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
)

// Gateway is the remote document store as consumed by the sync layer.
// ListNotes returns notes pinned first, then most recently updated first.
// Remote timestamps are assigned by the store.
type Gateway interface {
	CreateNote(ctx context.Context, note notes.Note) (notes.NoteID, error)
	ListNotes(ctx context.Context, owner notes.UserID) ([]notes.Note, error)
	UpdateNote(ctx context.Context, noteID notes.NoteID, patch notes.NotePatch) error
	DeleteNote(ctx context.Context, noteID notes.NoteID) error
}

// ErrNotFound indicates the remote store has no such note.
var ErrNotFound = errors.New("remote: note not found")

// HTTPError reports a non-success response from the API.
type HTTPError struct {
	StatusCode int
	Reason     string
	Code       string
}

func (e *HTTPError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("http %d %s: %s", e.StatusCode, e.Reason, e.Code)
	}
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Reason)
}

// Is lets callers match 404 responses against ErrNotFound.
func (e *HTTPError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == 404
}
