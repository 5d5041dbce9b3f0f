package notes

import (
	"errors"
	"fmt"
	"strings"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("notes: invalid user id")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// IsLocal reports whether the identifier is a client-minted local token.
func (id NoteID) IsLocal() bool {
	return strings.HasPrefix(string(id), LocalIDPrefix)
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// Note is a single user-owned memo as exchanged between the local cache and
// the remote document store. Timestamps are unix milliseconds.
type Note struct {
	ID        NoteID   `json:"id"`
	Title     string   `json:"title"`
	Content   string   `json:"content"`
	CreatedAt int64    `json:"createdAt"`
	UpdatedAt int64    `json:"updatedAt"`
	Tags      []string `json:"tags"`
	Category  *string  `json:"category,omitempty"`
	IsPinned  bool     `json:"isPinned"`
	Color     *string  `json:"color,omitempty"`
	UserID    UserID   `json:"userId"`
}

// Clone returns a deep copy so callers can mutate slices and pointers freely.
func (note Note) Clone() Note {
	copied := note
	copied.Tags = cloneTags(note.Tags)
	copied.Category = cloneString(note.Category)
	copied.Color = cloneString(note.Color)
	return copied
}

// WithID returns a copy of the note carrying a different identifier.
func (note Note) WithID(id NoteID) Note {
	copied := note.Clone()
	copied.ID = id
	return copied
}

// NoteDraft carries the fields a caller supplies when creating a note.
type NoteDraft struct {
	Title    string
	Content  string
	Tags     []string
	Category *string
	IsPinned bool
	Color    *string
	UserID   UserID
}

// NewNote builds a note from the draft with the supplied identity and timestamps.
func (draft NoteDraft) NewNote(id NoteID, createdAt int64, updatedAt int64) Note {
	return Note{
		ID:        id,
		Title:     draft.Title,
		Content:   draft.Content,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Tags:      cloneTags(draft.Tags),
		Category:  cloneString(draft.Category),
		IsPinned:  draft.IsPinned,
		Color:     cloneString(draft.Color),
		UserID:    draft.UserID,
	}
}

func cloneTags(tags []string) []string {
	copied := make([]string, len(tags))
	copy(copied, tags)
	return copied
}

func cloneString(value *string) *string {
	if value == nil {
		return nil
	}
	v := *value
	return &v
}

// FindNote returns the index of the note with the identifier, or -1.
func FindNote(collection []Note, id NoteID) int {
	for index := range collection {
		if collection[index].ID == id {
			return index
		}
	}
	return -1
}
