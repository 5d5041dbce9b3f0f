package notes

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNoteNotFound indicates the note does not exist for the requesting owner.
	ErrNoteNotFound = errors.New("notes: note not found")

	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew  = "notes.service.new"
	opCreateNote  = "notes.create_note"
	opListNotes   = "notes.list_notes"
	opUpdateNote  = "notes.update_note"
	opDeleteNote  = "notes.delete_note"
	queryUserID   = "user_id = ?"
	queryUserNote = "user_id = ? AND note_id = ?"
	orderListing  = "is_pinned DESC, updated_at_ms DESC"
	fieldUserID   = "user_id"
	fieldNoteID   = "note_id"

	reasonMissingDatabase = "missing_database"
	reasonIDGeneration    = "id_generation_failed"
	reasonInsertFailed    = "insert_failed"
	reasonQueryFailed     = "query_failed"
	reasonNoteNotFound    = "note_not_found"
	reasonSaveFailed      = "save_failed"
	reasonDeleteFailed    = "delete_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

type IDProvider interface {
	NewID() (string, error)
}

// Service is the authoritative document store the sync layer reconciles against.
// It assigns note identifiers and stamps timestamps with its own clock.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateNote stores a new note for its owner and returns it with the assigned identifier.
func (s *Service) CreateNote(ctx context.Context, userID UserID, note Note) (Note, error) {
	if s.db == nil {
		s.logError(opCreateNote, reasonMissingDatabase, errMissingDatabase)
		return Note{}, newServiceError(opCreateNote, reasonMissingDatabase, errMissingDatabase)
	}

	noteID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateNote, reasonIDGeneration, err, zap.String(fieldUserID, userID.String()))
		return Note{}, newServiceError(opCreateNote, reasonIDGeneration, err)
	}

	now := s.clock().UTC().UnixMilli()
	stored := storedFromNote(note)
	stored.NoteID = noteID
	stored.UserID = userID.String()
	stored.CreatedAtMillis = now
	stored.UpdatedAtMillis = now
	if stored.Tags == nil {
		stored.Tags = []string{}
	}

	if err := s.db.WithContext(ctx).Create(&stored).Error; err != nil {
		s.logError(opCreateNote, reasonInsertFailed, err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldNoteID, noteID))
		return Note{}, newServiceError(opCreateNote, reasonInsertFailed, err)
	}
	return stored.toNote(), nil
}

// ListNotes returns the owner's notes, pinned first, most recently updated first.
func (s *Service) ListNotes(ctx context.Context, userID UserID) ([]Note, error) {
	if s.db == nil {
		s.logError(opListNotes, reasonMissingDatabase, errMissingDatabase)
		return nil, newServiceError(opListNotes, reasonMissingDatabase, errMissingDatabase)
	}

	var stored []StoredNote
	if err := s.db.WithContext(ctx).
		Where(queryUserID, userID.String()).
		Order(orderListing).
		Find(&stored).Error; err != nil {
		s.logError(opListNotes, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
		return nil, newServiceError(opListNotes, reasonQueryFailed, err)
	}

	result := make([]Note, 0, len(stored))
	for _, record := range stored {
		result = append(result, record.toNote())
	}
	return result, nil
}

// UpdateNote applies a partial update to an existing note of the owner.
func (s *Service) UpdateNote(ctx context.Context, userID UserID, noteID NoteID, patch NotePatch) (Note, error) {
	if s.db == nil {
		s.logError(opUpdateNote, reasonMissingDatabase, errMissingDatabase)
		return Note{}, newServiceError(opUpdateNote, reasonMissingDatabase, errMissingDatabase)
	}

	var updated StoredNote
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing StoredNote
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where(queryUserNote, userID.String(), noteID.String()).
			Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(opUpdateNote, reasonNoteNotFound, ErrNoteNotFound)
		}
		if err != nil {
			s.logError(opUpdateNote, reasonQueryFailed, err,
				zap.String(fieldUserID, userID.String()),
				zap.String(fieldNoteID, noteID.String()))
			return newServiceError(opUpdateNote, reasonQueryFailed, err)
		}

		updated = storedFromNote(patch.Apply(existing.toNote()))
		updated.UpdatedAtMillis = s.clock().UTC().UnixMilli()
		if updated.UpdatedAtMillis < existing.UpdatedAtMillis {
			updated.UpdatedAtMillis = existing.UpdatedAtMillis
		}

		if err := tx.Save(&updated).Error; err != nil {
			s.logError(opUpdateNote, reasonSaveFailed, err,
				zap.String(fieldUserID, userID.String()),
				zap.String(fieldNoteID, noteID.String()))
			return newServiceError(opUpdateNote, reasonSaveFailed, err)
		}
		return nil
	})
	if txErr != nil {
		return Note{}, txErr
	}
	return updated.toNote(), nil
}

// DeleteNote removes the owner's note. Deleting a missing note is not an error;
// the boolean reports whether a row was removed.
func (s *Service) DeleteNote(ctx context.Context, userID UserID, noteID NoteID) (bool, error) {
	if s.db == nil {
		s.logError(opDeleteNote, reasonMissingDatabase, errMissingDatabase)
		return false, newServiceError(opDeleteNote, reasonMissingDatabase, errMissingDatabase)
	}

	result := s.db.WithContext(ctx).
		Where(queryUserNote, userID.String(), noteID.String()).
		Delete(&StoredNote{})
	if result.Error != nil {
		s.logError(opDeleteNote, reasonDeleteFailed, result.Error,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldNoteID, noteID.String()))
		return false, newServiceError(opDeleteNote, reasonDeleteFailed, result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("notes service error", attrs...)
}
