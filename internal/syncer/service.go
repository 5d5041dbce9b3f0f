// Package syncer applies note mutations local-first and reconciles the local
// collection with the remote store.
package syncer

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/notesync/internal/ledger"
	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
	"github.com/MarcoPoloResearchLab/notesync/internal/remote"
	"go.uber.org/zap"
)

const (
	opServiceNew = "syncer.service.new"
	opCreateNote = "syncer.create_note"
	opUpdateNote = "syncer.update_note"
	opDeleteNote = "syncer.delete_note"
	opTogglePin  = "syncer.toggle_pin"
	opSync       = "syncer.sync"
	opStatus     = "syncer.status"

	reasonMissingNoteStore   = "missing_note_store"
	reasonMissingLedgerStore = "missing_ledger_store"
	reasonInvalidOwner       = "invalid_owner"
	reasonInvalidNoteID      = "invalid_note_id"
	reasonNoteNotFound       = "note_not_found"
	reasonLocalSaveFailed    = "local_save_failed"
	reasonLedgerLoadFailed   = "ledger_load_failed"
	reasonLedgerSaveFailed   = "ledger_save_failed"
	reasonLedgerRejected     = "ledger_rejected"
	reasonRemoteFailed       = "remote_failed"

	fieldUserID = "user_id"
	fieldNoteID = "note_id"
)

// NoteRepository persists whole note collections per owner.
type NoteRepository interface {
	Load(ctx context.Context, owner notes.UserID) []notes.Note
	Save(ctx context.Context, owner notes.UserID, collection []notes.Note) error
}

// LedgerRepository persists one sync ledger per owner.
type LedgerRepository interface {
	Load(ctx context.Context, owner notes.UserID) (ledger.Ledger, error)
	Save(ctx context.Context, owner notes.UserID, entry ledger.Ledger) error
}

// ServiceConfig wires the service. A nil Gateway disables remote propagation
// entirely; every call then behaves as if Offline.
type ServiceConfig struct {
	Notes         NoteRepository
	Ledgers       LedgerRepository
	Gateway       remote.Gateway
	Clock         func() time.Time
	LocalIDs      *notes.LocalIDMinter
	Logger        *zap.Logger
	RemoteTimeout time.Duration
}

// Service is the mutation and reconciliation entry point of the sync layer.
// Calls for the same owner are serialized.
type Service struct {
	notes         NoteRepository
	ledgers       LedgerRepository
	gateway       remote.Gateway
	clock         func() time.Time
	localIDs      *notes.LocalIDMinter
	logger        *zap.Logger
	remoteTimeout time.Duration
	ownerLocks    sync.Map
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Notes == nil {
		return nil, newServiceError(opServiceNew, reasonMissingNoteStore, errMissingNoteStore)
	}
	if cfg.Ledgers == nil {
		return nil, newServiceError(opServiceNew, reasonMissingLedgerStore, errMissingLedgerStore)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	localIDs := cfg.LocalIDs
	if localIDs == nil {
		localIDs = notes.NewLocalIDMinter(clock, nil)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	remoteTimeout := cfg.RemoteTimeout
	if remoteTimeout < 0 {
		remoteTimeout = 0
	}

	return &Service{
		notes:         cfg.Notes,
		ledgers:       cfg.Ledgers,
		gateway:       cfg.Gateway,
		clock:         clock,
		localIDs:      localIDs,
		logger:        logger,
		remoteTimeout: remoteTimeout,
	}, nil
}

// CreateNote stores the draft under a fresh local token, prepends it to the
// owner's collection and, when online, promotes it to the remote identifier.
// A remote failure leaves the local note in place and queues it for creation.
func (s *Service) CreateNote(ctx context.Context, draft notes.NoteDraft, connectivity Connectivity) (notes.Note, error) {
	owner, err := notes.NewUserID(draft.UserID.String())
	if err != nil {
		return notes.Note{}, newServiceError(opCreateNote, reasonInvalidOwner, err)
	}
	draft.UserID = owner

	unlock := s.lockOwner(owner)
	defer unlock()

	now := s.clock().UnixMilli()
	note := draft.NewNote(s.localIDs.Mint(), now, now)

	collection := s.notes.Load(ctx, owner)
	collection = append([]notes.Note{note}, collection...)
	if err := s.notes.Save(ctx, owner, collection); err != nil {
		s.logError(opCreateNote, reasonLocalSaveFailed, err, ownerFields(owner, note.ID)...)
		return notes.Note{}, newServiceError(opCreateNote, reasonLocalSaveFailed, err)
	}

	if !s.remoteEnabled(connectivity) {
		s.recordDeferred(ctx, opCreateNote, owner, ledger.KindCreate, note.ID)
		return note, nil
	}

	remoteCtx, cancel := s.remoteContext(ctx)
	remoteID, err := s.gateway.CreateNote(remoteCtx, note)
	cancel()
	if err != nil {
		s.logRemoteFailure(opCreateNote, err, owner, note.ID)
		s.recordDeferred(ctx, opCreateNote, owner, ledger.KindCreate, note.ID)
		return note, nil
	}

	promoted := note.WithID(remoteID)
	if index := notes.FindNote(collection, note.ID); index >= 0 {
		collection[index] = promoted
	}
	if err := s.notes.Save(ctx, owner, collection); err != nil {
		s.logError(opCreateNote, reasonLocalSaveFailed, err, ownerFields(owner, remoteID)...)
		return notes.Note{}, newServiceError(opCreateNote, reasonLocalSaveFailed, err)
	}
	return promoted, nil
}

// UpdateNote merges the patch into the owner's note and, when online and the
// note is known remotely, forwards the patch. Unknown notes yield ErrNoteNotFound
// without touching local state.
func (s *Service) UpdateNote(ctx context.Context, owner notes.UserID, noteID notes.NoteID, patch notes.NotePatch, connectivity Connectivity) (notes.Note, error) {
	if err := validateTarget(opUpdateNote, owner, noteID); err != nil {
		return notes.Note{}, err
	}

	unlock := s.lockOwner(owner)
	defer unlock()

	return s.updateNote(ctx, opUpdateNote, owner, noteID, patch, connectivity)
}

// TogglePin flips the pinned flag of the owner's note.
func (s *Service) TogglePin(ctx context.Context, owner notes.UserID, noteID notes.NoteID, connectivity Connectivity) (notes.Note, error) {
	if err := validateTarget(opTogglePin, owner, noteID); err != nil {
		return notes.Note{}, err
	}

	unlock := s.lockOwner(owner)
	defer unlock()

	collection := s.notes.Load(ctx, owner)
	index := notes.FindNote(collection, noteID)
	if index < 0 {
		return notes.Note{}, newServiceError(opTogglePin, reasonNoteNotFound, ErrNoteNotFound)
	}
	pinned := !collection[index].IsPinned
	return s.updateNote(ctx, opTogglePin, owner, noteID, notes.NotePatch{IsPinned: &pinned}, connectivity)
}

func (s *Service) updateNote(ctx context.Context, operation string, owner notes.UserID, noteID notes.NoteID, patch notes.NotePatch, connectivity Connectivity) (notes.Note, error) {
	collection := s.notes.Load(ctx, owner)
	index := notes.FindNote(collection, noteID)
	if index < 0 {
		return notes.Note{}, newServiceError(operation, reasonNoteNotFound, ErrNoteNotFound)
	}

	previous := collection[index]
	updated := patch.Apply(previous)
	updated.UpdatedAt = max(s.clock().UnixMilli(), previous.UpdatedAt)
	collection[index] = updated
	if err := s.notes.Save(ctx, owner, collection); err != nil {
		s.logError(operation, reasonLocalSaveFailed, err, ownerFields(owner, noteID)...)
		return notes.Note{}, newServiceError(operation, reasonLocalSaveFailed, err)
	}

	if noteID.IsLocal() || !s.remoteEnabled(connectivity) {
		s.recordDeferred(ctx, operation, owner, ledger.KindUpdate, noteID)
		return updated, nil
	}

	remoteCtx, cancel := s.remoteContext(ctx)
	err := s.gateway.UpdateNote(remoteCtx, noteID, patch)
	cancel()
	if err != nil {
		s.logRemoteFailure(operation, err, owner, noteID)
		s.recordDeferred(ctx, operation, owner, ledger.KindUpdate, noteID)
	}
	return updated, nil
}

// DeleteNote removes the note from the owner's collection. Deleting an absent
// note is not an error.
func (s *Service) DeleteNote(ctx context.Context, owner notes.UserID, noteID notes.NoteID, connectivity Connectivity) error {
	if err := validateTarget(opDeleteNote, owner, noteID); err != nil {
		return err
	}

	unlock := s.lockOwner(owner)
	defer unlock()

	collection := s.notes.Load(ctx, owner)
	remaining := make([]notes.Note, 0, len(collection))
	for _, note := range collection {
		if note.ID != noteID {
			remaining = append(remaining, note)
		}
	}
	if err := s.notes.Save(ctx, owner, remaining); err != nil {
		s.logError(opDeleteNote, reasonLocalSaveFailed, err, ownerFields(owner, noteID)...)
		return newServiceError(opDeleteNote, reasonLocalSaveFailed, err)
	}

	if noteID.IsLocal() || !s.remoteEnabled(connectivity) {
		s.recordDeferred(ctx, opDeleteNote, owner, ledger.KindDelete, noteID)
		return nil
	}

	remoteCtx, cancel := s.remoteContext(ctx)
	err := s.gateway.DeleteNote(remoteCtx, noteID)
	cancel()
	if err != nil {
		s.logRemoteFailure(opDeleteNote, err, owner, noteID)
		s.recordDeferred(ctx, opDeleteNote, owner, ledger.KindDelete, noteID)
	}
	return nil
}

// Status returns the owner's ledger.
func (s *Service) Status(ctx context.Context, owner notes.UserID) (ledger.Ledger, error) {
	if owner == "" {
		return ledger.Ledger{}, newServiceError(opStatus, reasonInvalidOwner, errMissingOwner)
	}

	unlock := s.lockOwner(owner)
	defer unlock()

	entry, err := s.ledgers.Load(ctx, owner)
	if err != nil {
		s.logError(opStatus, reasonLedgerLoadFailed, err, zap.String(fieldUserID, owner.String()))
		return ledger.Ledger{}, newServiceError(opStatus, reasonLedgerLoadFailed, err)
	}
	return entry, nil
}

// recordDeferred notes a mutation that did not reach the remote store. Local
// tokens are never sent remotely, so an update of one keeps the note queued
// for creation and a delete of one only cancels its pending creation.
func (s *Service) recordDeferred(ctx context.Context, operation string, owner notes.UserID, kind ledger.Kind, noteID notes.NoteID) {
	entry, err := s.ledgers.Load(ctx, owner)
	if err != nil {
		s.logError(operation, reasonLedgerLoadFailed, err, ownerFields(owner, noteID)...)
		return
	}

	if noteID.IsLocal() {
		switch kind {
		case ledger.KindUpdate:
			kind = ledger.KindCreate
		case ledger.KindDelete:
			if !entry.Contains(ledger.KindCreate, noteID) {
				return
			}
		}
	}

	changed, err := entry.Record(kind, noteID)
	if err != nil {
		s.logError(operation, reasonLedgerRejected, err, ownerFields(owner, noteID)...)
		return
	}
	if !changed {
		return
	}
	if err := s.ledgers.Save(ctx, owner, entry); err != nil {
		s.logError(operation, reasonLedgerSaveFailed, err, ownerFields(owner, noteID)...)
	}
}

func (s *Service) remoteEnabled(connectivity Connectivity) bool {
	return connectivity == Online && s.gateway != nil
}

func (s *Service) remoteContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.remoteTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.remoteTimeout)
}

func (s *Service) lockOwner(owner notes.UserID) func() {
	value, _ := s.ownerLocks.LoadOrStore(owner, &sync.Mutex{})
	mutex := value.(*sync.Mutex)
	mutex.Lock()
	return mutex.Unlock
}

func validateTarget(operation string, owner notes.UserID, noteID notes.NoteID) error {
	if owner == "" {
		return newServiceError(operation, reasonInvalidOwner, errMissingOwner)
	}
	if noteID == "" {
		return newServiceError(operation, reasonInvalidNoteID, errMissingNoteID)
	}
	return nil
}

func ownerFields(owner notes.UserID, noteID notes.NoteID) []zap.Field {
	return []zap.Field{
		zap.String(fieldUserID, owner.String()),
		zap.String(fieldNoteID, noteID.String()),
	}
}

func (s *Service) logRemoteFailure(operation string, err error, owner notes.UserID, noteID notes.NoteID) {
	fields := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reasonRemoteFailed),
		zap.Error(err),
	}
	fields = append(fields, ownerFields(owner, noteID)...)
	s.logger.Warn("remote propagation deferred", fields...)
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
	s.logger.Error("syncer service error", attrs...)
}
