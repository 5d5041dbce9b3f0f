package syncer

import (
	"context"

	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
	"go.uber.org/zap"
)

const reasonRemoteListFailed = "remote_list_failed"

// Sync returns the owner's collection. Offline it is the cached collection
// as is. Online the remote collection wins for every identifier it holds and
// local notes that were never acknowledged are appended in their original
// order; the result replaces the cache and the ledger is reset.
//
// Pending ledger entries are not replayed before the merge; a successful pass
// discards them. Any failure on the online path yields the cached collection
// and leaves the ledger untouched.
func (s *Service) Sync(ctx context.Context, owner notes.UserID, connectivity Connectivity) ([]notes.Note, error) {
	if owner == "" {
		return nil, newServiceError(opSync, reasonInvalidOwner, errMissingOwner)
	}

	unlock := s.lockOwner(owner)
	defer unlock()

	if !s.remoteEnabled(connectivity) {
		return s.notes.Load(ctx, owner), nil
	}

	entry, err := s.ledgers.Load(ctx, owner)
	if err != nil {
		s.logError(opSync, reasonLedgerLoadFailed, err, zap.String(fieldUserID, owner.String()))
		return s.notes.Load(ctx, owner), nil
	}

	remoteCtx, cancel := s.remoteContext(ctx)
	remoteNotes, err := s.gateway.ListNotes(remoteCtx, owner)
	cancel()
	if err != nil {
		s.logger.Warn("remote listing failed, serving cached notes",
			zap.String("operation", opSync),
			zap.String("reason", reasonRemoteListFailed),
			zap.String(fieldUserID, owner.String()),
			zap.Error(err))
		return s.notes.Load(ctx, owner), nil
	}

	localNotes := s.notes.Load(ctx, owner)
	merged := MergeCollections(remoteNotes, localNotes)
	if err := s.notes.Save(ctx, owner, merged); err != nil {
		s.logError(opSync, reasonLocalSaveFailed, err, zap.String(fieldUserID, owner.String()))
		return localNotes, nil
	}

	if !entry.IsEmpty() {
		s.logger.Info("discarding pending changes after reconciliation",
			zap.String("operation", opSync),
			zap.String(fieldUserID, owner.String()),
			zap.Int("pending_create", len(entry.PendingChanges.Create)),
			zap.Int("pending_update", len(entry.PendingChanges.Update)),
			zap.Int("pending_delete", len(entry.PendingChanges.Delete)))
	}
	entry.Reset(s.clock())
	if err := s.ledgers.Save(ctx, owner, entry); err != nil {
		s.logError(opSync, reasonLedgerSaveFailed, err, zap.String(fieldUserID, owner.String()))
	}
	return merged, nil
}

// MergeCollections starts from the remote collection and appends every local
// note still carrying a local token that is not already present.
func MergeCollections(remoteNotes, localNotes []notes.Note) []notes.Note {
	merged := make([]notes.Note, 0, len(remoteNotes)+len(localNotes))
	seen := make(map[notes.NoteID]struct{}, len(remoteNotes)+len(localNotes))
	for _, note := range remoteNotes {
		if _, duplicate := seen[note.ID]; duplicate {
			continue
		}
		seen[note.ID] = struct{}{}
		merged = append(merged, normalizeTags(note))
	}
	for _, note := range localNotes {
		if !note.ID.IsLocal() {
			continue
		}
		if _, duplicate := seen[note.ID]; duplicate {
			continue
		}
		seen[note.ID] = struct{}{}
		merged = append(merged, normalizeTags(note))
	}
	return merged
}

func normalizeTags(note notes.Note) notes.Note {
	if note.Tags == nil {
		note.Tags = []string{}
	}
	return note
}
