package syncer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/notesync/internal/ledger"
	"github.com/MarcoPoloResearchLab/notesync/internal/localstore"
	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
	"github.com/MarcoPoloResearchLab/notesync/internal/remote"
	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const (
	testOwner      = notes.UserID("alice")
	testStartMilli = int64(1700000000000)
)

var errRemoteUnavailable = errors.New("remote unavailable")

type steppingClock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

func newSteppingClock() *steppingClock {
	return &steppingClock{current: time.UnixMilli(testStartMilli), step: time.Millisecond}
}

func (c *steppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	value := c.current
	c.current = c.current.Add(c.step)
	return value
}

// fakeGateway is an in-memory remote store. Errors set on it are returned by
// every call of the matching operation.
type fakeGateway struct {
	mu        sync.Mutex
	stored    []notes.Note
	nextID    int
	createErr error
	listErr   error
	updateErr error
	deleteErr error
	calls     map[string]int
	blockOn   string
}

func newFakeGateway(stored ...notes.Note) *fakeGateway {
	return &fakeGateway{stored: stored, calls: map[string]int{}}
}

func (g *fakeGateway) record(operation string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls[operation]++
}

func (g *fakeGateway) callCount(operation string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[operation]
}

func (g *fakeGateway) wait(ctx context.Context, operation string) error {
	if g.blockOn != operation {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (g *fakeGateway) CreateNote(ctx context.Context, note notes.Note) (notes.NoteID, error) {
	g.record("create")
	if err := g.wait(ctx, "create"); err != nil {
		return "", err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return "", g.createErr
	}
	g.nextID++
	id := notes.NoteID("remote-" + strconv.Itoa(g.nextID))
	g.stored = append([]notes.Note{note.WithID(id)}, g.stored...)
	return id, nil
}

func (g *fakeGateway) ListNotes(ctx context.Context, owner notes.UserID) ([]notes.Note, error) {
	g.record("list")
	if err := g.wait(ctx, "list"); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listErr != nil {
		return nil, g.listErr
	}
	listed := make([]notes.Note, 0, len(g.stored))
	for _, note := range g.stored {
		if note.UserID == owner {
			listed = append(listed, note.Clone())
		}
	}
	return listed, nil
}

func (g *fakeGateway) UpdateNote(ctx context.Context, noteID notes.NoteID, patch notes.NotePatch) error {
	g.record("update")
	if err := g.wait(ctx, "update"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.updateErr != nil {
		return g.updateErr
	}
	index := notes.FindNote(g.stored, noteID)
	if index < 0 {
		return remote.ErrNotFound
	}
	g.stored[index] = patch.Apply(g.stored[index])
	return nil
}

func (g *fakeGateway) DeleteNote(ctx context.Context, noteID notes.NoteID) error {
	g.record("delete")
	if err := g.wait(ctx, "delete"); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.deleteErr != nil {
		return g.deleteErr
	}
	if index := notes.FindNote(g.stored, noteID); index >= 0 {
		g.stored = append(g.stored[:index], g.stored[index+1:]...)
	}
	return nil
}

type failingNoteRepository struct {
	loaded []notes.Note
}

func (r failingNoteRepository) Load(context.Context, notes.UserID) []notes.Note {
	return r.loaded
}

func (r failingNoteRepository) Save(context.Context, notes.UserID, []notes.Note) error {
	return errors.New("disk full")
}

type testHarness struct {
	service *Service
	notes   *localstore.NoteStore
	ledgers *localstore.LedgerStore
	kv      *localstore.GormKeyValueStore
	clock   *steppingClock
}

func newTestHarness(t *testing.T, gateway remote.Gateway, mutate ...func(*ServiceConfig)) *testHarness {
	t.Helper()

	dsn := fmt.Sprintf("file:syncer_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	database, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(&localstore.Entry{}))

	clock := newSteppingClock()
	kv, err := localstore.NewGormKeyValueStore(database, clock.Now)
	require.NoError(t, err)
	noteStore, err := localstore.NewNoteStore(kv, nil)
	require.NoError(t, err)
	ledgerStore, err := localstore.NewLedgerStore(kv)
	require.NoError(t, err)

	suffix := 0
	cfg := ServiceConfig{
		Notes:   noteStore,
		Ledgers: ledgerStore,
		Gateway: gateway,
		Clock:   clock.Now,
		LocalIDs: notes.NewLocalIDMinter(clock.Now, func() string {
			suffix++
			return fmt.Sprintf("abc%04d", suffix)
		}),
	}
	for _, apply := range mutate {
		apply(&cfg)
	}
	service, err := NewService(cfg)
	require.NoError(t, err)

	return &testHarness{service: service, notes: noteStore, ledgers: ledgerStore, kv: kv, clock: clock}
}

func (h *testHarness) seed(t *testing.T, collection ...notes.Note) {
	t.Helper()
	require.NoError(t, h.notes.Save(context.Background(), testOwner, collection))
}

func (h *testHarness) ledger(t *testing.T) ledger.Ledger {
	t.Helper()
	entry, err := h.ledgers.Load(context.Background(), testOwner)
	require.NoError(t, err)
	return entry
}

func (h *testHarness) rawState(t *testing.T) (string, string) {
	t.Helper()
	ctx := context.Background()
	rawNotes, _, err := h.kv.Get(ctx, "notes:"+testOwner.String())
	require.NoError(t, err)
	rawLedger, _, err := h.kv.Get(ctx, "sync_status:"+testOwner.String())
	require.NoError(t, err)
	return rawNotes, rawLedger
}

func remoteNote(id notes.NoteID, title string) notes.Note {
	return notes.Note{ID: id, Title: title, Tags: []string{}, UserID: testOwner, CreatedAt: 1, UpdatedAt: 1}
}

func noteIDs(collection []notes.Note) []notes.NoteID {
	ids := make([]notes.NoteID, 0, len(collection))
	for _, note := range collection {
		ids = append(ids, note.ID)
	}
	return ids
}

func stringPointer(value string) *string {
	return &value
}

func boolPointer(value bool) *bool {
	return &value
}
