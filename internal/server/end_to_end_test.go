package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/notesync/internal/ledger"
	"github.com/MarcoPoloResearchLab/notesync/internal/localstore"
	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
	"github.com/MarcoPoloResearchLab/notesync/internal/remote"
	"github.com/MarcoPoloResearchLab/notesync/internal/syncer"
	githubsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newClientSyncer(t *testing.T, gateway remote.Gateway) (*syncer.Service, *localstore.LedgerStore) {
	t.Helper()
	dsn := fmt.Sprintf("file:client_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(githubsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open client database: %v", err)
	}
	if err := db.AutoMigrate(&localstore.Entry{}); err != nil {
		t.Fatalf("failed to migrate client schema: %v", err)
	}
	kv, err := localstore.NewGormKeyValueStore(db, nil)
	if err != nil {
		t.Fatalf("failed to build key-value store: %v", err)
	}
	noteStore, err := localstore.NewNoteStore(kv, nil)
	if err != nil {
		t.Fatalf("failed to build note store: %v", err)
	}
	ledgerStore, err := localstore.NewLedgerStore(kv)
	if err != nil {
		t.Fatalf("failed to build ledger store: %v", err)
	}
	service, err := syncer.NewService(syncer.ServiceConfig{
		Notes:         noteStore,
		Ledgers:       ledgerStore,
		Gateway:       gateway,
		RemoteTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to build syncer: %v", err)
	}
	return service, ledgerStore
}

func TestClientSyncsAgainstAPI(t *testing.T) {
	api := newTestAPI(t)
	owner := notes.UserID("user-e2e")
	gateway := remote.NewHTTPGateway(remote.HTTPGatewayConfig{
		BaseURL:   api.server.URL,
		Token:     api.token(t, owner.String()),
		BaseDelay: time.Millisecond,
	})
	client, ledgers := newClientSyncer(t, gateway)
	ctx := context.Background()

	offlineNote, err := client.CreateNote(ctx, notes.NoteDraft{Title: "drafted on a plane", UserID: owner}, syncer.Offline)
	if err != nil {
		t.Fatalf("offline create failed: %v", err)
	}
	onlineNote, err := client.CreateNote(ctx, notes.NoteDraft{Title: "online", Tags: []string{"work"}, UserID: owner}, syncer.Online)
	if err != nil {
		t.Fatalf("online create failed: %v", err)
	}
	if onlineNote.ID.IsLocal() {
		t.Fatalf("expected online create to be promoted, got %s", onlineNote.ID)
	}

	if _, err := client.TogglePin(ctx, owner, onlineNote.ID, syncer.Online); err != nil {
		t.Fatalf("toggle pin failed: %v", err)
	}

	merged, err := client.Sync(ctx, owner, syncer.Online)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if len(merged) != 2 {
		t.Fatalf("expected remote note plus unsynced local note, got %d", len(merged))
	}
	if merged[0].ID != onlineNote.ID || !merged[0].IsPinned || merged[0].Tags[0] != "work" {
		t.Fatalf("unexpected remote note %#v", merged[0])
	}
	if merged[1].ID != offlineNote.ID {
		t.Fatalf("expected unsynced local note to survive, got %#v", merged[1])
	}

	entry, err := ledgers.Load(ctx, owner)
	if err != nil {
		t.Fatalf("ledger load failed: %v", err)
	}
	if !entry.IsEmpty() || entry.LastSyncedAt == 0 {
		t.Fatalf("expected reset ledger, got %#v", entry)
	}

	if err := client.DeleteNote(ctx, owner, onlineNote.ID, syncer.Online); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	remaining := api.do(t, http.MethodGet, "/notes", api.token(t, owner.String()), "")
	var listPayload struct {
		Notes []notes.Note `json:"notes"`
	}
	decodeBody(t, remaining, &listPayload)
	if len(listPayload.Notes) != 0 {
		t.Fatalf("expected remote note to be deleted, got %#v", listPayload.Notes)
	}
}

func TestClientQueuesUpdateWhenRemoteRejects(t *testing.T) {
	api := newTestAPI(t)
	owner := notes.UserID("user-queue")
	gateway := remote.NewHTTPGateway(remote.HTTPGatewayConfig{
		BaseURL:    api.server.URL,
		Token:      "not-a-valid-token",
		MaxRetries: -1,
	})
	client, ledgers := newClientSyncer(t, gateway)
	ctx := context.Background()

	created, err := client.CreateNote(ctx, notes.NoteDraft{Title: "kept locally", UserID: owner}, syncer.Online)
	if err != nil {
		t.Fatalf("create should not fail on remote rejection: %v", err)
	}
	if !created.ID.IsLocal() {
		t.Fatalf("expected local token, got %s", created.ID)
	}

	synced, err := client.Sync(ctx, owner, syncer.Online)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if len(synced) != 1 || synced[0].ID != created.ID {
		t.Fatalf("expected cached collection on rejected sync, got %#v", synced)
	}

	entry, err := ledgers.Load(ctx, owner)
	if err != nil {
		t.Fatalf("ledger load failed: %v", err)
	}
	if !entry.Contains(ledger.KindCreate, created.ID) {
		t.Fatalf("expected pending create, got %#v", entry)
	}
}
