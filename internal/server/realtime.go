package server

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/notesync/internal/notes"
	"github.com/gin-gonic/gin"
)

const (
	RealtimeEventNoteChanged = "note-change"
	realtimeEventHeartbeat   = "heartbeat"
	realtimeSource           = "notesync-api"
	realtimeBufferSize       = 16
)

// RealtimeMessage announces that notes of one owner changed on the server.
type RealtimeMessage struct {
	UserID    notes.UserID
	EventType string
	NoteIDs   []notes.NoteID
	Timestamp time.Time
}

type realtimePayload struct {
	NoteIDs   []notes.NoteID `json:"noteIds,omitempty"`
	Timestamp int64          `json:"timestamp"`
	Source    string         `json:"source"`
}

// RealtimeDispatcher fans messages out to the subscribers of each owner.
// Slow subscribers drop messages rather than block publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[notes.UserID]map[int64]chan RealtimeMessage
	nextID      int64
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[notes.UserID]map[int64]chan RealtimeMessage),
	}
}

// Subscribe registers a stream for the owner until ctx ends or the returned
// cleanup runs.
func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID notes.UserID) (<-chan RealtimeMessage, func()) {
	if userID == "" {
		closed := make(chan RealtimeMessage)
		close(closed)
		return closed, func() {}
	}

	stream := make(chan RealtimeMessage, realtimeBufferSize)
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	if d.subscribers[userID] == nil {
		d.subscribers[userID] = make(map[int64]chan RealtimeMessage)
	}
	d.subscribers[userID][id] = stream
	d.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unsubscribe(userID, id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == "" || message.EventType == "" {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, stream := range d.subscribers[message.UserID] {
		select {
		case stream <- message:
		default:
		}
	}
}

// SubscriberCount reports the open streams of the owner.
func (d *RealtimeDispatcher) SubscriberCount(userID notes.UserID) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *RealtimeDispatcher) unsubscribe(userID notes.UserID, id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	subscribers := d.subscribers[userID]
	if subscribers == nil {
		return
	}
	delete(subscribers, id)
	if len(subscribers) == 0 {
		delete(d.subscribers, userID)
	}
}

func (h *httpHandler) handleNoteEvents(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx, userID)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(200)
	c.Writer.Flush()

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, open := <-stream:
			if !open {
				return false
			}
			c.SSEvent(message.EventType, realtimePayload{
				NoteIDs:   message.NoteIDs,
				Timestamp: message.Timestamp.UnixMilli(),
				Source:    realtimeSource,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimePayload{
				Timestamp: tick.UTC().UnixMilli(),
				Source:    realtimeSource,
			})
			return true
		}
	})
}
