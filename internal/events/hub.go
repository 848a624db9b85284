// Package events fans sync and file lifecycle events out to the owner's
// connected viewers so they know when to reload the embedded spreadsheet.
package events

import (
	"context"
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/Todor-5rov/Vexcel/internal/sync"
)

// Event types.
const (
	TypeSynced   = "file.synced"
	TypeUploaded = "file.uploaded"
	TypeDeleted  = "file.deleted"
)

// Event is what subscribers receive.
type Event struct {
	Type     string    `json:"type"`
	OwnerID  string    `json:"userId"`
	FileID   string    `json:"fileId,omitempty"`
	Filename string    `json:"fileName"`
	Success  bool      `json:"success"`
	Message  string    `json:"message,omitempty"`
	EmbedURL string    `json:"embedUrl,omitempty"`
	At       time.Time `json:"at"`
}

const subscriberBuffer = 16

// Hub is an in-process publish/subscribe broker keyed by owner.
type Hub struct {
	mu     stdsync.Mutex
	subs   map[string]map[chan Event]struct{}
	logger *slog.Logger
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{subs: make(map[string]map[chan Event]struct{}), logger: logger}
}

// Subscribe registers for the owner's events. The returned func unsubscribes
// and closes the channel; call it exactly once.
func (h *Hub) Subscribe(ownerID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.subs[ownerID] == nil {
		h.subs[ownerID] = make(map[chan Event]struct{})
	}
	h.subs[ownerID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[ownerID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, ownerID)
			}
		}
		close(ch)
	}
}

// Publish delivers ev to every subscriber of ev.OwnerID. Subscribers whose
// buffer is full miss the event; Publish never blocks.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.OwnerID] {
		select {
		case ch <- ev:
		default:
			h.logger.Warn("dropping event for slow subscriber",
				slog.String("owner", ev.OwnerID),
				slog.String("type", ev.Type))
		}
	}
}

// Subscribers returns the number of live subscriptions for ownerID.
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[ownerID])
}

// SyncCompleted implements sync.Observer.
func (h *Hub) SyncCompleted(_ context.Context, ev sync.Event) {
	h.Publish(Event{
		Type:     TypeSynced,
		OwnerID:  ev.OwnerID,
		FileID:   ev.FileID,
		Filename: ev.Filename,
		Success:  ev.Result.Success,
		Message:  ev.Result.Message,
		EmbedURL: ev.Result.NewEmbedURL,
		At:       ev.At,
	})
}
