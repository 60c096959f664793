package handlers

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"

	"lcdradio/models"
)

// Broadcaster fans player-state updates out to server-sent-event listeners
// and remembers the latest snapshot for plain status requests.
type Broadcaster struct {
	log *slog.Logger

	mu   sync.Mutex
	subs map[string]chan models.DataChanged
	last models.DataChanged
}

func NewBroadcaster(log *slog.Logger) *Broadcaster {
	return &Broadcaster{
		log:  log,
		subs: make(map[string]chan models.DataChanged),
	}
}

// Notify is called by the event loop on every state change. Slow listeners
// drop updates rather than stalling the loop.
func (b *Broadcaster) Notify(d models.DataChanged) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.last = d
	for id, ch := range b.subs {
		select {
		case ch <- d:
		default:
			b.log.Debug("dropping update for slow subscriber", "id", id)
		}
	}
}

// Last returns the most recent snapshot.
func (b *Broadcaster) Last() models.DataChanged {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.last
}

func (b *Broadcaster) subscribe() (string, chan models.DataChanged) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := uuid.New().String()
	ch := make(chan models.DataChanged, 16)
	// New subscribers get the current state straight away.
	ch <- b.last
	b.subs[id] = ch
	return id, ch
}

func (b *Broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// StreamEvents serves the SSE endpoint the web page listens on.
func (b *Broadcaster) StreamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, ch := b.subscribe()
	defer b.unsubscribe(id)
	b.log.Debug("sse subscriber connected", "id", id)

	for {
		select {
		case <-r.Context().Done():
			return
		case d := <-ch:
			payload, err := json.Marshal(d)
			if err != nil {
				b.log.Warn("marshal state update failed", "error", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}
