package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"lcdradio/models"
)

// PlayerHandler translates HTTP requests into event-loop commands. It never
// touches player state directly; the loop owns it.
type PlayerHandler struct {
	events      chan<- models.Event
	broadcaster *Broadcaster
	log         *slog.Logger
}

func NewPlayerHandler(events chan<- models.Event, b *Broadcaster, log *slog.Logger) *PlayerHandler {
	return &PlayerHandler{events: events, broadcaster: b, log: log}
}

// send queues an event without blocking; a stalled loop sheds web commands
// rather than wedging the HTTP server.
func (h *PlayerHandler) send(w http.ResponseWriter, ev models.Event) {
	select {
	case h.events <- ev:
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, "player busy", http.StatusServiceUnavailable)
	}
}

func (h *PlayerHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.broadcaster.Last(), h.log)
}

func (h *PlayerHandler) SelectChannel(w http.ResponseWriter, r *http.Request) {
	channel, err := strconv.Atoi(mux.Vars(r)["channel"])
	if err != nil || channel < 0 || channel > 99 {
		http.Error(w, "channel must be 0-99", http.StatusBadRequest)
		return
	}
	h.send(w, models.Event{Kind: models.EventSelectChannel, Channel: channel})
}

func (h *PlayerHandler) PlayPause(w http.ResponseWriter, r *http.Request) {
	h.send(w, models.Event{Kind: models.EventPlayPause})
}

func (h *PlayerHandler) VolumeUp(w http.ResponseWriter, r *http.Request) {
	h.send(w, models.Event{Kind: models.EventVolumeUp})
}

func (h *PlayerHandler) VolumeDown(w http.ResponseWriter, r *http.Request) {
	h.send(w, models.Event{Kind: models.EventVolumeDown})
}

func (h *PlayerHandler) SetVolume(w http.ResponseWriter, r *http.Request) {
	volume, err := strconv.Atoi(mux.Vars(r)["volume"])
	if err != nil {
		http.Error(w, "volume must be a number", http.StatusBadRequest)
		return
	}
	h.send(w, models.Event{Kind: models.EventSetVolume, Volume: volume})
}

func (h *PlayerHandler) NextTrack(w http.ResponseWriter, r *http.Request) {
	h.send(w, models.Event{Kind: models.EventNextTrack})
}

func (h *PlayerHandler) PreviousTrack(w http.ResponseWriter, r *http.Request) {
	h.send(w, models.Event{Kind: models.EventPreviousTrack})
}

func (h *PlayerHandler) Seek(w http.ResponseWriter, r *http.Request) {
	ms, err := strconv.Atoi(mux.Vars(r)["ms"])
	if err != nil || ms < 0 {
		http.Error(w, "seek position must be a non-negative number", http.StatusBadRequest)
		return
	}
	h.send(w, models.Event{Kind: models.EventSeek, Position: ms})
}

func writeJSON(w http.ResponseWriter, v any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("write response failed", "error", err)
	}
}
