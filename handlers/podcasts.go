package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"lcdradio/models"
	"lcdradio/services/catalog"
	"lcdradio/services/podcast"
)

// PodcastHandler manages podcast subscriptions and hands selected episodes
// to the player.
type PodcastHandler struct {
	catalog *catalog.Service
	feeds   *podcast.Service
	events  chan<- models.Event
	log     *slog.Logger
}

func NewPodcastHandler(cat *catalog.Service, feeds *podcast.Service, events chan<- models.Event, log *slog.Logger) *PodcastHandler {
	return &PodcastHandler{catalog: cat, feeds: feeds, events: events, log: log}
}

func (h *PodcastHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.catalog.Podcasts(), h.log)
}

// Add takes a URL. A feed URL becomes a subscription stored under the
// feed's own title; anything else is handed straight to the player as a
// playable stream.
func (h *PodcastHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "body must be {\"url\": ...}", http.StatusBadRequest)
		return
	}

	isFeed, title, err := h.feeds.Inspect(r.Context(), req.URL)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if !isFeed {
		select {
		case h.events <- models.Event{Kind: models.EventPlayPodcast, URL: req.URL}:
			w.WriteHeader(http.StatusAccepted)
		default:
			http.Error(w, "player busy", http.StatusServiceUnavailable)
		}
		return
	}

	sub := models.PodcastSub{Title: title, URL: req.URL}
	if err := h.catalog.AddPodcast(sub); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, sub, h.log)
}

func (h *PodcastHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "body must be {\"url\": ...}", http.StatusBadRequest)
		return
	}
	if err := h.catalog.RemovePodcast(req.URL); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Episodes fetches a subscribed feed and returns its episode table.
func (h *PodcastHandler) Episodes(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	if url == "" {
		http.Error(w, "url query parameter required", http.StatusBadRequest)
		return
	}
	episodes, err := h.feeds.Episodes(r.Context(), url)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, episodes, h.log)
}

// Play queues one episode on the player's podcast slot.
func (h *PodcastHandler) Play(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL   string `json:"url"`
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "body must name an episode url", http.StatusBadRequest)
		return
	}
	select {
	case h.events <- models.Event{Kind: models.EventPlayPodcast, URL: req.URL, Title: req.Title}:
		w.WriteHeader(http.StatusAccepted)
	default:
		http.Error(w, "player busy", http.StatusServiceUnavailable)
	}
}
