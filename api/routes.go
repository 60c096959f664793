package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"lcdradio/handlers"
	"lcdradio/models"
	"lcdradio/services/catalog"
	"lcdradio/services/podcast"
)

// corsMiddleware lets the control page be served from anywhere on the LAN.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// NewRouter wires the web control surface. Every mutating route just queues
// an event for the player loop.
func NewRouter(events chan<- models.Event, b *handlers.Broadcaster, cat *catalog.Service, feeds *podcast.Service, log *slog.Logger) *mux.Router {
	player := handlers.NewPlayerHandler(events, b, log)
	podcasts := handlers.NewPodcastHandler(cat, feeds, events, log)

	r := mux.NewRouter()
	r.Use(corsMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", player.GetStatus).Methods("GET")
	api.HandleFunc("/events", b.StreamEvents).Methods("GET")

	api.HandleFunc("/channel/{channel:[0-9]+}", player.SelectChannel).Methods("POST")
	api.HandleFunc("/playpause", player.PlayPause).Methods("POST")
	api.HandleFunc("/volume/up", player.VolumeUp).Methods("POST")
	api.HandleFunc("/volume/down", player.VolumeDown).Methods("POST")
	api.HandleFunc("/volume/{volume:[0-9]+}", player.SetVolume).Methods("POST")
	api.HandleFunc("/track/next", player.NextTrack).Methods("POST")
	api.HandleFunc("/track/previous", player.PreviousTrack).Methods("POST")
	api.HandleFunc("/seek/{ms:[0-9]+}", player.Seek).Methods("POST")

	api.HandleFunc("/podcasts", podcasts.List).Methods("GET")
	api.HandleFunc("/podcasts", podcasts.Add).Methods("POST")
	api.HandleFunc("/podcasts", podcasts.Delete).Methods("DELETE")
	api.HandleFunc("/podcasts/episodes", podcasts.Episodes).Methods("GET")
	api.HandleFunc("/podcasts/play", podcasts.Play).Methods("POST")

	return r
}
