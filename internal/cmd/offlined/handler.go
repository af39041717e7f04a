package offlined

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/spdeepak/offlinecache"
)

const maxPushPayload = 4 << 10

// logNotifier shows notifications as log lines; the proxy has no desktop.
type logNotifier struct{}

func (logNotifier) Show(_ context.Context, n offlinecache.Notification) error {
	slog.Info("Notification", slog.String("title", n.Title), slog.String("body", n.Body), slog.String("tag", n.Tag))
	return nil
}

func (logNotifier) Close(_ context.Context, tag string) error {
	slog.Debug("Notification closed", slog.String("tag", tag))
	return nil
}

type status struct {
	Version string                `json:"version"`
	State   string                `json:"state"`
	Scope   string                `json:"scope"`
	Clients []offlinecache.Client `json:"clients"`
}

// NewHandler routes /_worker/ control endpoints to the active worker and
// everything else through the registration.
func NewHandler(registration *offlinecache.Registration, clients *offlinecache.Clients) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /_worker/status", func(w http.ResponseWriter, r *http.Request) {
		active := registration.Active()
		if active == nil {
			http.Error(w, offlinecache.ErrNoActiveWorker.Error(), http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, status{
			Version: active.Version(),
			State:   active.State().String(),
			Scope:   active.Scope().String(),
			Clients: clients.MatchAll(),
		})
	})

	mux.HandleFunc("POST /_worker/clients", func(w http.ResponseWriter, r *http.Request) {
		url := r.URL.Query().Get("url")
		if url == "" {
			http.Error(w, "url is required", http.StatusBadRequest)
			return
		}
		writeJSON(w, clients.Add(url))
	})

	mux.HandleFunc("POST /_worker/push", func(w http.ResponseWriter, r *http.Request) {
		active := registration.Active()
		if active == nil {
			http.Error(w, offlinecache.ErrNoActiveWorker.Error(), http.StatusServiceUnavailable)
			return
		}
		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPushPayload))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := active.HandlePush(r.Context(), payload); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})

	mux.HandleFunc("POST /_worker/notificationclick", func(w http.ResponseWriter, r *http.Request) {
		active := registration.Active()
		if active == nil {
			http.Error(w, offlinecache.ErrNoActiveWorker.Error(), http.StatusServiceUnavailable)
			return
		}
		tag := r.URL.Query().Get("tag")
		if tag == "" {
			tag = offlinecache.NotificationTag
		}
		client, err := active.HandleNotificationClick(r.Context(), offlinecache.Notification{Tag: tag})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, client)
	})

	mux.HandleFunc("POST /_worker/sync", func(w http.ResponseWriter, r *http.Request) {
		active := registration.Active()
		if active == nil {
			http.Error(w, offlinecache.ErrNoActiveWorker.Error(), http.StatusServiceUnavailable)
			return
		}
		active.HandleSync(r.Context(), r.URL.Query().Get("tag"))
		w.WriteHeader(http.StatusNoContent)
	})

	mux.Handle("/", registration)
	return mux
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		slog.Debug("Failed to write response", slog.Any("error", err))
	}
}
