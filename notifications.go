package offlinecache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

const (
	// NotificationTag groups task notifications so a newer one replaces the last.
	NotificationTag = "task-notification"
	// SyncTag is the background sync tag the application registers.
	SyncTag = "background-sync"
)

// Notification is a system notification raised by a push message.
type Notification struct {
	Title string
	Body  string
	Icon  string
	Badge string
	Tag   string
}

// Notifier displays and dismisses system notifications.
type Notifier interface {
	Show(ctx context.Context, n Notification) error
	Close(ctx context.Context, tag string) error
}

type pushPayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// HandlePush shows the notification described by a JSON push payload.
// An empty payload is ignored.
func (w *Worker) HandlePush(ctx context.Context, payload []byte) error {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var data pushPayload
	if err := json.Unmarshal(trimmed, &data); err != nil {
		return fmt.Errorf("decode push payload: %w", err)
	}
	if w.cfg.Notifier == nil {
		slog.Debug("Push received without notifier", slog.String("title", data.Title))
		return nil
	}
	icon, err := w.resolve("./manifest.json")
	if err != nil {
		return err
	}
	return w.cfg.Notifier.Show(ctx, Notification{
		Title: data.Title,
		Body:  data.Body,
		Icon:  icon.String(),
		Badge: icon.String(),
		Tag:   NotificationTag,
	})
}

// HandleNotificationClick closes n and opens or focuses the application root.
func (w *Worker) HandleNotificationClick(ctx context.Context, n Notification) (Client, error) {
	if w.cfg.Notifier != nil {
		if err := w.cfg.Notifier.Close(ctx, n.Tag); err != nil {
			slog.Warn("Failed to close notification", slog.String("tag", n.Tag), slog.Any("error", err))
		}
	}
	if w.cfg.Clients == nil {
		return Client{}, fmt.Errorf("open window: no clients registry")
	}
	root, err := w.resolve("./")
	if err != nil {
		return Client{}, err
	}
	client, _ := w.cfg.Clients.OpenWindow(root.String())
	return client, nil
}

// HandleSync is the background sync hook. Tasks are local only, so it just logs.
func (w *Worker) HandleSync(_ context.Context, tag string) {
	if tag == SyncTag {
		slog.Info("Background sync triggered", slog.String("version", w.cfg.Version))
	}
}
