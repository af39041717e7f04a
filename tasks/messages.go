package tasks

import (
	"context"
	"log/slog"
)

// Kind is the severity of a user-facing message.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindInfo    Kind = "info"
)

// Messenger shows short-lived messages to the user.
type Messenger interface {
	Show(kind Kind, message string)
}

// MessengerFunc adapts a function to Messenger.
type MessengerFunc func(kind Kind, message string)

func (f MessengerFunc) Show(kind Kind, message string) { f(kind, message) }

// LogMessenger writes messages to the default slog logger.
type LogMessenger struct{}

func (LogMessenger) Show(kind Kind, message string) {
	level := slog.LevelInfo
	if kind == KindError {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, message, slog.String("kind", string(kind)))
}

type discardMessenger struct{}

func (discardMessenger) Show(Kind, string) {}
