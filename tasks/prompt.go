package tasks

import (
	"context"
	"log/slog"

	"github.com/spdeepak/offlinecache/kv"
)

// DismissedKey is the slot remembering that the user turned down installation.
const DismissedKey = "install-dismissed"

// Outcome is the user's answer to an install offer.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDismissed Outcome = "dismissed"
)

// InstallPrompt decides whether to offer installing the app.
type InstallPrompt struct {
	slot      kv.Store
	messenger Messenger
}

func NewInstallPrompt(slot kv.Store, messenger Messenger) *InstallPrompt {
	if messenger == nil {
		messenger = discardMessenger{}
	}
	return &InstallPrompt{slot: slot, messenger: messenger}
}

// ShouldShow reports whether the offer may be shown: never once dismissed
// or when the app already runs installed.
func (p *InstallPrompt) ShouldShow(ctx context.Context, installed bool) bool {
	if installed {
		return false
	}
	return !p.Dismissed(ctx)
}

// Dismissed reads the suppression flag. A read failure counts as not dismissed.
func (p *InstallPrompt) Dismissed(ctx context.Context) bool {
	value, ok, err := p.slot.Get(ctx, DismissedKey)
	if err != nil {
		slog.Warn("Failed to read install prompt flag", slog.Any("error", err))
		return false
	}
	return ok && string(value) == "true"
}

// Dismiss hides the offer for good.
func (p *InstallPrompt) Dismiss(ctx context.Context) error {
	return p.slot.Put(ctx, DismissedKey, []byte("true"))
}

// Resolve handles the user's answer to a shown offer.
func (p *InstallPrompt) Resolve(outcome Outcome) {
	if outcome == OutcomeAccepted {
		p.messenger.Show(KindSuccess, "Thanks for installing!")
	}
}

// Installed handles the app having been installed.
func (p *InstallPrompt) Installed() {
	p.messenger.Show(KindSuccess, "App installed successfully!")
}
