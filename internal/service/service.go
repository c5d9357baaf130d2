// Package service implements the authoritative session service and the
// profile, progress, catalog and account operations around it. Services hold
// no per-session state; every cross-request guarantee comes from the store.
package service

import (
	"io"
	"log/slog"
	"time"
)

// Notifier pushes an event to a user's live connections. Delivery is best
// effort.
type Notifier interface {
	NotifyUser(userID, eventType string, payload any)
}

// Clock returns the current time
type Clock func() time.Time

func orDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return logger
}
