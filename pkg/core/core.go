// Package core defines the domain types and contracts shared by the
// digest bot components.
package core

import "context"

// Notifier delivers a formatted digest to a single Telegram user.
type Notifier interface {
	Send(userID int64, text string) error
}

// SnapshotProvider returns the freshest market snapshot available.
// Implementations may serve a stale snapshot when the upstream fails.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}
