// Package registry keeps the per-user daily trigger times used by the
// notification scheduler.
package registry

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/samber/lo"

	"github.com/deagle/cryptodigest/pkg/core"
	"github.com/deagle/cryptodigest/pkg/logger"
)

// triggerTimeRe accepts zero-padded wall-clock times between 00:00 and 23:59.
var triggerTimeRe = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Registry maps Telegram user identifiers to daily trigger times.
// Absence from the registry means notifications are disabled for that
// user. Mutations are written through to the store synchronously;
// persistence failures are logged and the in-memory state is kept, so a
// restart before the next successful write loses the change.
type Registry struct {
	mu      sync.Mutex
	entries map[int64]string
	store   Store
	log     logger.Logger
}

func New(store Store, log logger.Logger) *Registry {
	return &Registry{
		entries: make(map[int64]string),
		store:   store,
		log:     log,
	}
}

// Load reconstructs the registry from the store. A missing or corrupt
// store yields an empty registry; startup never fails on it.
func (r *Registry) Load() {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries, err := r.store.All()
	if err != nil {
		r.log.WithError(err).Warn("failed to load notification registry, starting empty")
		r.entries = make(map[int64]string)
		return
	}

	r.entries = entries
	r.log.WithField("users", len(entries)).Info("notification registry loaded")
}

// Get returns the trigger time configured for the user, if any.
func (r *Registry) Get(userID int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	triggerTime, ok := r.entries[userID]
	return triggerTime, ok
}

// Set validates and stores a trigger time, overwriting any prior entry.
// Malformed input returns core.ErrInvalidTriggerTime without mutating
// state.
func (r *Registry) Set(userID int64, triggerTime string) error {
	if !triggerTimeRe.MatchString(triggerTime) {
		return fmt.Errorf("%w: %q", core.ErrInvalidTriggerTime, triggerTime)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[userID] = triggerTime
	if err := r.store.Put(userID, triggerTime); err != nil {
		r.log.WithError(err).WithField("user_id", userID).Error("failed to persist trigger time")
	}
	return nil
}

// Remove disables notifications for the user. It reports false when the
// user had no trigger time configured.
func (r *Registry) Remove(userID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[userID]; !ok {
		return false
	}

	delete(r.entries, userID)
	if err := r.store.Delete(userID); err != nil {
		r.log.WithError(err).WithField("user_id", userID).Error("failed to remove trigger time")
	}
	return true
}

// All returns a copy of the registry for iteration.
func (r *Registry) All() map[int64]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return lo.Assign(r.entries)
}
