// Package scheduler drives the daily digest delivery loop.
package scheduler

import (
	"context"
	"time"

	"github.com/deagle/cryptodigest/pkg/core"
	"github.com/deagle/cryptodigest/pkg/logger"
	"github.com/deagle/cryptodigest/pkg/registry"
)

const (
	defaultInterval = 30 * time.Second
	defaultWindow   = 60 * time.Second
)

// Formatter renders a snapshot into the message text delivered to users.
type Formatter func(snapshot *core.Snapshot, now time.Time) string

// SleepFunc pauses for the given duration or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration)

// Scheduler polls the registry once per interval and delivers the
// digest to every user whose trigger time matches the current minute.
// A user is notified at most once per de-duplication window; the
// last-sent mark is updated whether or not delivery succeeds, so a
// failed send is not retried within the window. Last-sent state is
// process-lifetime only: a restart inside a matching minute can produce
// a duplicate, which is accepted.
type Scheduler struct {
	registry *registry.Registry
	provider core.SnapshotProvider
	notifier core.Notifier
	format   Formatter
	loc      *time.Location
	interval time.Duration
	window   time.Duration
	lastSent map[int64]time.Time
	now      func() time.Time
	sleep    SleepFunc
	log      logger.Logger
}

// Option configures a Scheduler instance.
type Option func(*Scheduler)

// WithInterval sets the poll interval.
func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = interval
	}
}

// WithWindow sets the per-user de-duplication window.
func WithWindow(window time.Duration) Option {
	return func(s *Scheduler) {
		s.window = window
	}
}

// WithClock replaces the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithSleep replaces the sleep function, used by tests.
func WithSleep(sleep SleepFunc) Option {
	return func(s *Scheduler) {
		s.sleep = sleep
	}
}

func New(
	reg *registry.Registry,
	provider core.SnapshotProvider,
	notifier core.Notifier,
	format Formatter,
	loc *time.Location,
	log logger.Logger,
	options ...Option,
) *Scheduler {
	scheduler := &Scheduler{
		registry: reg,
		provider: provider,
		notifier: notifier,
		format:   format,
		loc:      loc,
		interval: defaultInterval,
		window:   defaultWindow,
		lastSent: make(map[int64]time.Time),
		now:      time.Now,
		sleep:    contextSleep,
		log:      log,
	}

	for _, option := range options {
		option(scheduler)
	}

	return scheduler
}

// Run loops until ctx is canceled. Tick failures never stop the loop.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.WithField("interval", s.interval.String()).Info("notification scheduler started")

	for {
		if ctx.Err() != nil {
			s.log.Info("notification scheduler stopped")
			return
		}

		s.tick(ctx)
		s.sleep(ctx, s.interval)
	}
}

// tick runs one scheduling pass: resolve the current minute, obtain a
// snapshot, and deliver to every matching user outside their window.
func (s *Scheduler) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			s.log.WithField("panic", r).Error("scheduler tick failed")
		}
	}()

	now := s.now().In(s.loc)
	minute := now.Format("15:04")

	snapshot, err := s.provider.Snapshot(ctx)
	if err != nil {
		s.log.WithError(err).Debug("no snapshot available, skipping tick")
		return
	}

	text := s.format(snapshot, now)

	for userID, triggerTime := range s.registry.All() {
		if triggerTime != minute {
			continue
		}

		if last, ok := s.lastSent[userID]; ok && now.Sub(last) < s.window {
			continue
		}

		// One attempt per user per window, success or not.
		s.lastSent[userID] = now

		if err := s.notifier.Send(userID, text); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Error("digest delivery failed")
			continue
		}

		s.log.WithFields(map[string]any{
			"user_id": userID,
			"trigger": triggerTime,
		}).Info("digest delivered")
	}
}

func contextSleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
