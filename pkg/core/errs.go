package core

import "errors"

var (
	ErrInvalidTriggerTime = errors.New("invalid trigger time, expected HH:MM")
	ErrRateLimited        = errors.New("upstream rate limited")
	ErrUpstreamStatus     = errors.New("unexpected upstream status")
	ErrNoSnapshot         = errors.New("no market snapshot available")
)
