package node

import "errors"

var (
	ErrNotStarted     = errors.New("node: not started")
	ErrStopped        = errors.New("node: stopped")
	ErrSeedInProgress = errors.New("node: seeding already in progress")
)
