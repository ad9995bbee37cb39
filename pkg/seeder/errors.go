package seeder

import "errors"

var (
	// ErrNoNewHosts is the run verdict when every seed was contacted (or
	// failed) and the host registry did not grow.
	ErrNoNewHosts = errors.New("seeder: no new hosts discovered")
)
