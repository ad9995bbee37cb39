package node

import "time"

// NodeStatus is a high-level, JSON-serializable snapshot of the node suitable
// for the management /status endpoint and tooling.
type NodeStatus struct {
	// Name is the configured node name.
	Name string
	// Healthy indicates the node is started and not stopped.
	Healthy bool
	// KnownHosts is the current size of the host registry.
	KnownHosts int
	// Seeds lists the seed endpoints the node currently resolves.
	Seeds []string
	// LastRunAt is the completion time of the most recent seeding run, zero
	// when no run has completed yet.
	LastRunAt time.Time
	// LastResult summarizes the most recent run ("ok", "no_new_hosts", ...).
	LastResult string
	// LastNewHosts is the number of hosts the most recent run added.
	LastNewHosts int
	// Warnings contains any non-fatal observations.
	Warnings []string
}
