// Package transport defines the management RPC surface of a node: status
// inspection, on-demand seeding and address export. Implementations live in
// the httpjson and grpc subpackages.
package transport

import "context"

// StatusFunc returns a JSON-encoded status payload for management /status.
// Using []byte avoids import cycles on node types.
type StatusFunc func(ctx context.Context) ([]byte, error)

// SeedRequest asks the receiving node to run a seeding pass.
type SeedRequest struct {
	// Wait blocks the call until the run completes and reports its verdict.
	// When false the run is started in the background and the response only
	// acknowledges the trigger.
	Wait bool `json:"wait"`
}

// SeedResponse reports whether a run was started and, for waited runs, its
// outcome.
type SeedResponse struct {
	Accepted bool   `json:"accepted"`
	NewHosts int    `json:"newHosts"`
	Known    int    `json:"known"`
	Error    string `json:"error,omitempty"`
}

// SeedFunc handles seed trigger requests.
type SeedFunc func(ctx context.Context, req SeedRequest) (SeedResponse, error)

// AddrsFunc returns the JSON-encoded known addresses for export tooling.
type AddrsFunc func(ctx context.Context) ([]byte, error)

// RPCServer exposes the management endpoints (/status, /seed, /addrs) plus
// metrics and health probes for operational tooling.
type RPCServer interface {
	Start(ctx context.Context, status StatusFunc, seed SeedFunc, addrs AddrsFunc) error
	Addr() string
	Stop(ctx context.Context) error
}

// RPCClient performs management calls against a node using the chosen
// protocol (HTTP/JSON or gRPC with a JSON codec).
type RPCClient interface {
	GetStatus(ctx context.Context, addr string) ([]byte, error)
	PostSeed(ctx context.Context, addr string, req SeedRequest) (SeedResponse, error)
	GetAddrs(ctx context.Context, addr string) ([]byte, error)
}
