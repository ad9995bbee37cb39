// Package node wires discovery, the seeder and the management endpoint into
// an embeddable runtime: start it, let it fill the host registry, query its
// status and trigger reseeding on demand.
package node

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/amirimatin/go-peerseed/pkg/internal/logutil"
	obsmetrics "github.com/amirimatin/go-peerseed/pkg/observability/metrics"
	"github.com/amirimatin/go-peerseed/pkg/seeder"
	"github.com/amirimatin/go-peerseed/pkg/transport"
)

// Facade exposes the high-level API for consumers.
type Facade interface {
	Start(ctx context.Context) error
	SeedNow(ctx context.Context) error
	Status(ctx context.Context) (*NodeStatus, error)
	Stop(ctx context.Context) error
}

// Node is the concrete implementation of the Facade.
type Node struct {
	opts Options
	sdr  *seeder.Seeder
	mu   sync.RWMutex
	run  struct {
		started bool
		closed  bool
	}
	stop chan struct{}
	eb   eventBus

	seedMu  sync.Mutex
	seeding bool

	last struct {
		mu       sync.Mutex
		at       time.Time
		result   string
		newHosts int
	}
}

// New constructs a new Node from validated options. It performs no network
// activity; call Start to launch the node.
func New(opts Options) (*Node, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	sdr, err := seeder.New(seeder.Options{
		Connector:      opts.Connector,
		Handshaker:     opts.Handshaker,
		Registry:       opts.Registry,
		Logger:         opts.Logger,
		AttemptTimeout: opts.AttemptTimeout,
	})
	if err != nil {
		return nil, err
	}
	return &Node{opts: opts, sdr: sdr, stop: make(chan struct{})}, nil
}

// Close is a convenience alias for Stop with a background context.
func (n *Node) Close() error {
	return n.Stop(context.Background())
}

// Start launches the management endpoint, runs the initial seeding pass when
// configured, and begins the periodic reseed loop.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.run.started {
		return nil
	}
	n.run.started = true
	// Register metrics once
	obsmetrics.Register()

	if rpcS := n.opts.RPCServer; rpcS != nil {
		statusFn := func(ctx context.Context) ([]byte, error) { return n.statusJSON(ctx) }
		seedFn := func(ctx context.Context, req transport.SeedRequest) (transport.SeedResponse, error) {
			return n.handleSeed(ctx, req)
		}
		addrsFn := func(ctx context.Context) ([]byte, error) { return n.addrsJSON(ctx) }
		if err := rpcS.Start(ctx, statusFn, seedFn, addrsFn); err != nil {
			return err
		}
		logutil.Infof(n.opts.Logger, "management endpoint listening at %s (status/seed/addrs/metrics/healthz)", rpcS.Addr())
	}

	if n.opts.SeedOnStart {
		go func() { _ = n.seedOnce(ctx) }()
	}
	if n.opts.ReseedInterval > 0 {
		go n.reseedLoop(ctx)
	}
	return nil
}

// SeedNow runs one seeding pass and blocks until it completes. At most one
// run is active at a time; concurrent callers get ErrSeedInProgress.
func (n *Node) SeedNow(ctx context.Context) error {
	n.mu.RLock()
	started, closed := n.run.started, n.run.closed
	n.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}
	if closed {
		return ErrStopped
	}
	return n.seedOnce(ctx)
}

// Status returns a snapshot of the node: registry size, resolved seeds and
// the outcome of the most recent run.
func (n *Node) Status(ctx context.Context) (*NodeStatus, error) {
	n.mu.RLock()
	started, closed := n.run.started, n.run.closed
	n.mu.RUnlock()

	s := &NodeStatus{
		Name:       n.opts.Name,
		Healthy:    started && !closed,
		KnownHosts: n.opts.Registry.Size(),
	}
	for _, ep := range n.opts.Discovery.Seeds() {
		s.Seeds = append(s.Seeds, ep.String())
	}
	n.last.mu.Lock()
	s.LastRunAt = n.last.at
	s.LastResult = n.last.result
	s.LastNewHosts = n.last.newHosts
	n.last.mu.Unlock()
	if s.LastResult == "no_new_hosts" {
		s.Warnings = append(s.Warnings, "last seeding run discovered no new hosts")
	}
	obsmetrics.KnownHosts.Set(float64(s.KnownHosts))
	return s, nil
}

// Stop gracefully shuts down the reseed loop, the management server and the
// host registry.
func (n *Node) Stop(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.run.closed {
		return nil
	}
	n.run.closed = true
	close(n.stop)
	if rpcS := n.opts.RPCServer; rpcS != nil {
		_ = rpcS.Stop(ctx)
	}
	return n.opts.Registry.Close()
}

// seedOnce runs a single seeding pass, records its outcome and publishes
// lifecycle events.
func (n *Node) seedOnce(ctx context.Context) error {
	n.seedMu.Lock()
	if n.seeding {
		n.seedMu.Unlock()
		return ErrSeedInProgress
	}
	n.seeding = true
	n.seedMu.Unlock()
	defer func() {
		n.seedMu.Lock()
		n.seeding = false
		n.seedMu.Unlock()
	}()

	before := n.opts.Registry.Size()
	n.eb.publish(Event{Type: EventSeedRunStarted, At: time.Now(), Known: before})

	err := n.sdr.Run(ctx, n.opts.Discovery.Seeds())

	after := n.opts.Registry.Size()
	n.recordRun(err, after-before)

	ev := Event{Type: EventSeedRunCompleted, At: time.Now(), NewHosts: after - before, Known: after}
	if err != nil {
		ev.Type = EventSeedRunFailed
		ev.Err = err.Error()
	}
	n.eb.publish(ev)
	if n.opts.OnSeedComplete != nil {
		n.opts.OnSeedComplete(err)
	}
	return err
}

func (n *Node) recordRun(err error, newHosts int) {
	result := "ok"
	switch {
	case errors.Is(err, seeder.ErrNoNewHosts):
		result = "no_new_hosts"
	case err != nil:
		result = "error"
	}
	n.last.mu.Lock()
	n.last.at = time.Now()
	n.last.result = result
	n.last.newHosts = newHosts
	n.last.mu.Unlock()
}

func (n *Node) reseedLoop(ctx context.Context) {
	ticker := time.NewTicker(n.opts.ReseedInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.stop:
			return
		case <-ticker.C:
			if err := n.seedOnce(ctx); err != nil && !errors.Is(err, ErrSeedInProgress) {
				logutil.Warnf(n.opts.Logger, "periodic reseed: %v", err)
			}
		}
	}
}

func (n *Node) statusJSON(ctx context.Context) ([]byte, error) {
	st, err := n.Status(ctx)
	if err != nil {
		return nil, err
	}
	return json.Marshal(st)
}

func (n *Node) addrsJSON(context.Context) ([]byte, error) {
	return json.Marshal(n.opts.Registry.Addrs())
}

// handleSeed serves management seed triggers. Waited requests block for the
// run's verdict; fire-and-forget requests only acknowledge the trigger.
func (n *Node) handleSeed(ctx context.Context, req transport.SeedRequest) (transport.SeedResponse, error) {
	if !req.Wait {
		go func() {
			if err := n.seedOnce(context.Background()); err != nil && !errors.Is(err, ErrSeedInProgress) {
				logutil.Warnf(n.opts.Logger, "triggered seeding: %v", err)
			}
		}()
		obsmetrics.SeedRequests.WithLabelValues("accepted").Inc()
		return transport.SeedResponse{Accepted: true, Known: n.opts.Registry.Size()}, nil
	}

	before := n.opts.Registry.Size()
	err := n.seedOnce(ctx)
	after := n.opts.Registry.Size()
	resp := transport.SeedResponse{Accepted: true, NewHosts: after - before, Known: after}
	switch {
	case errors.Is(err, ErrSeedInProgress):
		obsmetrics.SeedRequests.WithLabelValues("busy").Inc()
		resp.Accepted = false
		resp.Error = err.Error()
	case errors.Is(err, seeder.ErrNoNewHosts):
		obsmetrics.SeedRequests.WithLabelValues("no_new_hosts").Inc()
		resp.Error = err.Error()
	case err != nil:
		obsmetrics.SeedRequests.WithLabelValues("error").Inc()
		resp.Error = err.Error()
	default:
		obsmetrics.SeedRequests.WithLabelValues("ok").Inc()
	}
	return resp, nil
}

var _ Facade = (*Node)(nil)
