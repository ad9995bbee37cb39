// Package seeder bootstraps the host registry by contacting the configured
// seed endpoints concurrently, harvesting their known peer addresses and
// merging them into the registry. Individual seed failures are tolerated; a
// run only fails when it produced no new hosts at all.
package seeder

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/amirimatin/go-peerseed/pkg/discovery"
	"github.com/amirimatin/go-peerseed/pkg/hosts"
	"github.com/amirimatin/go-peerseed/pkg/internal/logutil"
	"github.com/amirimatin/go-peerseed/pkg/internal/syncutil"
	"github.com/amirimatin/go-peerseed/pkg/network"
	obsmetrics "github.com/amirimatin/go-peerseed/pkg/observability/metrics"
	"github.com/amirimatin/go-peerseed/pkg/observability/tracing"
)

// DefaultAttemptTimeout bounds one seed's whole contact chain (dial,
// handshake, request, response). A seed that accepts the connection but never
// answers must not stall the run.
const DefaultAttemptTimeout = 30 * time.Second

// Options carries the collaborators a Seeder fans out over.
type Options struct {
	// Connector establishes sessions to seeds (required).
	Connector network.Connector
	// Handshaker negotiates the protocol on new sessions (required).
	Handshaker network.Handshaker
	// Registry receives every harvested address (required).
	Registry hosts.Registry
	// Logger is used for operational messages.
	Logger *log.Logger
	// AttemptTimeout bounds each seed attempt; zero means DefaultAttemptTimeout.
	AttemptTimeout time.Duration
}

// Validate performs a minimal validation of Options.
func (o Options) Validate() error {
	if o.Connector == nil {
		return errors.New("seeder: nil Connector")
	}
	if o.Handshaker == nil {
		return errors.New("seeder: nil Handshaker")
	}
	if o.Registry == nil {
		return errors.New("seeder: nil Registry")
	}
	return nil
}

// Seeder runs seeding passes. One Seeder may be reused across runs; each run
// gets its own completion state.
type Seeder struct {
	opts Options
}

// New constructs a Seeder from validated options.
func New(opts Options) (*Seeder, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = DefaultAttemptTimeout
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Seeder{opts: opts}, nil
}

// Start launches one concurrent attempt per seed and invokes done exactly
// once when every attempt has reported, with the run's verdict: nil when the
// registry grew, ErrNoNewHosts when it did not, or a run-level fault.
//
// An empty seed list completes immediately: done(nil) is called synchronously
// and no attempts are launched.
func (s *Seeder) Start(ctx context.Context, seeds []discovery.Endpoint, done func(error)) {
	if len(seeds) == 0 {
		logutil.Infof(s.opts.Logger, "no seeds configured")
		obsmetrics.SeedRuns.WithLabelValues("ok").Inc()
		done(nil)
		return
	}

	ctx, end := tracing.StartSpan(ctx, "seeder.run")
	hostStart := s.opts.Registry.Size()
	logutil.Infof(s.opts.Logger, "seeding from %d seeds (%d hosts known)", len(seeds), hostStart)

	// Attempts signal completion as soon as a response arrives and hand their
	// address stores off to goroutines. The verdict reads registry growth, so
	// it settles outstanding stores first; no attempt ever waits on another.
	var stores sync.WaitGroup
	complete := syncutil.New(len(seeds), func(err error) {
		end()
		stores.Wait()
		s.finish(err, hostStart, done)
	})
	for _, seed := range seeds {
		a := newAttempt(seed, s.opts, &stores, complete)
		go a.run(ctx)
	}
}

// Run is the blocking form of Start.
func (s *Seeder) Run(ctx context.Context, seeds []discovery.Endpoint) error {
	ch := make(chan error, 1)
	s.Start(ctx, seeds, func(err error) { ch <- err })
	select {
	case err := <-ch:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Seeder) finish(err error, hostStart int, done func(error)) {
	// A non-nil error here implies a full stop; individual seed failures
	// never surface this way.
	if err != nil {
		obsmetrics.SeedRuns.WithLabelValues("error").Inc()
		done(err)
		return
	}
	size := s.opts.Registry.Size()
	obsmetrics.KnownHosts.Set(float64(size))
	if size > hostStart {
		logutil.Infof(s.opts.Logger, "seeding complete: hosts %d -> %d", hostStart, size)
		obsmetrics.SeedRuns.WithLabelValues("ok").Inc()
		done(nil)
		return
	}
	logutil.Warnf(s.opts.Logger, "seeding produced no new hosts (%d known)", size)
	obsmetrics.SeedRuns.WithLabelValues("no_new_hosts").Inc()
	done(ErrNoNewHosts)
}
