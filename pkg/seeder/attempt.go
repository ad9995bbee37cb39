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
	"github.com/amirimatin/go-peerseed/pkg/wire"
)

type attemptState int

const (
	stateIdle attemptState = iota
	stateConnecting
	stateConnected
	stateHandshakeInFlight
	stateAddressRequested
	stateAddressReceived
	stateTerminated
)

// attempt drives one seed through connect, handshake, address request and
// response. No matter how it terminates (refusal, handshake failure, a
// response, a disconnect, the deadline) the attempt reports to the run's
// completion barrier exactly once; per-seed failures are absorbed and never
// become the run's error.
type attempt struct {
	seed       discovery.Endpoint
	connector  network.Connector
	handshaker network.Handshaker
	registry   hosts.Registry
	logger     *log.Logger
	timeout    time.Duration
	stores     *sync.WaitGroup
	complete   *syncutil.Barrier

	mu       sync.Mutex
	state    attemptState
	signaled bool
	sess     network.Session

	// closed once the attempt has reported, releasing the deadline watcher
	done chan struct{}
}

func newAttempt(seed discovery.Endpoint, opts Options, stores *sync.WaitGroup, complete *syncutil.Barrier) *attempt {
	return &attempt{
		seed:       seed,
		connector:  opts.Connector,
		handshaker: opts.Handshaker,
		registry:   opts.Registry,
		logger:     opts.Logger,
		timeout:    opts.AttemptTimeout,
		stores:     stores,
		complete:   complete,
		done:       make(chan struct{}),
	}
}

// finish reports the attempt's single outcome to the barrier. The first
// terminal branch to arrive wins; later ones (a duplicate stop notification,
// a late response, the deadline) are no-ops.
func (a *attempt) finish(result string) {
	a.mu.Lock()
	if a.signaled {
		a.mu.Unlock()
		return
	}
	a.signaled = true
	a.state = stateTerminated
	a.mu.Unlock()

	close(a.done)
	obsmetrics.SeedAttempts.WithLabelValues(result).Inc()
	a.complete.Signal(nil)
}

func (a *attempt) setState(st attemptState) {
	a.mu.Lock()
	if !a.signaled {
		a.state = st
	}
	a.mu.Unlock()
}

func (a *attempt) setSession(s network.Session) {
	a.mu.Lock()
	a.sess = s
	a.mu.Unlock()
}

func (a *attempt) session() network.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sess
}

func (a *attempt) run(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, a.timeout)
	go a.watchDeadline(ctx, cancel)

	a.setState(stateConnecting)
	logutil.Infof(a.logger, "contacting seed [%s]", a.seed)

	sess, err := a.connector.Connect(ctx, a.seed)
	if err != nil {
		logutil.Infof(a.logger, "failure contacting seed [%s]: %v", a.seed, err)
		a.finish("connect_failed")
		return
	}
	a.setSession(sess)
	a.setState(stateConnected)
	logutil.Infof(a.logger, "got seed [%s] as [%s]", a.seed, sess.RemoteAddr())

	sess.SubscribeStop(a.handleStop)

	a.setState(stateHandshakeInFlight)
	const relay = false // seeding sessions never want unsolicited inventory
	if err := a.handshaker.Perform(ctx, sess, relay); err != nil {
		logutil.Debugf(a.logger, "failure in handshake with seed [%s]: %v", sess.RemoteAddr(), err)
		a.finish("handshake_failed")
		sess.Stop(network.ErrChannelStopped)
		return
	}

	sess.SubscribeAddrs(func(msg *wire.AddrMessage) { a.handleReceive(sess, msg) })
	sess.Start()

	if err := sess.Send(ctx, &wire.GetAddrMessage{}); err != nil {
		logutil.Debugf(a.logger, "failure sending get address to seed [%s]: %v", a.seed, err)
		a.finish("send_failed")
		sess.Stop(network.ErrChannelStopped)
		return
	}
	a.setState(stateAddressRequested)
}

// handleStop observes the session ending for any reason, including our own
// close request after a response. The signaled guard in finish keeps this
// from double-reporting an attempt that already delivered its outcome.
func (a *attempt) handleStop(reason error) {
	if reason != nil && !errors.Is(reason, network.ErrChannelStopped) {
		logutil.Debugf(a.logger, "seed channel stopped [%s]: %v", a.seed, reason)
	}
	a.finish("disconnected")
}

// handleReceive completes the attempt as soon as a response arrives; storing
// the addresses is fire-and-forget and never delays or fails the attempt. The
// stores are registered under the lock so the run's verdict, which waits for
// them, cannot race a concurrent deadline.
func (a *attempt) handleReceive(sess network.Session, msg *wire.AddrMessage) {
	a.mu.Lock()
	if a.signaled {
		a.mu.Unlock()
		return
	}
	a.state = stateAddressReceived
	a.stores.Add(len(msg.Addresses))
	a.mu.Unlock()

	logutil.Infof(a.logger, "storing addresses from seed [%s] (%d)", a.seed, len(msg.Addresses))
	obsmetrics.AddressesReceived.Add(float64(len(msg.Addresses)))

	for _, addr := range msg.Addresses {
		go a.store(addr)
	}
	a.finish("ok")

	// The close request also keeps the session referenced until the
	// response has been fully read.
	sess.Stop(network.ErrChannelStopped)
}

func (a *attempt) store(addr wire.NetAddress) {
	defer a.stores.Done()
	obsmetrics.AddressesStored.Inc()
	if err := a.registry.Store(addr); err != nil {
		obsmetrics.StoreFailures.Inc()
		logutil.Errorf(a.logger, "failure storing address from seed: %v", err)
	}
}

// watchDeadline tears the attempt down if its deadline expires first. When
// the attempt reports on its own, the watcher just releases the timer.
func (a *attempt) watchDeadline(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	select {
	case <-ctx.Done():
		a.finish("timeout")
		if sess := a.session(); sess != nil {
			sess.Stop(ctx.Err())
		}
	case <-a.done:
	}
}
