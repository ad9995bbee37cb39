package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	KnownHosts = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "go_peerseed",
		Name:      "known_hosts",
		Help:      "Current number of distinct addresses in the host registry",
	})

	SeedRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "go_peerseed",
		Name:      "seed_runs_total",
		Help:      "Total seeding runs by result",
	}, []string{"result"})

	SeedAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "go_peerseed",
		Name:      "seed_attempts_total",
		Help:      "Total per-seed contact attempts by outcome",
	}, []string{"result"})

	AddressesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "go_peerseed",
		Name:      "addresses_received_total",
		Help:      "Total addresses received from seeds (before dedup)",
	})

	AddressesStored = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "go_peerseed",
		Name:      "addresses_stored_total",
		Help:      "Total address store operations submitted to the registry",
	})

	StoreFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "go_peerseed",
		Name:      "store_failures_total",
		Help:      "Total failed address store operations",
	})

	SeedRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "go_peerseed",
		Subsystem: "mgmt",
		Name:      "seed_requests_total",
		Help:      "Total seeding runs triggered via the management endpoint",
	}, []string{"result"})

	GRPCConnDials = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "go_peerseed",
		Subsystem: "grpc_conn",
		Name:      "dials_total",
		Help:      "Total number of new gRPC connections dialed",
	})
	GRPCConnReuse = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "go_peerseed",
		Subsystem: "grpc_conn",
		Name:      "reuse_total",
		Help:      "Total number of gRPC connection reuses from cache",
	})
	GRPCConnEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "go_peerseed",
		Subsystem: "grpc_conn",
		Name:      "evictions_total",
		Help:      "Total number of cached gRPC connections evicted",
	})
	GRPCConnActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "go_peerseed",
		Subsystem: "grpc_conn",
		Name:      "active",
		Help:      "Number of active cached gRPC connections",
	})
)

// Register registers metrics into the default Prometheus registry (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(KnownHosts)
		prometheus.MustRegister(SeedRuns)
		prometheus.MustRegister(SeedAttempts)
		prometheus.MustRegister(AddressesReceived)
		prometheus.MustRegister(AddressesStored)
		prometheus.MustRegister(StoreFailures)
		prometheus.MustRegister(SeedRequests)
		prometheus.MustRegister(GRPCConnDials)
		prometheus.MustRegister(GRPCConnReuse)
		prometheus.MustRegister(GRPCConnEvictions)
		prometheus.MustRegister(GRPCConnActive)
	})
}
