// Package bootstrap assembles a node from high-level configuration: network
// selection, discovery backend, registry persistence, management transport
// and TLS. Applications embed the seeder by providing a Config and calling
// Build/Run.
package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/amirimatin/go-peerseed/pkg/discovery"
	dDNS "github.com/amirimatin/go-peerseed/pkg/discovery/dns"
	dFile "github.com/amirimatin/go-peerseed/pkg/discovery/file"
	dStatic "github.com/amirimatin/go-peerseed/pkg/discovery/static"
	"github.com/amirimatin/go-peerseed/pkg/hosts"
	"github.com/amirimatin/go-peerseed/pkg/network/handshake"
	"github.com/amirimatin/go-peerseed/pkg/network/tcp"
	"github.com/amirimatin/go-peerseed/pkg/node"
	tlsx "github.com/amirimatin/go-peerseed/pkg/security/tlsconfig"
	"github.com/amirimatin/go-peerseed/pkg/transport"
	mgmtgrpc "github.com/amirimatin/go-peerseed/pkg/transport/grpc"
	httpjson "github.com/amirimatin/go-peerseed/pkg/transport/httpjson"
	"github.com/amirimatin/go-peerseed/pkg/wire"
)

// Duration is a time.Duration that unmarshals from TOML strings like "30s".
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Config defines high-level inputs to assemble a node with sensible defaults.
type Config struct {
	// Identity
	Name string `toml:"name"`

	// Network selects the wire protocol parameters: "mainnet" (default) or
	// "testnet".
	Network string `toml:"network"`
	// Services advertised in the version handshake.
	Services uint64 `toml:"services"`

	// Management API (status/seed/addrs/metrics); empty disables it.
	MgmtAddr  string `toml:"mgmt_addr"`
	MgmtProto string `toml:"mgmt_proto"` // "http" (default) or "grpc"

	// Discovery settings
	DiscoveryKind string   `toml:"discovery"` // "static" (default), "dns", or "file"
	SeedsCSV      string   `toml:"seeds"`     // used when discovery=static
	DNSNamesCSV   string   `toml:"dns_names"` // used when discovery=dns
	DNSPort       int      `toml:"dns_port"`  // used when discovery=dns (A/AAAA)
	DiscRefresh   Duration `toml:"disc_refresh"`
	FilePath      string   `toml:"file_path"` // used when discovery=file
	FileEnv       string   `toml:"file_env"`  // used when discovery=file

	// Persistence: empty → in-memory registry, otherwise a bolt database
	// under this directory.
	DataDir string `toml:"data_dir"`

	// Seeding behavior
	AttemptTimeout Duration `toml:"attempt_timeout"`
	ReseedInterval Duration `toml:"reseed_interval"`
	SeedOnStart    bool     `toml:"seed_on_start"`

	// TLS (optional) for the management API
	TLSEnable     bool   `toml:"tls_enable"`
	TLSCA         string `toml:"tls_ca"`
	TLSCert       string `toml:"tls_cert"`
	TLSKey        string `toml:"tls_key"`
	TLSServerName string `toml:"tls_server_name"`
	TLSSkipVerify bool   `toml:"tls_skip_verify"`

	// Logger (optional). If nil, log.Default() is used.
	Logger *log.Logger `toml:"-"`

	// OnSeedComplete is invoked after every seeding run (optional).
	OnSeedComplete func(err error) `toml:"-"`
}

// LoadFile reads a TOML config file into cfg, overriding only the fields the
// file sets.
func LoadFile(path string, cfg *Config) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("bootstrap: config %s: %w", path, err)
	}
	return nil
}

// netParams resolves the wire magic and default peer port for the configured
// network.
func netParams(network string) (uint32, int, error) {
	switch network {
	case "", "mainnet":
		return wire.MainnetMagic, wire.MainnetPort, nil
	case "testnet":
		return wire.TestnetMagic, wire.TestnetPort, nil
	default:
		return 0, 0, fmt.Errorf("bootstrap: unknown network %q", network)
	}
}

// Build assembles a node.Node from Config without starting it.
func Build(cfg Config) (*node.Node, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	magic, defaultPort, err := netParams(cfg.Network)
	if err != nil {
		return nil, err
	}

	// Discovery backend
	var disc discovery.Discovery
	switch cfg.DiscoveryKind {
	case "dns":
		names := dStatic.ParseNames(cfg.DNSNamesCSV)
		opts := dDNS.Options{Names: names, Port: cfg.DNSPort, Logger: cfg.Logger}
		if opts.Port == 0 {
			opts.Port = defaultPort
		}
		if cfg.DiscRefresh > 0 {
			opts.Refresh = time.Duration(cfg.DiscRefresh)
		}
		disc = dDNS.New(opts)
	case "file":
		opts := dFile.Options{Path: cfg.FilePath, Env: cfg.FileEnv, Logger: cfg.Logger}
		if cfg.DiscRefresh > 0 {
			opts.Refresh = time.Duration(cfg.DiscRefresh)
		}
		disc = dFile.New(opts)
	default:
		disc = dStatic.New(dStatic.Parse(cfg.SeedsCSV)...)
	}

	// Host registry: bolt-backed when a data dir is configured.
	var registry hosts.Registry
	if cfg.DataDir != "" {
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		registry, err = hosts.OpenBolt(filepath.Join(cfg.DataDir, "hosts.db"))
		if err != nil {
			return nil, err
		}
	} else {
		registry = hosts.NewMemory()
	}

	// Management API
	var srv transport.RPCServer
	if cfg.MgmtAddr != "" {
		var srvTLS *tls.Config
		if cfg.TLSEnable {
			topts := tlsx.Options{Enable: true, CAFile: cfg.TLSCA, CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey, InsecureSkipVerify: cfg.TLSSkipVerify, ServerName: cfg.TLSServerName}
			// Prefer hot-reload configs to allow manual rotation by replacing files
			srvTLS, err = topts.ServerHotReload()
			if err != nil {
				return nil, err
			}
		}
		switch cfg.MgmtProto {
		case "grpc":
			s := mgmtgrpc.NewServer(cfg.MgmtAddr)
			if srvTLS != nil {
				s.UseTLS(srvTLS)
			}
			srv = s
		default:
			s := httpjson.NewServer(cfg.MgmtAddr, cfg.Logger)
			if srvTLS != nil {
				s.UseTLS(srvTLS)
			}
			srv = s
		}
	}

	opts := node.Options{
		Name:           cfg.Name,
		Discovery:      disc,
		Connector:      tcp.NewConnector(magic, cfg.Logger),
		Handshaker:     handshake.New(cfg.Services, cfg.Logger),
		Registry:       registry,
		Logger:         cfg.Logger,
		RPCServer:      srv,
		AttemptTimeout: time.Duration(cfg.AttemptTimeout),
		ReseedInterval: time.Duration(cfg.ReseedInterval),
		SeedOnStart:    cfg.SeedOnStart,
		OnSeedComplete: cfg.OnSeedComplete,
	}
	return node.New(opts)
}

// NewClient builds a management RPC client matching the Config's protocol and
// TLS settings, for tooling that talks to a running node.
func NewClient(cfg Config, timeout time.Duration) (transport.RPCClient, error) {
	var cliTLS *tls.Config
	if cfg.TLSEnable {
		topts := tlsx.Options{Enable: true, CAFile: cfg.TLSCA, CertFile: cfg.TLSCert, KeyFile: cfg.TLSKey, InsecureSkipVerify: cfg.TLSSkipVerify, ServerName: cfg.TLSServerName}
		c, err := topts.ClientHotReload()
		if err != nil {
			return nil, err
		}
		cliTLS = c
	}
	switch cfg.MgmtProto {
	case "grpc":
		c := mgmtgrpc.NewClient(timeout)
		if cliTLS != nil {
			c.UseTLS(cliTLS)
		}
		return c, nil
	default:
		c := httpjson.NewClient(timeout)
		if cliTLS != nil {
			c.UseTLS(cliTLS)
		}
		return c, nil
	}
}

// Run builds and starts the node, returning the instance for lifecycle
// control. The caller is responsible for calling Close() when finished.
func Run(ctx context.Context, cfg Config) (*node.Node, error) {
	n, err := Build(cfg)
	if err != nil {
		return nil, err
	}
	if err := n.Start(ctx); err != nil {
		return nil, err
	}
	return n, nil
}
