// Package cli provides cobra commands for running and operating a seeder
// node: run, seed, status and addrs.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amirimatin/go-peerseed/pkg/bootstrap"
	tracing "github.com/amirimatin/go-peerseed/pkg/observability/tracing"
	"github.com/amirimatin/go-peerseed/pkg/transport"
)

// AddAll attaches seeder subcommands (run/seed/status/addrs) to the provided
// root command.
func AddAll(root *cobra.Command) {
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewSeedCmd())
	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewAddrsCmd())
}

// NewPeerseedCommand returns a parent command "peerseed" containing
// run/seed/status/addrs as subcommands.
func NewPeerseedCommand() *cobra.Command {
	parent := &cobra.Command{Use: "peerseed", Short: "peer seeding commands"}
	AddAll(parent)
	return parent
}

// NewRunCmd returns the "run" command used to start a seeder node.
func NewRunCmd() *cobra.Command {
	var (
		configPath                                          string
		name, network, seedsCSV, discoveryKind              string
		dnsNames, filePath, fileEnv, mgmtAddr, mgmtProto    string
		dnsPort                                             int
		discRefresh, attemptTimeout, reseedInterval         time.Duration
		seedOnStart, oneshot, tlsEnable, tlsSkip, traceFlag bool
		tlsCA, tlsCert, tlsKey, tlsServerName, dataDir      string
		services                                            uint64
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a seeder node",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			if traceFlag {
				shutdown, err := tracing.Setup(true)
				if err != nil {
					log.Printf("tracing setup error: %v", err)
				} else {
					defer func() { _ = shutdown(context.Background()) }()
				}
			}

			cfg := bootstrap.Config{Logger: log.Default()}
			if configPath != "" {
				if err := bootstrap.LoadFile(configPath, &cfg); err != nil {
					return err
				}
			}
			// Explicit flags override the config file.
			flags := cmd.Flags()
			setIf := func(flag string, apply func()) {
				if flags.Changed(flag) {
					apply()
				}
			}
			if cfg.Name == "" || flags.Changed("name") {
				cfg.Name = name
			}
			setIf("network", func() { cfg.Network = network })
			setIf("services", func() { cfg.Services = services })
			setIf("seeds", func() { cfg.SeedsCSV = seedsCSV })
			setIf("discovery", func() { cfg.DiscoveryKind = discoveryKind })
			setIf("dns-names", func() { cfg.DNSNamesCSV = dnsNames })
			setIf("dns-port", func() { cfg.DNSPort = dnsPort })
			setIf("disc-refresh", func() { cfg.DiscRefresh = bootstrap.Duration(discRefresh) })
			setIf("file-path", func() { cfg.FilePath = filePath })
			setIf("file-env", func() { cfg.FileEnv = fileEnv })
			setIf("mgmt-addr", func() { cfg.MgmtAddr = mgmtAddr })
			setIf("mgmt-proto", func() { cfg.MgmtProto = mgmtProto })
			setIf("data", func() { cfg.DataDir = dataDir })
			setIf("attempt-timeout", func() { cfg.AttemptTimeout = bootstrap.Duration(attemptTimeout) })
			setIf("reseed-interval", func() { cfg.ReseedInterval = bootstrap.Duration(reseedInterval) })
			setIf("seed-on-start", func() { cfg.SeedOnStart = seedOnStart })
			setIf("tls-enable", func() { cfg.TLSEnable = tlsEnable })
			setIf("tls-ca", func() { cfg.TLSCA = tlsCA })
			setIf("tls-cert", func() { cfg.TLSCert = tlsCert })
			setIf("tls-key", func() { cfg.TLSKey = tlsKey })
			setIf("tls-server-name", func() { cfg.TLSServerName = tlsServerName })
			setIf("tls-skip-verify", func() { cfg.TLSSkipVerify = tlsSkip })

			if oneshot {
				// Single pass: seed, print the verdict and exit.
				cfg.SeedOnStart = false
				cfg.ReseedInterval = 0
				n, err := bootstrap.Run(ctx, cfg)
				if err != nil {
					return err
				}
				defer n.Close()
				if err := n.SeedNow(ctx); err != nil {
					return err
				}
				st, err := n.Status(ctx)
				if err != nil {
					return err
				}
				return json.NewEncoder(os.Stdout).Encode(st)
			}

			n, err := bootstrap.Run(ctx, cfg)
			if err != nil {
				return err
			}
			defer n.Close()

			fmt.Println("seeder running. Press Ctrl+C to exit.")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to TOML config file")
	cmd.Flags().StringVar(&name, "name", "peerseed", "node name")
	cmd.Flags().StringVar(&network, "network", "mainnet", "wire network: mainnet|testnet")
	cmd.Flags().Uint64Var(&services, "services", 0, "service bits advertised during handshake")
	cmd.Flags().StringVar(&seedsCSV, "seeds", "", "comma-separated seed endpoints (host:port) for discovery=static")
	cmd.Flags().StringVar(&discoveryKind, "discovery", "static", "discovery backend: static|dns|file")
	cmd.Flags().StringVar(&dnsNames, "dns-names", "", "comma-separated DNS names or SRV records (e.g., _peers._tcp.example.com)")
	cmd.Flags().IntVar(&dnsPort, "dns-port", 0, "port used for A/AAAA lookups (default: network peer port)")
	cmd.Flags().DurationVar(&discRefresh, "disc-refresh", 5*time.Second, "discovery refresh/cache duration")
	cmd.Flags().StringVar(&filePath, "file-path", "", "path or glob to a file with seeds (one per line or CSV)")
	cmd.Flags().StringVar(&fileEnv, "file-env", "", "ENV var name containing CSV seeds; overrides file when set")
	cmd.Flags().StringVar(&mgmtAddr, "mgmt-addr", ":18650", "management address (tcp); empty disables the endpoint")
	cmd.Flags().StringVar(&mgmtProto, "mgmt-proto", "http", "management RPC protocol: http|grpc")
	cmd.Flags().StringVar(&dataDir, "data", "", "data dir for the persistent host registry (empty: in-memory)")
	cmd.Flags().DurationVar(&attemptTimeout, "attempt-timeout", 30*time.Second, "per-seed contact timeout")
	cmd.Flags().DurationVar(&reseedInterval, "reseed-interval", 0, "periodic reseed interval (0 disables)")
	cmd.Flags().BoolVar(&seedOnStart, "seed-on-start", true, "run a seeding pass at startup")
	cmd.Flags().BoolVar(&oneshot, "oneshot", false, "run one seeding pass, print status and exit")
	cmd.Flags().BoolVar(&tlsEnable, "tls-enable", false, "enable mTLS for management transport")
	cmd.Flags().StringVar(&tlsCA, "tls-ca", "", "path to CA cert (PEM)")
	cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "path to node certificate (PEM)")
	cmd.Flags().StringVar(&tlsKey, "tls-key", "", "path to node private key (PEM)")
	cmd.Flags().BoolVar(&tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
	cmd.Flags().StringVar(&tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
	cmd.Flags().BoolVar(&traceFlag, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
	return cmd
}

// clientFlags carries the flags shared by the commands that call a running
// node's management endpoint.
type clientFlags struct {
	addr, mgmtProto                       string
	timeout                               time.Duration
	tlsEnable, tlsSkip                    bool
	tlsCA, tlsCert, tlsKey, tlsServerName string
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.addr, "addr", "127.0.0.1:18650", "management address of a node (host:port)")
	cmd.Flags().StringVar(&f.mgmtProto, "mgmt-proto", "http", "management RPC protocol: http|grpc")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 3*time.Second, "request timeout")
	cmd.Flags().BoolVar(&f.tlsEnable, "tls-enable", false, "enable mTLS for management transport")
	cmd.Flags().StringVar(&f.tlsCA, "tls-ca", "", "path to CA cert (PEM)")
	cmd.Flags().StringVar(&f.tlsCert, "tls-cert", "", "path to client certificate (PEM)")
	cmd.Flags().StringVar(&f.tlsKey, "tls-key", "", "path to client private key (PEM)")
	cmd.Flags().BoolVar(&f.tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
	cmd.Flags().StringVar(&f.tlsServerName, "tls-server-name", "", "expected server name (for TLS validation)")
}

func (f *clientFlags) client() (transport.RPCClient, error) {
	cfg := bootstrap.Config{
		MgmtProto:     f.mgmtProto,
		TLSEnable:     f.tlsEnable,
		TLSCA:         f.tlsCA,
		TLSCert:       f.tlsCert,
		TLSKey:        f.tlsKey,
		TLSServerName: f.tlsServerName,
		TLSSkipVerify: f.tlsSkip,
	}
	return bootstrap.NewClient(cfg, f.timeout)
}

// NewStatusCmd returns the "status" command.
func NewStatusCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Fetch node status as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := f.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
			defer cancel()
			data, err := client.GetStatus(ctx, f.addr)
			if err != nil {
				return fmt.Errorf("status error: %w", err)
			}
			os.Stdout.Write(data)
			if len(data) == 0 || data[len(data)-1] != '\n' {
				os.Stdout.Write([]byte("\n"))
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

// NewSeedCmd returns the "seed" command, triggering a seeding run on a
// running node.
func NewSeedCmd() *cobra.Command {
	var (
		f    clientFlags
		wait bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Trigger a seeding run on a node",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := f.client()
			if err != nil {
				return err
			}
			ctx := context.Background()
			if !wait {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, f.timeout)
				defer cancel()
			}
			resp, err := client.PostSeed(ctx, f.addr, transport.SeedRequest{Wait: wait})
			if err != nil {
				return fmt.Errorf("seed error: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(resp)
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVar(&wait, "wait", false, "block until the run completes and report its verdict")
	return cmd
}

// NewAddrsCmd returns the "addrs" command, exporting the known addresses.
func NewAddrsCmd() *cobra.Command {
	var f clientFlags
	cmd := &cobra.Command{
		Use:   "addrs",
		Short: "Export the known addresses as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := f.client()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
			defer cancel()
			data, err := client.GetAddrs(ctx, f.addr)
			if err != nil {
				return fmt.Errorf("addrs error: %w", err)
			}
			os.Stdout.Write(data)
			if len(data) == 0 || data[len(data)-1] != '\n' {
				os.Stdout.Write([]byte("\n"))
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx, cancel
}
