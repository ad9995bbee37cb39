//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"testing"
	"time"

	"github.com/amirimatin/go-peerseed/pkg/discovery"
	"github.com/amirimatin/go-peerseed/pkg/discovery/static"
	"github.com/amirimatin/go-peerseed/pkg/hosts"
	"github.com/amirimatin/go-peerseed/pkg/network/handshake"
	"github.com/amirimatin/go-peerseed/pkg/network/tcp"
	"github.com/amirimatin/go-peerseed/pkg/node"
	"github.com/amirimatin/go-peerseed/pkg/transport"
	mgmtgrpc "github.com/amirimatin/go-peerseed/pkg/transport/grpc"
	httpjson "github.com/amirimatin/go-peerseed/pkg/transport/httpjson"
	"github.com/amirimatin/go-peerseed/pkg/wire"
)

func startManagedNode(t *testing.T, ctx context.Context, srv transport.RPCServer, seeds ...string) *node.Node {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	var eps []discovery.Endpoint
	for _, s := range seeds {
		ep, err := discovery.ParseEndpoint(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		eps = append(eps, ep)
	}
	n, err := node.New(node.Options{
		Name:           "mgmt-node",
		Discovery:      static.New(eps...),
		Connector:      tcp.NewConnector(wire.TestnetMagic, logger),
		Handshaker:     handshake.New(1, logger),
		Registry:       hosts.NewMemory(),
		Logger:         logger,
		RPCServer:      srv,
		AttemptTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("node: %v", err)
	}
	if err := n.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = n.Close() })
	return n
}

func exerciseManagement(t *testing.T, ctx context.Context, cli transport.RPCClient, addr string) {
	t.Helper()

	// Fresh node: empty registry, no runs yet.
	data, err := cli.GetStatus(ctx, addr)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st node.NodeStatus
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("status decode: %v", err)
	}
	if !st.Healthy || st.KnownHosts != 0 {
		t.Fatalf("unexpected initial status: %+v", st)
	}

	// Waited trigger reports the verdict inline.
	resp, err := cli.PostSeed(ctx, addr, transport.SeedRequest{Wait: true})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if !resp.Accepted || resp.NewHosts != 3 || resp.Known != 3 {
		t.Fatalf("unexpected seed response: %+v", resp)
	}

	// Status and export reflect the run.
	data, err = cli.GetStatus(ctx, addr)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("status decode: %v", err)
	}
	if st.KnownHosts != 3 || st.LastResult != "ok" {
		t.Fatalf("unexpected status after seeding: %+v", st)
	}

	data, err = cli.GetAddrs(ctx, addr)
	if err != nil {
		t.Fatalf("addrs: %v", err)
	}
	var addrs []wire.NetAddress
	if err := json.Unmarshal(data, &addrs); err != nil {
		t.Fatalf("addrs decode: %v", err)
	}
	if len(addrs) != 3 {
		t.Fatalf("exported %d addrs, want 3", len(addrs))
	}
}

func TestManagement_HTTPJSON(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seed := startSeedServer(t, wire.TestnetMagic, []wire.NetAddress{mkNetAddr(11), mkNetAddr(12), mkNetAddr(13)})
	srv := httpjson.NewServer("127.0.0.1:0", log.New(io.Discard, "", 0))
	startManagedNode(t, ctx, srv, seed)

	cli := httpjson.NewClient(10 * time.Second)
	exerciseManagement(t, ctx, cli, srv.Addr())
}

func TestManagement_GRPC(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	seed := startSeedServer(t, wire.TestnetMagic, []wire.NetAddress{mkNetAddr(21), mkNetAddr(22), mkNetAddr(23)})
	srv := mgmtgrpc.NewServer("127.0.0.1:0")
	startManagedNode(t, ctx, srv, seed)

	cli := mgmtgrpc.NewClient(10 * time.Second)
	defer cli.Close()
	exerciseManagement(t, ctx, cli, srv.Addr())
}
