package grpc

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"

	"github.com/amirimatin/go-peerseed/pkg/observability/tracing"
	"github.com/amirimatin/go-peerseed/pkg/transport"
)

// Server implements transport.RPCServer over gRPC using a JSON codec.
type Server struct {
	mu     sync.Mutex
	bind   string
	addr   string
	lis    net.Listener
	srv    *grpc.Server
	tlsCfg *tls.Config
}

func NewServer(bind string) *Server { return &Server{bind: bind} }

// UseTLS enables TLS for the gRPC server using the provided config.
func (s *Server) UseTLS(cfg *tls.Config) *Server { s.tlsCfg = cfg; return s }

// internal request/response types used over the gRPC JSON codec
type empty struct{}
type statusBlob struct {
	Data []byte `json:"data"`
}

// managementServer defines the methods we expose.
type managementServer interface {
	GetStatus(ctx context.Context, in *empty) (*statusBlob, error)
	Seed(ctx context.Context, in *transport.SeedRequest) (*transport.SeedResponse, error)
	GetAddrs(ctx context.Context, in *empty) (*statusBlob, error)
}

type mgmtImpl struct {
	status transport.StatusFunc
	seed   transport.SeedFunc
	addrs  transport.AddrsFunc
}

func (m *mgmtImpl) GetStatus(ctx context.Context, _ *empty) (*statusBlob, error) {
	ctx, end := tracing.StartSpan(ctx, "grpc.status")
	defer end()
	b, err := m.status(ctx)
	if err != nil {
		return nil, err
	}
	return &statusBlob{Data: b}, nil
}

func (m *mgmtImpl) Seed(ctx context.Context, in *transport.SeedRequest) (*transport.SeedResponse, error) {
	if in == nil {
		in = &transport.SeedRequest{}
	}
	if m.seed == nil {
		return &transport.SeedResponse{Error: "seed not supported"}, nil
	}
	ctx, end := tracing.StartSpan(ctx, "grpc.seed")
	defer end()
	out, err := m.seed(ctx, *in)
	if err != nil {
		if out.Error == "" {
			out.Error = err.Error()
		}
		return &out, nil
	}
	return &out, nil
}

func (m *mgmtImpl) GetAddrs(ctx context.Context, _ *empty) (*statusBlob, error) {
	if m.addrs == nil {
		return &statusBlob{}, nil
	}
	ctx, end := tracing.StartSpan(ctx, "grpc.addrs")
	defer end()
	b, err := m.addrs(ctx)
	if err != nil {
		return nil, err
	}
	return &statusBlob{Data: b}, nil
}

// Service descriptor and handlers (hand-written, no codegen required)
var _Management_serviceDesc = grpc.ServiceDesc{
	ServiceName: "peerseed.v1.Management",
	HandlerType: (*managementServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: _Management_GetStatus_Handler},
		{MethodName: "Seed", Handler: _Management_Seed_Handler},
		{MethodName: "GetAddrs", Handler: _Management_GetAddrs_Handler},
	},
}

func _Management_GetStatus_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(managementServer).GetStatus(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/peerseed.v1.Management/GetStatus"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(managementServer).GetStatus(ctx, req.(*empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Management_Seed_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(transport.SeedRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(managementServer).Seed(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/peerseed.v1.Management/Seed"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(managementServer).Seed(ctx, req.(*transport.SeedRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func _Management_GetAddrs_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(managementServer).GetAddrs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/peerseed.v1.Management/GetAddrs"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(managementServer).GetAddrs(ctx, req.(*empty))
	}
	return interceptor(ctx, in, info, handler)
}

func (s *Server) Start(ctx context.Context, status transport.StatusFunc, seed transport.SeedFunc, addrs transport.AddrsFunc) error {
	lis, err := net.Listen("tcp", s.bind)
	if err != nil {
		return err
	}
	// Force JSON codec to avoid requiring protobuf types
	var opts []grpc.ServerOption
	opts = append(opts, grpc.ForceServerCodec(jsonCodec{}))
	opts = append(opts, grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{MinTime: 5 * time.Second, PermitWithoutStream: true}))
	opts = append(opts, grpc.KeepaliveParams(keepalive.ServerParameters{Time: 30 * time.Second, Timeout: 10 * time.Second}))
	if s.tlsCfg != nil {
		opts = append(opts, grpc.Creds(credentials.NewTLS(s.tlsCfg)))
	}
	srv := grpc.NewServer(opts...)

	s.mu.Lock()
	s.lis = lis
	s.addr = lis.Addr().String()
	s.srv = srv
	s.mu.Unlock()

	// Health service (always serving for now)
	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)
	// Register management service
	srv.RegisterService(&_Management_serviceDesc, &mgmtImpl{status: status, seed: seed, addrs: addrs})

	go func() {
		<-ctx.Done()
		// Graceful stop with a small timeout fallback
		ch := make(chan struct{})
		go func() { srv.GracefulStop(); close(ch) }()
		select {
		case <-ch:
		case <-time.After(2 * time.Second):
			srv.Stop()
		}
	}()
	go func() { _ = srv.Serve(lis) }()
	return nil
}

// Addr returns the listening address once started, or the configured bind
// address.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.addr != "" {
		return s.addr
	}
	return s.bind
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	lis := s.lis
	s.srv = nil
	s.lis = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	ch := make(chan struct{})
	go func() { srv.GracefulStop(); close(ch) }()
	select {
	case <-ch:
	case <-ctx.Done():
		srv.Stop()
	}
	if lis != nil {
		_ = lis.Close()
	}
	return nil
}

var _ transport.RPCServer = (*Server)(nil)
