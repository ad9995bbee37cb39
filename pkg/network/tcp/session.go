package tcp

import (
	"bufio"
	"context"
	"log"
	"net"
	"sync"
	"time"

	"github.com/amirimatin/go-peerseed/pkg/internal/logutil"
	"github.com/amirimatin/go-peerseed/pkg/network"
	"github.com/amirimatin/go-peerseed/pkg/wire"
)

const defaultIOTimeout = 30 * time.Second

type session struct {
	conn   net.Conn
	reader *bufio.Reader
	magic  uint32
	logger *log.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	started  bool
	stopped  bool
	reason   error
	addrSubs []func(*wire.AddrMessage)
	stopSubs []func(error)
}

func newSession(conn net.Conn, magic uint32, logger *log.Logger) *session {
	return &session{
		conn:   conn,
		reader: bufio.NewReader(conn),
		magic:  magic,
		logger: logger,
	}
}

func (s *session) Send(ctx context.Context, msg wire.Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.conn.SetWriteDeadline(deadlineFrom(ctx))
	return wire.WriteMessage(s.conn, s.magic, msg)
}

func (s *session) Receive(ctx context.Context) (wire.Message, error) {
	_ = s.conn.SetReadDeadline(deadlineFrom(ctx))
	return wire.ReadMessage(s.reader, s.magic)
}

func (s *session) Start() {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()
	go s.dispatchLoop()
}

func (s *session) dispatchLoop() {
	_ = s.conn.SetReadDeadline(time.Time{})
	for {
		msg, err := wire.ReadMessage(s.reader, s.magic)
		if err != nil {
			s.Stop(err)
			return
		}
		switch m := msg.(type) {
		case *wire.AddrMessage:
			s.mu.Lock()
			subs := append(([]func(*wire.AddrMessage))(nil), s.addrSubs...)
			s.mu.Unlock()
			for _, fn := range subs {
				fn(m)
			}
		default:
			logutil.Debugf(s.logger, "ignoring %s from [%s]", msg.Command(), s.RemoteAddr())
		}
	}
}

func (s *session) SubscribeAddrs(fn func(*wire.AddrMessage)) {
	s.mu.Lock()
	s.addrSubs = append(s.addrSubs, fn)
	s.mu.Unlock()
}

func (s *session) SubscribeStop(fn func(error)) {
	s.mu.Lock()
	if s.stopped {
		reason := s.reason
		s.mu.Unlock()
		fn(reason)
		return
	}
	s.stopSubs = append(s.stopSubs, fn)
	s.mu.Unlock()
}

func (s *session) Stop(reason error) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.reason = reason
	subs := s.stopSubs
	s.stopSubs = nil
	s.mu.Unlock()

	_ = s.conn.Close()
	for _, fn := range subs {
		fn(reason)
	}
}

func (s *session) RemoteAddr() string {
	if addr := s.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

func deadlineFrom(ctx context.Context) time.Time {
	if dl, ok := ctx.Deadline(); ok {
		return dl
	}
	return time.Now().Add(defaultIOTimeout)
}

var _ network.Session = (*session)(nil)
