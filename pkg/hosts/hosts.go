// Package hosts implements the node's address book: every peer address
// harvested from the network lands here, deduplicated by ip:port.
package hosts

import (
	"sync"

	"github.com/amirimatin/go-peerseed/pkg/wire"
)

// Registry stores discovered peer addresses. Implementations must deduplicate
// internally and be safe for concurrent callers; storing an already known
// address is a successful no-op.
type Registry interface {
	// Size returns the number of distinct known addresses.
	Size() int

	// Store records one address.
	Store(addr wire.NetAddress) error

	// Addrs returns a snapshot of all known addresses.
	Addrs() []wire.NetAddress

	Close() error
}

// Memory is an in-process Registry. The zero value is not usable; construct
// with NewMemory.
type Memory struct {
	mu    sync.RWMutex
	known map[string]wire.NetAddress
}

func NewMemory() *Memory {
	return &Memory{known: make(map[string]wire.NetAddress)}
}

func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.known)
}

func (m *Memory) Store(addr wire.NetAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := addr.Key()
	if _, ok := m.known[key]; ok {
		return nil
	}
	m.known[key] = addr
	return nil
}

func (m *Memory) Addrs() []wire.NetAddress {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]wire.NetAddress, 0, len(m.known))
	for _, a := range m.known {
		out = append(out, a)
	}
	return out
}

func (m *Memory) Close() error { return nil }

var _ Registry = (*Memory)(nil)
