package discovery

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Endpoint identifies a well-known seed as host:port. Host may be a DNS name
// or a literal IP; it is resolved at connect time, not here.
type Endpoint struct {
	Host string
	Port int
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// ParseEndpoint converts "host:port" into an Endpoint.
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Endpoint{}, fmt.Errorf("discovery: invalid endpoint %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("discovery: invalid port in %q", s)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// Discovery abstracts how seed endpoints are provided.
// Implementations include static lists, DNS and file-backed sources.
type Discovery interface {
	Seeds() []Endpoint
}
