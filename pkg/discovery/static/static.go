package static

import (
	"strings"

	"github.com/amirimatin/go-peerseed/pkg/discovery"
)

type staticSeeds struct {
	seeds []discovery.Endpoint
}

func (s *staticSeeds) Seeds() []discovery.Endpoint {
	return append([]discovery.Endpoint(nil), s.seeds...)
}

// New returns a Discovery that always returns the given endpoints. Duplicates
// are preserved; seeding treats each entry as an independent contact attempt.
func New(seeds ...discovery.Endpoint) discovery.Discovery {
	return &staticSeeds{seeds: append([]discovery.Endpoint(nil), seeds...)}
}

// ParseNames splits a comma-separated list into trimmed, non-empty strings.
// Useful for DNS name lists where entries are not host:port endpoints.
func ParseNames(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Parse converts a comma-separated "host:port" list into endpoints. Malformed
// entries are skipped.
func Parse(csv string) []discovery.Endpoint {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]discovery.Endpoint, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		ep, err := discovery.ParseEndpoint(p)
		if err != nil {
			continue
		}
		out = append(out, ep)
	}
	return out
}
