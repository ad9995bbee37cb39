package dns

import (
	"context"
	"log"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirimatin/go-peerseed/pkg/discovery"
)

// Options configures DNS-based seed discovery.
type Options struct {
	// Names are SRV records or hostnames to resolve.
	// Examples: "_peers._tcp.example.com" (SRV) or "seed1.example.com" (A/AAAA).
	Names []string

	// Port used when resolving A/AAAA records (no port info in DNS answer).
	Port int

	// Refresh controls cache staleness; if zero, defaults to 5s.
	Refresh time.Duration

	// Resolver optionally overrides the DNS resolver used.
	Resolver *net.Resolver

	// Logger optional.
	Logger *log.Logger
}

type impl struct {
	opts  Options
	mu    sync.Mutex
	last  time.Time
	cache []discovery.Endpoint
}

// New returns a DNS-backed discovery that resolves SRV and A/AAAA names
// and caches results for the Refresh duration.
func New(opts Options) discovery.Discovery {
	if opts.Refresh <= 0 {
		opts.Refresh = 5 * time.Second
	}
	if opts.Port == 0 {
		opts.Port = 18555
	}
	return &impl{opts: opts}
}

func (d *impl) Seeds() []discovery.Endpoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	if time.Since(d.last) < d.opts.Refresh && len(d.cache) > 0 {
		return append([]discovery.Endpoint(nil), d.cache...)
	}
	d.cache = d.resolveAll(context.Background())
	d.last = time.Now()
	return append([]discovery.Endpoint(nil), d.cache...)
}

func (d *impl) resolveAll(ctx context.Context) []discovery.Endpoint {
	seen := make(map[discovery.Endpoint]struct{})
	var out []discovery.Endpoint
	add := func(ep discovery.Endpoint) {
		if _, ok := seen[ep]; !ok {
			out = append(out, ep)
			seen[ep] = struct{}{}
		}
	}
	for _, name := range d.opts.Names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		// If already host:port, take as-is
		if strings.Contains(name, ":") && !strings.HasPrefix(name, "_") {
			if ep, err := discovery.ParseEndpoint(name); err == nil {
				add(ep)
			}
			continue
		}
		// Try SRV first if pattern matches
		if strings.HasPrefix(name, "_") && strings.Contains(name, "._") {
			if recs := d.lookupSRV(ctx, name); len(recs) > 0 {
				for _, ep := range recs {
					add(ep)
				}
				continue
			}
		}
		// Fallback to A/AAAA
		for _, ep := range d.lookupHost(ctx, name, d.opts.Port) {
			add(ep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (d *impl) lookupSRV(ctx context.Context, fqdn string) []discovery.Endpoint {
	svc, proto, domain := parseSRVName(fqdn)
	if svc == "" || proto == "" || domain == "" {
		return nil
	}
	res := d.opts.Resolver
	if res == nil {
		res = net.DefaultResolver
	}
	_, addrs, err := res.LookupSRV(ctx, svc, proto, domain)
	if err != nil {
		return nil
	}
	var out []discovery.Endpoint
	for _, a := range addrs {
		host := strings.TrimSuffix(a.Target, ".")
		out = append(out, discovery.Endpoint{Host: host, Port: int(a.Port)})
	}
	return out
}

func (d *impl) lookupHost(ctx context.Context, host string, port int) []discovery.Endpoint {
	res := d.opts.Resolver
	if res == nil {
		res = net.DefaultResolver
	}
	ips, err := res.LookupHost(ctx, host)
	if err != nil {
		return nil
	}
	out := make([]discovery.Endpoint, 0, len(ips))
	for _, ip := range ips {
		out = append(out, discovery.Endpoint{Host: ip, Port: port})
	}
	return out
}

func parseSRVName(fqdn string) (service, proto, name string) {
	// Expect pattern: _service._proto.name
	parts := strings.SplitN(fqdn, ".", 3)
	if len(parts) < 3 {
		return "", "", ""
	}
	s := strings.TrimPrefix(parts[0], "_")
	p := strings.TrimPrefix(parts[1], "_")
	n := parts[2]
	return s, p, n
}
