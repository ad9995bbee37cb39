package file

import (
	"bufio"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirimatin/go-peerseed/pkg/discovery"
)

// Options configures file/ENV-based seed discovery.
type Options struct {
	// Path to a file containing one "host:port" per line or comma-separated list.
	Path string
	// Env overrides file when non-empty.
	Env string
	// Refresh controls cache staleness; if zero, defaults to 5s.
	Refresh time.Duration

	// Logger optional.
	Logger *log.Logger
}

type impl struct {
	opts  Options
	mu    sync.Mutex
	last  time.Time
	mtime time.Time
	cache []discovery.Endpoint
}

func New(opts Options) discovery.Discovery {
	if opts.Refresh <= 0 {
		opts.Refresh = 5 * time.Second
	}
	return &impl{opts: opts}
}

func (i *impl) Seeds() []discovery.Endpoint {
	i.mu.Lock()
	defer i.mu.Unlock()
	// ENV takes precedence
	if v := strings.TrimSpace(os.Getenv(i.opts.Env)); i.opts.Env != "" && v != "" {
		return parseCSV(v)
	}
	if i.opts.Path == "" {
		return nil
	}
	stat, err := os.Stat(i.opts.Path)
	now := time.Now()
	if err == nil {
		// If file changed or cache is stale, reload
		if stat.ModTime().After(i.mtime) || now.Sub(i.last) >= i.opts.Refresh {
			i.cache = loadFile(i.opts.Path)
			i.last = now
			i.mtime = stat.ModTime()
		}
		return append([]discovery.Endpoint(nil), i.cache...)
	}
	// try glob
	matches, _ := filepath.Glob(i.opts.Path)
	if len(matches) > 0 {
		set := make(map[discovery.Endpoint]struct{})
		for _, m := range matches {
			for _, ep := range loadFile(m) {
				set[ep] = struct{}{}
			}
		}
		out := make([]discovery.Endpoint, 0, len(set))
		for ep := range set {
			out = append(out, ep)
		}
		sort.Slice(out, func(a, b int) bool { return out[a].String() < out[b].String() })
		i.cache = out
		i.last = now
		return append([]discovery.Endpoint(nil), i.cache...)
	}
	return append([]discovery.Endpoint(nil), i.cache...)
}

func loadFile(path string) []discovery.Endpoint {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var seeds []discovery.Endpoint
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		// allow comma-separated per line
		seeds = append(seeds, parseCSV(line)...)
	}
	if err := s.Err(); err != nil {
		return nil
	}
	// normalize: de-dup + sort
	set := make(map[discovery.Endpoint]struct{})
	for _, ep := range seeds {
		set[ep] = struct{}{}
	}
	seeds = seeds[:0]
	for ep := range set {
		seeds = append(seeds, ep)
	}
	sort.Slice(seeds, func(a, b int) bool { return seeds[a].String() < seeds[b].String() })
	return seeds
}

func parseCSV(csv string) []discovery.Endpoint {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	var out []discovery.Endpoint
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if ep, err := discovery.ParseEndpoint(p); err == nil {
			out = append(out, ep)
		}
	}
	return out
}
