package memnet

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/crosslink/internal/bus"
	"github.com/danmuck/crosslink/internal/host"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNoPage = errors.New("memnet: no page served for origin")

// Page is the program a context runs when it loads. A returned error fails the load.
type Page func(ctx context.Context, c *Context) error

// Option configures a Network.
type Option func(*Network)

// WithSendTimeout sets the timeout used by Send calls that pass a zero Timeout.
func WithSendTimeout(d time.Duration) Option {
	return func(n *Network) {
		n.sendTimeout = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(n *Network) {
		n.logger = logger
	}
}

// Network owns every context of one in-process topology.
type Network struct {
	mu         sync.RWMutex
	contexts   map[bus.WindowID]*Context
	restricted map[[2]string]struct{}
	severed    map[[2]bus.WindowID]struct{}
	pages      map[string]Page

	sendTimeout time.Duration
	logger      zerolog.Logger
}

func NewNetwork(opts ...Option) *Network {
	n := &Network{
		contexts:    make(map[bus.WindowID]*Context),
		restricted:  make(map[[2]string]struct{}),
		severed:     make(map[[2]bus.WindowID]struct{}),
		pages:       make(map[string]Page),
		sendTimeout: 10 * time.Second,
		logger:      log.Logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Restrict forbids direct delivery between origins a and b, in both directions.
func (n *Network) Restrict(a, b string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.restricted[originPair(a, b)] = struct{}{}
}

// Restricted reports whether direct delivery between a and b is forbidden.
func (n *Network) Restricted(a, b string) bool {
	if a == b {
		return false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.restricted[originPair(a, b)]
	return ok
}

// Sever forbids direct delivery between two specific contexts, in both directions.
func (n *Network) Sever(a, b bus.Window) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.severed[windowPair(a.ID(), b.ID())] = struct{}{}
}

// direct reports whether src may deliver to dst without a send capability.
func (n *Network) direct(src, dst *Context) bool {
	if n.Restricted(src.origin, dst.origin) {
		return false
	}
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, cut := n.severed[windowPair(src.id, dst.id)]
	return !cut
}

// Serve registers the page run by contexts that load under origin.
func (n *Network) Serve(origin string, page Page) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.pages[strings.TrimSpace(origin)] = page
}

func (n *Network) page(origin string) (Page, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	p, ok := n.pages[origin]
	return p, ok
}

// NewTop creates a ready top-level context for url.
func (n *Network) NewTop(url string) (*Context, error) {
	c, err := n.newContext(url, "", nil, nil)
	if err != nil {
		return nil, err
	}
	c.MarkReady()
	return c, nil
}

// NewLoadingTop creates a top-level context whose page is not ready until MarkReady.
func (n *Network) NewLoadingTop(url string) (*Context, error) {
	return n.newContext(url, "", nil, nil)
}

// Lookup returns the live context for id.
func (n *Network) Lookup(id bus.WindowID) (*Context, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	c, ok := n.contexts[id]
	return c, ok
}

// Contexts returns a snapshot of every context created on n.
func (n *Network) Contexts() []*Context {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Context, 0, len(n.contexts))
	for _, c := range n.contexts {
		out = append(out, c)
	}
	return out
}

func (n *Network) newContext(url, name string, parent, opener *Context) (*Context, error) {
	origin, err := host.DomainFromURL(url)
	if err != nil {
		return nil, err
	}
	c := newContext(n, bus.WindowID("win."+host.UniqueID()), origin, url, name, parent, opener)
	n.mu.Lock()
	n.contexts[c.id] = c
	n.mu.Unlock()
	return c, nil
}

// load runs the origin's page against c and marks it ready.
func (n *Network) load(ctx context.Context, c *Context) error {
	page, ok := n.page(c.origin)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoPage, c.url)
	}
	if err := page(ctx, c); err != nil {
		return fmt.Errorf("memnet: page %s failed: %w", c.url, err)
	}
	c.MarkReady()
	return nil
}

func originPair(a, b string) [2]string {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a > b {
		a, b = b, a
	}
	return [2]string{a, b}
}

func windowPair(a, b bus.WindowID) [2]bus.WindowID {
	if a > b {
		a, b = b, a
	}
	return [2]bus.WindowID{a, b}
}
