package memnet

import (
	"context"
	"fmt"
	"sync"

	"github.com/danmuck/crosslink/internal/bus"
	"github.com/danmuck/crosslink/internal/future"
	"github.com/danmuck/crosslink/internal/host"
	"github.com/rs/zerolog"
)

// Context is one execution context on a Network.
type Context struct {
	net    *Network
	id     bus.WindowID
	origin string
	url    string
	name   string
	parent *Context
	opener *Context
	logger zerolog.Logger

	ready *future.Future[struct{}]

	mu       sync.Mutex
	closed   bool
	frames   map[string]*frame
	handlers []*handlerEntry
	pending  map[string]*pendingReply
	routes   map[bus.WindowID]*remoteRoute
	hooks    map[int]host.OpenHook
	nextID   int
}

type handlerEntry struct {
	name    string
	filter  bus.Filter
	handler bus.Handler
}

type pendingReply struct {
	domain string
	result *future.Future[bus.Reply]
}

// remoteRoute is the routing-layer state for one remote window.
type remoteRoute struct {
	domain string
	send   bus.SendFunc
	ready  chan struct{}
}

func newContext(n *Network, id bus.WindowID, origin, url, name string, parent, opener *Context) *Context {
	return &Context{
		net:     n,
		id:      id,
		origin:  origin,
		url:     url,
		name:    name,
		parent:  parent,
		opener:  opener,
		logger:  n.logger.With().Str("window", string(id)).Str("origin", origin).Logger(),
		ready:   future.New[struct{}](),
		frames:  make(map[string]*frame),
		pending: make(map[string]*pendingReply),
		routes:  make(map[bus.WindowID]*remoteRoute),
		hooks:   make(map[int]host.OpenHook),
	}
}

func (c *Context) ID() bus.WindowID { return c.id }

func (c *Context) URL() string { return c.url }

func (c *Context) Name() string { return c.name }

func (c *Context) Network() *Network { return c.net }

// MarkReady fires the page-ready signal. Later calls are no-ops.
func (c *Context) MarkReady() {
	c.ready.Resolve(struct{}{})
}

// Close marks c closed; it stops receiving messages.
func (c *Context) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *Context) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Domain implements host.Host.
func (c *Context) Domain() string { return c.origin }

// Self implements host.Host.
func (c *Context) Self() bus.Window { return c }

// IsClosed implements host.Host. Unknown windows count as closed.
func (c *Context) IsClosed(w bus.Window) bool {
	if w == nil {
		return true
	}
	other, ok := c.net.Lookup(w.ID())
	if !ok {
		return true
	}
	return other.Closed()
}

// Ancestor implements host.Host: the parent frame, else the opener.
func (c *Context) Ancestor() (bus.Window, bool) {
	if c.parent != nil {
		return c.parent, true
	}
	if c.opener != nil {
		return c.opener, true
	}
	return nil, false
}

// FrameByName implements host.Host.
func (c *Context) FrameByName(name string) (bus.Window, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.frames[name]
	if !ok {
		return nil, false
	}
	return f.child, true
}

// Ready implements host.Host.
func (c *Context) Ready(ctx context.Context) error {
	_, err := c.ready.Wait(ctx)
	return err
}

// CreateFrame implements host.Host. The frame's context exists immediately but
// only loads once attached.
func (c *Context) CreateFrame(spec host.FrameSpec) (host.Frame, error) {
	child, err := c.net.newContext(spec.URL, spec.Name, c, nil)
	if err != nil {
		return nil, err
	}
	return &frame{
		spec:   spec,
		parent: c,
		child:  child,
		load:   future.New[struct{}](),
	}, nil
}

// Open implements host.Opener. The popup loads in the background; every
// registered OpenHook observes it before Open returns.
func (c *Context) Open(ctx context.Context, url, name string) (bus.Window, error) {
	child, err := c.net.newContext(url, name, nil, c)
	if err != nil {
		return nil, err
	}
	go func() {
		if err := c.net.load(context.WithoutCancel(ctx), child); err != nil {
			child.logger.Warn().Err(err).Msg("memnet.Context.Open popup load failed")
		}
	}()

	c.mu.Lock()
	hooks := make([]host.OpenHook, 0, len(c.hooks))
	for _, hook := range c.hooks {
		hooks = append(hooks, hook)
	}
	c.mu.Unlock()
	for _, hook := range hooks {
		hook(child, url, name)
	}
	return child, nil
}

// OnOpen implements host.Opener.
func (c *Context) OnOpen(hook host.OpenHook) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	key := c.nextID
	c.hooks[key] = hook
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.hooks, key)
	}
}

func (c *Context) String() string {
	return fmt.Sprintf("%s(%s)", c.id, c.origin)
}

// frame is an embedded child context created by CreateFrame.
type frame struct {
	spec   host.FrameSpec
	parent *Context
	child  *Context
	load   *future.Future[struct{}]

	attachOnce sync.Once
}

func (f *frame) Name() string { return f.spec.Name }

func (f *frame) Window() bus.Window { return f.child }

func (f *frame) Attach() error {
	if f.parent.Closed() {
		return fmt.Errorf("%w: %s", bus.ErrWindowClosed, f.parent.id)
	}
	f.attachOnce.Do(func() {
		f.parent.mu.Lock()
		f.parent.frames[f.spec.Name] = f
		f.parent.mu.Unlock()
		go func() {
			if err := f.parent.net.load(context.Background(), f.child); err != nil {
				f.load.Reject(err)
				return
			}
			f.load.Resolve(struct{}{})
		}()
	})
	return nil
}

func (f *frame) WaitLoad(ctx context.Context) error {
	_, err := f.load.Wait(ctx)
	return err
}

func (f *frame) Detach() {
	f.parent.mu.Lock()
	if cur, ok := f.parent.frames[f.spec.Name]; ok && cur == f {
		delete(f.parent.frames, f.spec.Name)
	}
	f.parent.mu.Unlock()
	f.child.Close()
}
