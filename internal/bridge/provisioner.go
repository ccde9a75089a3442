package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/crosslink/internal/bus"
	"github.com/danmuck/crosslink/internal/future"
	"github.com/danmuck/crosslink/internal/hello"
	"github.com/danmuck/crosslink/internal/host"
	"github.com/danmuck/crosslink/internal/observability"
	"github.com/danmuck/crosslink/internal/registry"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout bounds the relay handshake when Config.Timeout is zero.
const DefaultTimeout = 5 * time.Second

var errDestroyed = fmt.Errorf("%w: bridge: destroyed during provisioning", bus.ErrConfiguration)

// Config holds provisioner settings.
type Config struct {
	// Timeout bounds the relay handshake; bus.NoTimeout waits forever.
	Timeout time.Duration
}

// Deps are the collaborators a Provisioner drives.
type Deps struct {
	Host     host.Host
	Bus      bus.Bus
	Router   bus.Router
	Registry *registry.Registry
	Hello    *hello.Protocol
}

// State is the provisioning state of one bridge.
type State string

const (
	StatePending State = "pending"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

// Status is a snapshot of one bridge.
type Status struct {
	Domain string `json:"domain"`
	Name   string `json:"name"`
	State  State  `json:"state"`
	Error  string `json:"error,omitempty"`
}

// Provisioner owns every bridge opened by one context.
type Provisioner struct {
	deps    Deps
	timeout time.Duration
	logger  zerolog.Logger

	bridges *future.Memo[string, bus.Window]

	mu        sync.Mutex
	gen       uint64
	frames    map[string]host.Frame
	listeners map[string]func()
}

func NewProvisioner(cfg Config, deps Deps) *Provisioner {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Provisioner{
		deps:      deps,
		timeout:   cfg.Timeout,
		logger:    log.Logger.With().Str("component", "bridge").Str("domain", deps.Host.Domain()).Logger(),
		bridges:   future.NewMemo[string, bus.Window](),
		frames:    make(map[string]host.Frame),
		listeners: make(map[string]func()),
	}
}

func resolveDomain(url, domain string) (string, error) {
	if domain != "" {
		return domain, nil
	}
	return host.DomainFromURL(url)
}

// HasBridge reports whether a bridge was requested for domain (derived from url when empty).
func (p *Provisioner) HasBridge(url, domain string) bool {
	domain, err := resolveDomain(url, domain)
	if err != nil {
		return false
	}
	return p.bridges.Has(domain)
}

// OpenBridge returns the relay window for domain, provisioning it on first use.
// Every caller for a domain waits on the same attempt; ctx only bounds this
// caller's wait.
func (p *Provisioner) OpenBridge(ctx context.Context, url, domain string) (bus.Window, error) {
	domain, err := resolveDomain(url, domain)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	f, created := p.bridges.GetOrCreate(domain)
	gen := p.gen
	p.mu.Unlock()
	if created {
		go p.provision(f, url, domain, gen)
	}
	return f.Wait(ctx)
}

func (p *Provisioner) provision(f *future.Future[bus.Window], url, domain string, gen uint64) {
	start := time.Now()
	relay, err := p.provisionFrame(url, domain, gen)
	if err != nil {
		f.Reject(err)
		observability.RecordBridgeProvision(domain, "failed", time.Since(start))
		p.logger.Warn().Err(err).Str("bridge_domain", domain).Str("url", url).Msg("bridge.Provisioner.OpenBridge failed")
		return
	}
	f.Resolve(relay)
	observability.RecordBridgeProvision(domain, "ok", time.Since(start))
	p.logger.Info().Str("bridge_domain", domain).Str("relay", string(relay.ID())).Msg("bridge.Provisioner.OpenBridge ready")
}

func (p *Provisioner) provisionFrame(url, domain string, gen uint64) (bus.Window, error) {
	if domain == p.deps.Host.Domain() {
		return nil, fmt.Errorf("%w: %s", ErrSelfBridge, domain)
	}
	name := Name(domain)
	if _, ok := p.deps.Host.FrameByName(name); ok {
		return nil, fmt.Errorf("%w: frame with name %s already exists on page", ErrNameCollision, name)
	}

	frame, err := p.deps.Host.CreateFrame(host.HiddenFrameSpec(name, url))
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %w", ErrLoadFailed, url, err)
	}
	if !p.track(domain, frame, gen) {
		frame.Detach()
		return nil, fmt.Errorf("%w: %s", errDestroyed, domain)
	}

	ctx := context.Background()
	if err := p.deps.Host.Ready(ctx); err != nil {
		return nil, err
	}
	relay := frame.Window()
	p.listen(domain, relay, gen)
	attached, err := p.attach(frame, gen)
	if err != nil {
		return nil, fmt.Errorf("%w: attach %s: %w", ErrLoadFailed, url, err)
	}
	if !attached {
		frame.Detach()
		return nil, fmt.Errorf("%w: %s", errDestroyed, domain)
	}
	if err := frame.WaitLoad(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrLoadFailed, url, err)
	}
	if _, err := p.deps.Hello.AwaitWindowHello(ctx, relay, p.timeout, "Bridge "+url); err != nil {
		return nil, err
	}
	return relay, nil
}

// track records frame for domain unless the bridges were destroyed since gen.
func (p *Provisioner) track(domain string, frame host.Frame, gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return false
	}
	p.frames[domain] = frame
	return true
}

// attach inserts frame into the page unless the bridges were destroyed since
// gen. It holds p.mu so DestroyBridges either sees the frame attached or
// finds it untracked.
func (p *Provisioner) attach(frame host.Frame, gen uint64) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		return false, nil
	}
	return true, frame.Attach()
}

func (p *Provisioner) listen(domain string, relay bus.Window, gen uint64) {
	stop := p.ListenForRegister(relay, domain)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		stop()
		return
	}
	p.listeners[domain] = stop
}

// DestroyBridges detaches every relay frame and forgets every bridge, so the
// next OpenBridge provisions from scratch.
func (p *Provisioner) DestroyBridges() {
	p.mu.Lock()
	frames := p.frames
	listeners := p.listeners
	p.frames = make(map[string]host.Frame)
	p.listeners = make(map[string]func())
	p.gen++
	p.bridges.Reset()
	p.mu.Unlock()

	for domain, frame := range frames {
		frame.Detach()
		p.logger.Debug().Str("bridge_domain", domain).Msg("bridge.Provisioner.DestroyBridges detached")
	}
	for _, stop := range listeners {
		stop()
	}
}

// Bridges returns a snapshot of every bridge ordered by domain.
func (p *Provisioner) Bridges() []Status {
	domains := future.Keys(p.bridges)
	out := make([]Status, 0, len(domains))
	for _, domain := range domains {
		st := Status{Domain: domain, Name: Name(domain), State: StatePending}
		if f, ok := p.bridges.Get(domain); ok && f.Settled() {
			if _, err := f.Wait(context.Background()); err != nil {
				st.State = StateFailed
				st.Error = err.Error()
			} else {
				st.State = StateReady
			}
		}
		out = append(out, st)
	}
	return out
}
