// Package link owns the process-scoped crosslink state of one context: the
// instance identity, handshake futures, the window registry and the bridges.
// Every piece is created by New and released by Close; nothing is global.
package link

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/danmuck/crosslink/internal/bridge"
	"github.com/danmuck/crosslink/internal/bus"
	"github.com/danmuck/crosslink/internal/config"
	"github.com/danmuck/crosslink/internal/hello"
	"github.com/danmuck/crosslink/internal/host"
	"github.com/danmuck/crosslink/internal/registry"
	"github.com/rs/zerolog/log"
)

var ErrNoOpener = errors.New("link: host has no context-creation facility")

// Environment is what one context needs from its runtime.
type Environment interface {
	bus.Bus
	bus.Router
	host.Host
}

// System is the crosslink state of one context.
type System struct {
	env Environment

	Hello    *hello.Protocol
	Registry *registry.Registry
	Bridges  *bridge.Provisioner

	mu       sync.Mutex
	stopHook func()
}

// New wires a System over env. instanceID may be empty.
func New(env Environment, cfg config.Config, instanceID string) *System {
	hp := hello.New(env, env, instanceID)
	reg := registry.New(env, env.IsClosed)
	reg.OnSweep(func() {
		if n := hp.Sweep(); n > 0 {
			log.Debug().Int("entries", n).Str("domain", env.Domain()).Msg("link.System swept handshake state")
		}
	})
	return &System{
		env:      env,
		Hello:    hp,
		Registry: reg,
		Bridges: bridge.NewProvisioner(bridge.Config{Timeout: cfg.BridgeTimeout}, bridge.Deps{
			Host:     env,
			Bus:      env,
			Router:   env,
			Registry: reg,
			Hello:    hp,
		}),
	}
}

// Init installs the HELLO listener, greets the ancestor and, when env can
// spawn contexts, the auto-registration hook. Safe to call more than once.
func (s *System) Init(ctx context.Context) {
	s.Hello.Init(ctx)
	opener, ok := s.env.(host.Opener)
	if !ok {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopHook == nil {
		s.stopHook = s.Registry.Install(opener)
	}
}

// Open spawns a named context at url through the host and makes sure it is
// linked, whether or not Init installed the hook.
func (s *System) Open(ctx context.Context, url, name string) (bus.Window, error) {
	opener, ok := s.env.(host.Opener)
	if !ok {
		return nil, ErrNoOpener
	}
	w, err := opener.Open(ctx, url, name)
	if err != nil {
		return nil, fmt.Errorf("link: open %s: %w", url, err)
	}
	if w == nil {
		return nil, nil
	}
	s.mu.Lock()
	hooked := s.stopHook != nil
	s.mu.Unlock()
	if !hooked {
		s.Registry.Hook()(w, url, name)
	}
	return w, nil
}

// Domain is this context's verified origin.
func (s *System) Domain() string {
	return s.env.Domain()
}

// IsClosed reports whether w is closed as seen from this context.
func (s *System) IsClosed(w bus.Window) bool {
	return s.env.IsClosed(w)
}

// Close destroys every bridge and removes installed listeners and hooks.
func (s *System) Close() {
	s.Bridges.DestroyBridges()
	s.Hello.Close()
	s.mu.Lock()
	stop := s.stopHook
	s.stopHook = nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
}
