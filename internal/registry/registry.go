// Package registry binds window handles to symbolic names and verified
// origins.
//
// Invariants:
// - at most one record per window and at most one per name
// - a bound name never moves to a different window
// - domain is last-write-wins and is pushed to the bus routing layer
package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/crosslink/internal/bus"
	"github.com/danmuck/crosslink/internal/host"
	"github.com/danmuck/crosslink/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrIdentityConflict = fmt.Errorf("%w: registry: identity conflict", bus.ErrProtocol)
	ErrWindowRequired   = errors.New("registry: window required")
)

// Details is the input of LinkWindow. Name and Domain are optional.
type Details struct {
	Window bus.Window
	Name   string
	Domain string
}

// Record is the registry entry for one window.
type Record struct {
	Window bus.Window
	Name   string
	Domain string
}

// Registry is safe for concurrent use; every operation runs under one lock.
type Registry struct {
	router bus.Router
	closed func(bus.Window) bool
	logger zerolog.Logger

	mu       sync.Mutex
	byName   map[string]*Record
	byWindow map[bus.WindowID]*Record
	onSweep  []func()
}

// New builds a Registry that pushes verified domains into router and sweeps
// records whose windows closed reports as closed.
func New(router bus.Router, closed func(bus.Window) bool) *Registry {
	return &Registry{
		router:   router,
		closed:   closed,
		logger:   log.Logger.With().Str("component", "registry").Logger(),
		byName:   make(map[string]*Record),
		byWindow: make(map[bus.WindowID]*Record),
	}
}

// OnSweep adds fn to run after every sweep, outside the registry lock.
func (r *Registry) OnSweep(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onSweep = append(r.onSweep, fn)
}

// LinkWindow creates or updates the record for d.Window.
func (r *Registry) LinkWindow(d Details) (Record, error) {
	if d.Window == nil {
		return Record{}, ErrWindowRequired
	}
	name := strings.TrimSpace(d.Name)
	domain := strings.TrimSpace(d.Domain)

	r.mu.Lock()
	swept := r.sweepLocked()
	rec, err := r.linkLocked(d.Window, name, domain)
	hooks := r.onSweep
	r.mu.Unlock()

	observability.RecordRegistrySwept(swept)
	for _, fn := range hooks {
		fn()
	}
	if err != nil {
		observability.RecordRegistryLink("conflict")
		r.logger.Warn().Err(err).Str("window", string(d.Window.ID())).Str("name", name).Msg("registry.LinkWindow rejected")
		return Record{}, err
	}
	observability.RecordRegistryLink("ok")
	return rec, nil
}

func (r *Registry) linkLocked(w bus.Window, name, domain string) (Record, error) {
	if name != "" {
		if bound, ok := r.byName[name]; ok && bound.Window.ID() != w.ID() {
			return Record{}, fmt.Errorf("%w: different window already linked for name %s", ErrIdentityConflict, name)
		}
	}
	rec, ok := r.byWindow[w.ID()]
	if !ok {
		rec = &Record{Window: w}
	}
	if name != "" {
		if rec.Name != "" && rec.Name != name {
			return Record{}, fmt.Errorf("%w: window already linked as %s, cannot link as %s", ErrIdentityConflict, rec.Name, name)
		}
		rec.Name = name
		r.byName[name] = rec
	}
	if domain != "" {
		rec.Domain = domain
		r.router.RegisterRemoteWindow(w, domain)
	}
	r.byWindow[w.ID()] = rec
	return *rec, nil
}

// sweepLocked drops every record whose window is closed, named or not.
func (r *Registry) sweepLocked() int {
	n := 0
	for id, rec := range r.byWindow {
		if !r.closed(rec.Window) {
			continue
		}
		delete(r.byWindow, id)
		if rec.Name != "" && r.byName[rec.Name] == rec {
			delete(r.byName, rec.Name)
		}
		n++
	}
	return n
}

// LinkURL links w with the origin of url.
func (r *Registry) LinkURL(w bus.Window, url string) (Record, error) {
	domain, err := host.DomainFromURL(url)
	if err != nil {
		return Record{}, err
	}
	return r.LinkWindow(Details{Window: w, Domain: domain})
}

// ByName returns the record bound to name.
func (r *Registry) ByName(name string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byName[strings.TrimSpace(name)]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// ByWindow returns the record for w.
func (r *Registry) ByWindow(w bus.Window) (Record, bool) {
	if w == nil {
		return Record{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byWindow[w.ID()]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Snapshot returns every record ordered by name, then window id.
func (r *Registry) Snapshot() []Record {
	r.mu.Lock()
	out := make([]Record, 0, len(r.byWindow))
	for _, rec := range r.byWindow {
		out = append(out, *rec)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Window.ID() < out[j].Window.ID()
	})
	return out
}
