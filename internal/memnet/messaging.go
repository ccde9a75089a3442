package memnet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/crosslink/internal/bus"
	"github.com/danmuck/crosslink/internal/future"
	"github.com/danmuck/crosslink/internal/host"
)

// Send implements bus.Bus.
func (c *Context) Send(
	ctx context.Context,
	target bus.Window,
	name string,
	payload any,
	opts bus.SendOptions,
) (bus.Reply, error) {
	if target == nil {
		return bus.Reply{}, fmt.Errorf("%w: nil target for %s", bus.ErrNoRoute, name)
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.net.sendTimeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	env := bus.Envelope{
		ID:   host.UniqueID(),
		Kind: bus.KindRequest,
		Name: name,
		Data: payload,
	}
	pending := &pendingReply{domain: opts.Domain, result: future.New[bus.Reply]()}
	c.mu.Lock()
	c.pending[env.ID] = pending
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
	}()

	if err := c.deliver(ctx, target, env); err != nil {
		return bus.Reply{}, c.deadlineErr(err, name, target, timeout)
	}
	reply, err := pending.result.Wait(ctx)
	if err != nil {
		return bus.Reply{}, c.deadlineErr(err, name, target, timeout)
	}
	return reply, nil
}

func (c *Context) deadlineErr(err error, name string, target bus.Window, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) && timeout > 0 {
		return fmt.Errorf(
			"%w: no response for %s from %s after %dms",
			bus.ErrTimeout,
			name,
			target.ID(),
			timeout.Milliseconds(),
		)
	}
	return err
}

// On implements bus.Bus.
func (c *Context) On(name string, filter bus.Filter, h bus.Handler) func() {
	entry := &handlerEntry{name: name, filter: filter, handler: h}
	c.mu.Lock()
	c.handlers = append(c.handlers, entry)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, cur := range c.handlers {
			if cur == entry {
				c.handlers = append(c.handlers[:i], c.handlers[i+1:]...)
				return
			}
		}
	}
}

// RegisterRemoteWindow implements bus.Router.
func (c *Context) RegisterRemoteWindow(w bus.Window, domain string) {
	if w == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	route := c.routeLocked(w.ID())
	route.domain = domain
}

// RegisterRemoteSend implements bus.Router. A later registration replaces the
// previous send capability.
func (c *Context) RegisterRemoteSend(w bus.Window, domain string, send bus.SendFunc) {
	if w == nil || send == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	route := c.routeLocked(w.ID())
	route.domain = domain
	if route.send == nil {
		close(route.ready)
	}
	route.send = send
}

// RemoteDomain returns the domain the routing layer holds for w.
func (c *Context) RemoteDomain(w bus.Window) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	route, ok := c.routes[w.ID()]
	if !ok {
		return "", false
	}
	return route.domain, true
}

// HasRemoteSend reports whether a send capability is installed for w.
func (c *Context) HasRemoteSend(w bus.Window) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	route, ok := c.routes[w.ID()]
	return ok && route.send != nil
}

func (c *Context) routeLocked(id bus.WindowID) *remoteRoute {
	route, ok := c.routes[id]
	if !ok {
		route = &remoteRoute{ready: make(chan struct{})}
		c.routes[id] = route
	}
	return route
}

// Receive implements bus.Router. Requests are handled asynchronously.
func (c *Context) Receive(ctx context.Context, msg bus.Message) error {
	if c.Closed() {
		return fmt.Errorf("%w: %s", bus.ErrWindowClosed, c.id)
	}
	switch msg.Envelope.Kind {
	case bus.KindRequest:
		go c.handleRequest(msg)
		return nil
	case bus.KindResponse:
		c.handleResponse(msg)
		return nil
	default:
		return fmt.Errorf("memnet: unknown envelope kind %q", msg.Envelope.Kind)
	}
}

func (c *Context) handleRequest(msg bus.Message) {
	ctx := context.Background()
	resp := bus.Envelope{
		ID:   msg.Envelope.ID,
		Kind: bus.KindResponse,
		Name: msg.Envelope.Name,
	}
	if h, ok := c.match(msg); ok {
		data, err := h(ctx, msg)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Data = data
		}
	} else {
		resp.Error = fmt.Sprintf("%s: %s from %s", bus.ErrNoHandler, msg.Envelope.Name, msg.Origin)
	}
	if msg.Source == nil {
		return
	}
	if err := c.deliver(ctx, msg.Source, resp); err != nil {
		c.logger.Debug().Err(err).Str("name", msg.Envelope.Name).Msg("memnet.Context.handleRequest response undeliverable")
	}
}

// match picks the handler for msg, preferring window-scoped then domain-scoped filters.
func (c *Context) match(msg bus.Message) (bus.Handler, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var (
		best      bus.Handler
		bestScore = -1
	)
	for _, entry := range c.handlers {
		if entry.name != msg.Envelope.Name || !entry.filter.Matches(msg) {
			continue
		}
		score := 0
		if entry.filter.Window != nil {
			score += 2
		}
		if entry.filter.Domain != "" && entry.filter.Domain != bus.Wildcard {
			score++
		}
		if score > bestScore {
			best = entry.handler
			bestScore = score
		}
	}
	return best, best != nil
}

func (c *Context) handleResponse(msg bus.Message) {
	c.mu.Lock()
	pending, ok := c.pending[msg.Envelope.ID]
	c.mu.Unlock()
	if !ok {
		c.logger.Debug().Str("id", msg.Envelope.ID).Msg("memnet.Context.handleResponse no pending request")
		return
	}
	if !bus.MatchDomain(pending.domain, msg.Origin) {
		pending.result.Reject(fmt.Errorf(
			"%w: expected %s got %s",
			bus.ErrOriginMismatch,
			pending.domain,
			msg.Origin,
		))
		return
	}
	if msg.Envelope.Error != "" {
		pending.result.Reject(fmt.Errorf("%w: %s", bus.ErrRemote, msg.Envelope.Error))
		return
	}
	pending.result.Resolve(bus.Reply{Origin: msg.Origin, Data: msg.Envelope.Data})
}

// deliver routes env to target: directly when the origins allow it, else
// through a registered send capability, waiting for one if target is a
// registered remote window.
func (c *Context) deliver(ctx context.Context, target bus.Window, env bus.Envelope) error {
	if c.Closed() {
		return fmt.Errorf("%w: %s", bus.ErrWindowClosed, c.id)
	}
	if dst, ok := c.net.Lookup(target.ID()); ok && c.net.direct(c, dst) {
		return dst.Receive(ctx, bus.Message{Source: c, Origin: c.origin, Envelope: env})
	}

	c.mu.Lock()
	route, ok := c.routes[target.ID()]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", bus.ErrNoRoute, target.ID())
	}
	select {
	case <-route.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	c.mu.Lock()
	send := route.send
	c.mu.Unlock()
	return send(ctx, env)
}
