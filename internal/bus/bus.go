package bus

import (
	"context"
	"time"
)

// Message names exchanged by crosslink contexts.
const (
	MsgHello      = "crosslink_hello"
	MsgOpenTunnel = "crosslink_open_tunnel"
)

// Wildcard matches any origin in SendOptions.Domain and Filter.Domain.
const Wildcard = "*"

// NoTimeout disables the per-call deadline on Send and handshake waits.
const NoTimeout time.Duration = -1

// WindowID is the stable identity token of one execution context.
type WindowID string

// Window is an opaque handle to another execution context.
type Window interface {
	ID() WindowID
}

// SameWindow reports whether a and b reference the same context.
func SameWindow(a, b Window) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID() == b.ID()
}

// EnvelopeKind separates requests from their responses on the wire.
type EnvelopeKind string

const (
	KindRequest  EnvelopeKind = "request"
	KindResponse EnvelopeKind = "response"
)

// Envelope is the unit carried between contexts.
type Envelope struct {
	ID    string       `json:"id"`
	Kind  EnvelopeKind `json:"kind"`
	Name  string       `json:"name"`
	Data  any          `json:"data,omitempty"`
	Error string       `json:"error,omitempty"`
}

// Message is one inbound delivery, tagged by the platform with its source and origin.
type Message struct {
	Source   Window
	Origin   string
	Envelope Envelope
}

// Reply is the result of a Send round trip.
type Reply struct {
	Origin string
	Data   any
}

// SendOptions scopes one Send call.
// Domain is an exact origin or Wildcard. Timeout of zero uses the bus default;
// NoTimeout waits until ctx is done.
type SendOptions struct {
	Domain  string
	Timeout time.Duration
}

// Filter scopes a handler to a source window and/or origin.
// A nil Window matches every source; an empty Domain behaves like Wildcard.
type Filter struct {
	Window Window
	Domain string
}

// Matches reports whether msg passes the filter.
func (f Filter) Matches(msg Message) bool {
	if f.Window != nil && (msg.Source == nil || f.Window.ID() != msg.Source.ID()) {
		return false
	}
	return MatchDomain(f.Domain, msg.Origin)
}

// Handler handles one inbound request. The returned value becomes the reply
// payload; a returned error rejects only this reply.
type Handler func(ctx context.Context, msg Message) (any, error)

// SendFunc is a send capability: it delivers one envelope to the context it was
// issued for. Delivery failures are returned, never panicked.
type SendFunc func(ctx context.Context, env Envelope) error

// Bus is the origin-tagged request/response primitive.
type Bus interface {
	Send(ctx context.Context, target Window, name string, payload any, opts SendOptions) (Reply, error)
	On(name string, filter Filter, h Handler) (cancel func())
}

// Router is the outbound-routing layer behind a Bus.
type Router interface {
	// RegisterRemoteWindow marks w as a verified remote endpoint for domain.
	// Sends to w that cannot be delivered directly wait for a send capability.
	RegisterRemoteWindow(w Window, domain string)
	// RegisterRemoteSend installs send as the delivery mechanism for w.
	RegisterRemoteSend(w Window, domain string, send SendFunc)
	// Receive injects one inbound message into the local bus.
	Receive(ctx context.Context, msg Message) error
}
