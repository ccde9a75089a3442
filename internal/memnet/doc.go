// Package memnet is a process-local network of execution contexts.
//
// Each Context implements bus.Bus, bus.Router, host.Host and host.Opener, so a
// whole multi-origin topology (pages, hidden frames, popups) can run inside one
// process. Direct delivery between two origins can be restricted, in which case
// messages only flow through send capabilities registered on the Router.
//
// Pages are served per origin: when a frame or popup for an origin loads, the
// registered Page runs against the new Context before its load signal fires.
package memnet
