package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/danmuck/crosslink/internal/bus"
	"github.com/danmuck/crosslink/internal/observability"
)

// TunnelRequest is the OPEN_TUNNEL payload a relay sends on behalf of a named window.
type TunnelRequest struct {
	Name string
	// Send delivers envelopes from this context to the named window.
	Send bus.SendFunc
}

// TunnelReply carries the capability the relay uses to deliver the named
// window's messages into this context.
type TunnelReply struct {
	Send bus.SendFunc
}

// ListenForRegister accepts OPEN_TUNNEL from source, scoped to domain.
// A rejected registration fails only its own reply.
func (p *Provisioner) ListenForRegister(source bus.Window, domain string) func() {
	filter := bus.Filter{Window: source, Domain: domain}
	return p.deps.Bus.On(bus.MsgOpenTunnel, filter, func(_ context.Context, msg bus.Message) (any, error) {
		reply, err := p.register(msg, domain)
		if err != nil {
			observability.RecordRegistration(domain, "rejected")
			p.logger.Warn().Err(err).Str("origin", msg.Origin).Msg("bridge.Provisioner.ListenForRegister rejected")
			return nil, err
		}
		observability.RecordRegistration(domain, "accepted")
		return reply, nil
	})
}

func (p *Provisioner) register(msg bus.Message, domain string) (TunnelReply, error) {
	if msg.Origin != domain {
		return TunnelReply{}, fmt.Errorf("%w: domain %s does not match origin %s", ErrDomainMismatch, domain, msg.Origin)
	}

	var req TunnelRequest
	switch data := msg.Envelope.Data.(type) {
	case TunnelRequest:
		req = data
	case *TunnelRequest:
		if data != nil {
			req = *data
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return TunnelReply{}, fmt.Errorf("%w: register window expected to be passed window name", ErrMissingField)
	}
	if req.Send == nil {
		return TunnelReply{}, fmt.Errorf("%w: register window %s expected to be passed send capability", ErrMissingField, name)
	}

	rec, ok := p.deps.Registry.ByName(name)
	if !ok {
		return TunnelReply{}, fmt.Errorf(
			"%w: window with name %s does not exist, or was not opened by this window",
			ErrUnknownWindow,
			name,
		)
	}
	if rec.Domain == "" {
		return TunnelReply{}, fmt.Errorf("%w: no registered domain for window %s", ErrUnverifiedDomain, name)
	}
	if rec.Domain != msg.Origin {
		return TunnelReply{}, fmt.Errorf(
			"%w: message origin %s does not match registered window origin %s",
			ErrUnverifiedDomain,
			msg.Origin,
			rec.Domain,
		)
	}

	p.deps.Router.RegisterRemoteSend(rec.Window, domain, req.Send)
	p.logger.Info().Str("name", name).Str("origin", msg.Origin).Msg("bridge.Provisioner.ListenForRegister tunnel opened")
	return TunnelReply{Send: p.inboundSend(name)}, nil
}

// inboundSend delivers the named window's envelopes into the local bus. The
// name is re-resolved on every call; delivery is dropped once the local
// context or the name is gone.
func (p *Provisioner) inboundSend(name string) bus.SendFunc {
	return func(ctx context.Context, env bus.Envelope) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("bridge: deliver from %s panicked: %v", name, r)
			}
		}()
		if p.deps.Host.IsClosed(p.deps.Host.Self()) {
			return nil
		}
		rec, ok := p.deps.Registry.ByName(name)
		if !ok {
			return nil
		}
		msg := bus.Message{Source: rec.Window, Origin: rec.Domain, Envelope: env}
		if err := p.deps.Router.Receive(ctx, msg); err != nil {
			return fmt.Errorf("bridge: deliver from %s: %w", name, err)
		}
		return nil
	}
}
