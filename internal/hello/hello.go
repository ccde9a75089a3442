// Package hello implements the symmetric HELLO handshake.
//
// Either side may say hello first; the first completed exchange in either
// direction resolves that window's handshake future with the verified origin
// the bus tagged the message or reply with.
package hello

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/danmuck/crosslink/internal/bus"
	"github.com/danmuck/crosslink/internal/future"
	"github.com/danmuck/crosslink/internal/host"
	"github.com/danmuck/crosslink/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout = 5 * time.Second
	DefaultLabel   = "Window"
)

var (
	ErrHelloTimeout   = fmt.Errorf("%w: hello", bus.ErrTimeout)
	ErrInvalidPayload = fmt.Errorf("%w: hello: invalid payload", bus.ErrProtocol)
)

// Payload is the HELLO request and reply body.
type Payload struct {
	InstanceID string `json:"instance_id"`
}

// Result is a resolved handshake.
type Result struct {
	Window bus.Window
	Domain string
}

// Greeting is the outcome of one SayHello round trip.
type Greeting struct {
	Window     bus.Window
	Domain     string
	InstanceID string
}

// Protocol owns the handshake state of one context.
type Protocol struct {
	bus        bus.Bus
	host       host.Host
	instanceID string
	logger     zerolog.Logger

	hellos      *future.Memo[bus.WindowID, Result]
	instanceIDs *future.Memo[bus.WindowID, string]

	listenOnce sync.Once
	mu         sync.Mutex
	stop       func()
}

// New builds a Protocol. An empty instanceID gets a fresh random one.
func New(b bus.Bus, h host.Host, instanceID string) *Protocol {
	if instanceID == "" {
		instanceID = host.UniqueID()
	}
	return &Protocol{
		bus:         b,
		host:        h,
		instanceID:  instanceID,
		logger:      log.Logger.With().Str("component", "hello").Str("domain", h.Domain()).Logger(),
		hellos:      future.NewMemo[bus.WindowID, Result](),
		instanceIDs: future.NewMemo[bus.WindowID, string](),
	}
}

// WithLogger replaces the protocol logger.
func (p *Protocol) WithLogger(logger zerolog.Logger) *Protocol {
	p.logger = logger
	return p
}

// InstanceID is this context's runtime instance token.
func (p *Protocol) InstanceID() string {
	return p.instanceID
}

func (p *Protocol) helloFuture(w bus.Window) *future.Future[Result] {
	f, _ := p.hellos.GetOrCreate(w.ID())
	return f
}

// Listen installs the HELLO listener once for this Protocol.
func (p *Protocol) Listen() {
	p.listenOnce.Do(func() {
		stop := p.bus.On(bus.MsgHello, bus.Filter{Domain: bus.Wildcard}, func(_ context.Context, msg bus.Message) (any, error) {
			if msg.Source == nil {
				return nil, fmt.Errorf("%w: missing source from %s", ErrInvalidPayload, msg.Origin)
			}
			if p.helloFuture(msg.Source).Resolve(Result{Window: msg.Source, Domain: msg.Origin}) {
				observability.RecordHandshake("inbound", msg.Origin)
			}
			p.logger.Debug().Str("source", string(msg.Source.ID())).Str("origin", msg.Origin).Msg("hello.Protocol.Listen received hello")
			return Payload{InstanceID: p.instanceID}, nil
		})
		p.mu.Lock()
		p.stop = stop
		p.mu.Unlock()
	})
}

// SayHello sends HELLO to w, accepting a reply from any origin without a
// transport timeout, and resolves w's handshake with the reply origin.
func (p *Protocol) SayHello(ctx context.Context, w bus.Window) (Greeting, error) {
	reply, err := p.bus.Send(ctx, w, bus.MsgHello, Payload{InstanceID: p.instanceID}, bus.SendOptions{
		Domain:  bus.Wildcard,
		Timeout: bus.NoTimeout,
	})
	if err != nil {
		return Greeting{}, err
	}
	payload, ok := reply.Data.(Payload)
	if !ok {
		return Greeting{}, fmt.Errorf("%w: reply from %s has type %T", ErrInvalidPayload, reply.Origin, reply.Data)
	}
	if p.helloFuture(w).Resolve(Result{Window: w, Domain: reply.Origin}) {
		observability.RecordHandshake("outbound", reply.Origin)
	}
	return Greeting{Window: w, Domain: reply.Origin, InstanceID: payload.InstanceID}, nil
}

// AwaitWindowHello waits for w's handshake. timeout of bus.NoTimeout waits
// until ctx is done; a zero timeout uses DefaultTimeout. The deadline rejects
// only this caller.
func (p *Protocol) AwaitWindowHello(ctx context.Context, w bus.Window, timeout time.Duration, label string) (Result, error) {
	if label == "" {
		label = DefaultLabel
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	f := p.helloFuture(w)
	if timeout == bus.NoTimeout {
		return f.Wait(ctx)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.Done():
		return f.Wait(ctx)
	case <-timer.C:
		observability.RecordHandshakeTimeout(label)
		return Result{}, fmt.Errorf("%w: %s did not load after %dms", ErrHelloTimeout, label, timeout.Milliseconds())
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// WindowInstanceID returns w's instance id, saying hello at most once per window.
func (p *Protocol) WindowInstanceID(ctx context.Context, w bus.Window) (string, error) {
	f, created := p.instanceIDs.GetOrCreate(w.ID())
	if created {
		go func() {
			greeting, err := p.SayHello(context.WithoutCancel(ctx), w)
			if err != nil {
				f.Reject(err)
				return
			}
			f.Resolve(greeting.InstanceID)
		}()
	}
	return f.Wait(ctx)
}

// Init installs the listener and greets the ancestor context, if any, in the background.
func (p *Protocol) Init(ctx context.Context) {
	p.Listen()
	parent, ok := p.host.Ancestor()
	if !ok {
		return
	}
	go func() {
		if _, err := p.SayHello(context.WithoutCancel(ctx), parent); err != nil {
			p.logger.Debug().Err(err).Str("ancestor", string(parent.ID())).Msg("hello.Protocol.Init ancestor hello failed")
		}
	}()
}

// Sweep drops handshake and instance-id entries for closed windows.
func (p *Protocol) Sweep() int {
	closed := func(id bus.WindowID) bool {
		return p.host.IsClosed(windowRef(id))
	}
	return p.hellos.DeleteFunc(closed) + p.instanceIDs.DeleteFunc(closed)
}

// Close removes the HELLO listener.
func (p *Protocol) Close() {
	p.mu.Lock()
	stop := p.stop
	p.stop = nil
	p.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// IsTimeout reports whether err is a handshake deadline failure.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrHelloTimeout)
}

// windowRef is a bare handle for an id already known to the host.
type windowRef bus.WindowID

func (w windowRef) ID() bus.WindowID { return bus.WindowID(w) }
