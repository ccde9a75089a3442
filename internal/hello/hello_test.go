package hello

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/crosslink/internal/bus"
	"github.com/danmuck/crosslink/internal/memnet"
	"github.com/danmuck/crosslink/internal/testutil/testlog"
	"golang.org/x/sync/errgroup"
)

const (
	originA = "https://a.example"
	originB = "https://b.example"
)

func newTops(t *testing.T) (*memnet.Network, *memnet.Context, *memnet.Context) {
	t.Helper()
	n := memnet.NewNetwork()
	a, err := n.NewTop(originA + "/app")
	if err != nil {
		t.Fatalf("new top a: %v", err)
	}
	b, err := n.NewTop(originB + "/app")
	if err != nil {
		t.Fatalf("new top b: %v", err)
	}
	return n, a, b
}

func TestHandshakeSymmetry(t *testing.T) {
	testlog.Start(t)
	for _, aFirst := range []bool{true, false} {
		_, a, b := newTops(t)
		pa := New(a, a, "instance.a")
		pb := New(b, b, "instance.b")
		pa.Listen()
		pb.Listen()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		var greeting Greeting
		var err error
		if aFirst {
			greeting, err = pa.SayHello(ctx, b)
		} else {
			greeting, err = pb.SayHello(ctx, a)
		}
		if err != nil {
			cancel()
			t.Fatalf("say hello (aFirst=%v): %v", aFirst, err)
		}
		if aFirst && (greeting.Domain != originB || greeting.InstanceID != "instance.b") {
			t.Fatalf("unexpected greeting: %+v", greeting)
		}
		if !aFirst && (greeting.Domain != originA || greeting.InstanceID != "instance.a") {
			t.Fatalf("unexpected greeting: %+v", greeting)
		}

		gotB, err := pa.AwaitWindowHello(ctx, b, time.Second, "B")
		if err != nil {
			cancel()
			t.Fatalf("a awaiting b (aFirst=%v): %v", aFirst, err)
		}
		gotA, err := pb.AwaitWindowHello(ctx, a, time.Second, "A")
		cancel()
		if err != nil {
			t.Fatalf("b awaiting a (aFirst=%v): %v", aFirst, err)
		}
		if gotB.Domain != originB || gotB.Window.ID() != b.ID() {
			t.Fatalf("unexpected result for b: %+v", gotB)
		}
		if gotA.Domain != originA || gotA.Window.ID() != a.ID() {
			t.Fatalf("unexpected result for a: %+v", gotA)
		}
	}
}

func TestAwaitWindowHelloTimeoutNamesLabel(t *testing.T) {
	testlog.Start(t)
	_, a, b := newTops(t)
	pa := New(a, a, "")

	start := time.Now()
	_, err := pa.AwaitWindowHello(context.Background(), b, 10*time.Millisecond, "X")
	if !errors.Is(err, ErrHelloTimeout) || !errors.Is(err, bus.ErrTimeout) {
		t.Fatalf("expected ErrHelloTimeout, got %v", err)
	}
	if !IsTimeout(err) {
		t.Fatalf("IsTimeout should match %v", err)
	}
	if msg := err.Error(); !strings.Contains(msg, "X") || !strings.Contains(msg, "10") {
		t.Fatalf("timeout message should name label and timeout: %q", msg)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("timeout took too long: %v", elapsed)
	}
}

func TestAwaitWindowHelloTimeoutLeavesFuturePending(t *testing.T) {
	testlog.Start(t)
	_, a, b := newTops(t)
	pa := New(a, a, "")
	pb := New(b, b, "")
	pa.Listen()

	if _, err := pa.AwaitWindowHello(context.Background(), b, 5*time.Millisecond, ""); !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if _, err := pb.SayHello(context.Background(), a); err != nil {
		t.Fatalf("late hello: %v", err)
	}
	got, err := pa.AwaitWindowHello(context.Background(), b, time.Second, "")
	if err != nil {
		t.Fatalf("late await: %v", err)
	}
	if got.Domain != originB {
		t.Fatalf("unexpected domain=%q", got.Domain)
	}
}

func TestAwaitWindowHelloNoTimeoutUsesContext(t *testing.T) {
	testlog.Start(t)
	_, a, b := newTops(t)
	pa := New(a, a, "")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := pa.AwaitWindowHello(ctx, b, bus.NoTimeout, ""); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected ctx deadline, got %v", err)
	}
}

func TestWindowInstanceIDSaysHelloOnce(t *testing.T) {
	testlog.Start(t)
	_, a, b := newTops(t)
	var hellos atomic.Int32
	b.On(bus.MsgHello, bus.Filter{Domain: bus.Wildcard}, func(context.Context, bus.Message) (any, error) {
		hellos.Add(1)
		return Payload{InstanceID: "instance.b"}, nil
	})
	pa := New(a, a, "")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var (
		mu  sync.Mutex
		ids = map[string]int{}
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			id, err := pa.WindowInstanceID(gctx, b)
			if err != nil {
				return err
			}
			mu.Lock()
			ids[id]++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("instance id: %v", err)
	}
	if len(ids) != 1 || ids["instance.b"] != 8 {
		t.Fatalf("unexpected ids: %v", ids)
	}
	if hellos.Load() != 1 {
		t.Fatalf("expected one hello, got %d", hellos.Load())
	}
}

func TestInitGreetsAncestor(t *testing.T) {
	testlog.Start(t)
	n, a, _ := newTops(t)
	pa := New(a, a, "")
	pa.Listen()
	n.Serve(originB, func(ctx context.Context, c *memnet.Context) error {
		New(c, c, "").Init(ctx)
		return nil
	})

	child, err := a.Open(context.Background(), originB+"/popup", "popup")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	got, err := pa.AwaitWindowHello(context.Background(), child, time.Second, "Popup")
	if err != nil {
		t.Fatalf("await child hello: %v", err)
	}
	if got.Domain != originB {
		t.Fatalf("unexpected child domain=%q", got.Domain)
	}
}

func TestInitWithoutAncestorOnlyListens(t *testing.T) {
	testlog.Start(t)
	_, a, b := newTops(t)
	pa := New(a, a, "instance.a")
	pa.Init(context.Background())
	pa.Init(context.Background())

	pb := New(b, b, "")
	greeting, err := pb.SayHello(context.Background(), a)
	if err != nil {
		t.Fatalf("say hello: %v", err)
	}
	if greeting.InstanceID != "instance.a" {
		t.Fatalf("unexpected instance id=%q", greeting.InstanceID)
	}
}

func TestSweepDropsClosedWindows(t *testing.T) {
	testlog.Start(t)
	_, a, b := newTops(t)
	pa := New(a, a, "")
	pa.Listen()
	pb := New(b, b, "")
	if _, err := pb.SayHello(context.Background(), a); err != nil {
		t.Fatalf("say hello: %v", err)
	}
	if _, err := pa.AwaitWindowHello(context.Background(), b, time.Second, ""); err != nil {
		t.Fatalf("await: %v", err)
	}
	if n := pa.Sweep(); n != 0 {
		t.Fatalf("open window should not be swept, got %d", n)
	}
	b.Close()
	if n := pa.Sweep(); n != 1 {
		t.Fatalf("expected one swept entry, got %d", n)
	}
}

func TestCloseRemovesListener(t *testing.T) {
	testlog.Start(t)
	_, a, b := newTops(t)
	pa := New(a, a, "")
	pa.Listen()
	pa.Close()
	pb := New(b, b, "")
	if _, err := pb.SayHello(context.Background(), a); !errors.Is(err, bus.ErrRemote) {
		t.Fatalf("expected no handler after close, got %v", err)
	}
}
