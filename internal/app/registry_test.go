package app

import (
	"context"
	"testing"

	"github.com/dkeye/Meet/internal/core"
)

type stubSignal struct{ frames []core.Frame }

func (s *stubSignal) TrySend(f core.Frame) error { s.frames = append(s.frames, f); return nil }
func (s *stubSignal) Close()                     {}

func TestRegistry_SignalRebindCancelsPrevious(t *testing.T) {
	r := NewRegistry()
	first, second := &stubSignal{}, &stubSignal{}
	ctx1, cancel1 := context.WithCancel(context.Background())
	defer cancel1()

	r.BindSignal("c1", first, cancel1)
	r.BindSignal("c1", second, func() {})
	if ctx1.Err() == nil {
		t.Fatal("previous signal context not cancelled")
	}
	if sig, ok := r.Signal("c1"); !ok || sig != second {
		t.Fatal("signal not replaced")
	}
	if r.Unbind("c1", first) {
		t.Fatal("stale signal unbound the client")
	}
	if !r.Unbind("c1", second) {
		t.Fatal("current signal could not unbind")
	}
	if _, ok := r.Signal("c1"); ok {
		t.Fatal("client still bound")
	}
}

func TestRegistry_SessionBinding(t *testing.T) {
	r := NewRegistry()
	r.BindSignal("c1", &stubSignal{}, func() {})
	r.BindSignal("c2", &stubSignal{}, func() {})

	if r.BindStream("c1", func() {}) {
		t.Fatal("stream bound without a session")
	}
	stream, stop := context.WithCancel(context.Background())
	r.BindSession("c1", "s1")
	r.BindSession("c2", "s1")
	if !r.BindStream("c1", stop) {
		t.Fatal("stream not bound")
	}

	if sid, ok := r.SessionOf("c1"); !ok || sid != "s1" {
		t.Fatalf("SessionOf = %q, %v", sid, ok)
	}
	if got := len(r.ClientsOf("s1")); got != 2 {
		t.Fatalf("ClientsOf = %d, want 2", got)
	}

	r.ClearSession("c1")
	if stream.Err() == nil {
		t.Fatal("event pump not stopped on clear")
	}
	if _, ok := r.SessionOf("c1"); ok {
		t.Fatal("session still bound")
	}
	if got := len(r.ClientsOf("s1")); got != 1 {
		t.Fatalf("ClientsOf after clear = %d, want 1", got)
	}
}

func TestRegistry_MovingSessionStopsStream(t *testing.T) {
	r := NewRegistry()
	r.BindSession("c1", "s1")
	stream, stop := context.WithCancel(context.Background())
	r.BindStream("c1", stop)

	r.BindSession("c1", "s1")
	if stream.Err() != nil {
		t.Fatal("rejoining the same session stopped the stream")
	}
	r.BindSession("c1", "s2")
	if stream.Err() == nil {
		t.Fatal("stream of the previous session still running")
	}
}

func TestRegistry_Cancel(t *testing.T) {
	r := NewRegistry()
	if r.Cancel("missing") {
		t.Fatal("cancel of unknown client reported success")
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.BindSignal("c1", &stubSignal{}, cancel)
	if !r.Cancel("c1") || ctx.Err() == nil {
		t.Fatal("client context not cancelled")
	}
}
