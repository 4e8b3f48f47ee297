package meeting

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/domain"
)

// fakeRecorder hangs the first `hang` BeginRecording calls until ctx is done.
type fakeRecorder struct {
	mu      sync.Mutex
	hang    int
	begins  int
	ended   []string
	endFail bool
}

func (f *fakeRecorder) BeginRecording(ctx context.Context, _ domain.SessionID) (string, error) {
	f.mu.Lock()
	f.begins++
	n := f.begins
	hang := n <= f.hang
	f.mu.Unlock()
	if hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return fmt.Sprintf("rec-%d", n), nil
}

func (f *fakeRecorder) EndRecording(ctx context.Context, handle string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.endFail {
		return fmt.Errorf("disk full")
	}
	f.ended = append(f.ended, handle)
	return nil
}

func (f *fakeRecorder) counts() (begins int, ended []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begins, append([]string(nil), f.ended...)
}

func testOptions() Options {
	o := DefaultOptions()
	o.AdmissionTimeout = time.Second
	o.AdmissionRetention = 50 * time.Millisecond
	o.ReconnectGrace = time.Second
	o.Recording = RecordingOptions{AckTimeout: 30 * time.Millisecond, Backoff: []time.Duration{5 * time.Millisecond}}
	return o
}

func openSession(t *testing.T, opts Options, guests ...domain.ParticipantID) *Session {
	t.Helper()
	opts.AdmissionPolicy = domain.AdmissionOpen
	s := New("s1", opts)
	if _, err := s.Join("h", "Host"); err != nil {
		t.Fatalf("host join: %v", err)
	}
	for _, g := range guests {
		if _, err := s.Join(g, string(g)); err != nil {
			t.Fatalf("guest %s join: %v", g, err)
		}
	}
	return s
}

func next(t *testing.T, sub *Subscription) domain.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := sub.Next(ctx)
	if err != nil {
		t.Fatalf("next event: %v", err)
	}
	return ev
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// drain reads whatever is buffered without blocking.
func drain(sub *Subscription) []domain.Event {
	var out []domain.Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}
