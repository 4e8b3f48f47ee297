package meeting

import (
	"context"
	"sync"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/dkeye/Meet/internal/domain"
	"github.com/rs/zerolog"
)

// bus is the per-session event stream. Every method runs under the owning
// session's lock, which makes the session the single writer.
type bus struct {
	session domain.SessionID
	seq     uint64
	journal []domain.Event
	maxLen  int
	bufSize int
	subs    map[uint64]*Subscription
	nextID  uint64
	policy  core.Policy
	now     func() time.Time
	logger  *zerolog.Logger
}

func newBus(id domain.SessionID, opts Options, logger *zerolog.Logger) *bus {
	return &bus{
		session: id,
		maxLen:  opts.JournalSize,
		bufSize: opts.SubscriberBuffer,
		subs:    make(map[uint64]*Subscription),
		policy:  opts.Policy,
		now:     opts.Now,
		logger:  logger,
	}
}

func (b *bus) publish(p domain.Payload) domain.Event {
	b.seq++
	ev := domain.Event{SessionID: b.session, Seq: b.seq, At: b.now(), Payload: p}

	b.journal = append(b.journal, ev)
	if over := len(b.journal) - b.maxLen; over > 0 {
		b.journal = append(b.journal[:0], b.journal[over:]...)
	}

	for id, sub := range b.subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}
		action := core.KickSubscriber
		if b.policy != nil {
			action = b.policy.OnBackPressure(b.session, sub.label)
		}
		switch action {
		case core.KickSubscriber:
			b.logger.Warn().Str("subscriber", sub.label).Uint64("seq", ev.Seq).Msg("subscriber buffer full, closing")
			b.closeSub(id, domain.ErrSlowSubscriber)
		case core.DropEvent, core.NoAction:
			b.logger.Debug().Str("subscriber", sub.label).Uint64("seq", ev.Seq).Msg("event dropped for slow subscriber")
		}
	}

	b.logger.Debug().Uint64("seq", ev.Seq).Str("kind", string(ev.Kind())).Msg("published")
	return ev
}

// replayAfter returns the journal tail after seq, or false when the journal
// no longer covers the gap.
func (b *bus) replayAfter(seq uint64) ([]domain.Event, bool) {
	if seq > b.seq {
		return nil, false
	}
	if seq == b.seq {
		return nil, true
	}
	if len(b.journal) == 0 || b.journal[0].Seq > seq+1 {
		return nil, false
	}
	start := int(seq + 1 - b.journal[0].Seq)
	out := make([]domain.Event, len(b.journal)-start)
	copy(out, b.journal[start:])
	return out, true
}

func (b *bus) add(label string, backlog []domain.Event, snap *domain.Snapshot, unsub func(uint64)) *Subscription {
	b.nextID++
	sub := &Subscription{
		id:       b.nextID,
		label:    label,
		session:  b.session,
		snapshot: snap,
		ch:       make(chan domain.Event, len(backlog)+b.bufSize),
		done:     make(chan struct{}),
		unsub:    unsub,
	}
	for _, ev := range backlog {
		sub.ch <- ev
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *bus) closeSub(id uint64, reason error) {
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	sub.finish(reason)
}

func (b *bus) closeAll(reason error) {
	for id := range b.subs {
		b.closeSub(id, reason)
	}
}

func (b *bus) count() int { return len(b.subs) }

// Subscription is one consumer of a session's events. Events arrive in
// sequence order; after a resume some may repeat, so consumers de-duplicate
// with a Cursor.
type Subscription struct {
	id       uint64
	label    string
	session  domain.SessionID
	snapshot *domain.Snapshot
	ch       chan domain.Event
	done     chan struct{}
	unsub    func(uint64)

	mu  sync.Mutex
	err error
}

func (s *Subscription) SessionID() domain.SessionID { return s.session }

// Snapshot is nil when the subscription resumed from the journal.
func (s *Subscription) Snapshot() *domain.Snapshot { return s.snapshot }

func (s *Subscription) Events() <-chan domain.Event { return s.ch }

// Done is closed once the subscription ends; buffered events stay readable.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Next blocks until the next event, the end of the stream or ctx.
func (s *Subscription) Next(ctx context.Context) (domain.Event, error) {
	select {
	case ev, ok := <-s.ch:
		if !ok {
			return domain.Event{}, s.Err()
		}
		return ev, nil
	case <-ctx.Done():
		return domain.Event{}, ctx.Err()
	}
}

// Err reports why the stream ended, nil while it is open.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Subscription) Close() {
	if s.unsub != nil {
		s.unsub(s.id)
	}
}

// finish runs under the session lock, so no publish can race the close.
func (s *Subscription) finish(reason error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = reason
	}
	s.mu.Unlock()
	close(s.ch)
	close(s.done)
}

// Cursor de-duplicates a session stream by sequence number.
type Cursor struct {
	session domain.SessionID
	last    uint64
}

func NewCursor(session domain.SessionID, after uint64) *Cursor {
	return &Cursor{session: session, last: after}
}

// Accept reports whether ev is new for this cursor and advances it.
func (c *Cursor) Accept(ev domain.Event) bool {
	if ev.SessionID != c.session || ev.Seq <= c.last {
		return false
	}
	c.last = ev.Seq
	return true
}

// Gap reports whether ev skips over sequence numbers the cursor never saw.
func (c *Cursor) Gap(ev domain.Event) bool {
	return ev.SessionID == c.session && ev.Seq > c.last+1
}

func (c *Cursor) Last() uint64 { return c.last }
