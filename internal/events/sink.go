package events

import (
	"sync"

	"github.com/google/uuid"
)

// Sink receives envelopes in order. Publish must not block on downstream
// consumers.
type Sink interface {
	Publish(env Envelope)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Envelope)

// Publish calls f.
func (f SinkFunc) Publish(env Envelope) { f(env) }

// Discard drops every envelope.
var Discard Sink = SinkFunc(func(Envelope) {})

// Bus stamps each envelope with the next sequence number and a unique ID,
// then hands it to every attached sink while holding its lock, so all sinks
// observe the same order.
type Bus struct {
	mu    sync.Mutex
	seq   uint64
	sinks []Sink
}

// NewBus creates a bus feeding sinks.
func NewBus(sinks ...Sink) *Bus {
	return &Bus{sinks: sinks}
}

// Attach adds a sink. Only envelopes published afterwards reach it.
func (b *Bus) Attach(s Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sinks = append(b.sinks, s)
}

// Publish stamps env and fans it out.
func (b *Bus) Publish(env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	env.Seq = b.seq
	if env.ID == "" {
		env.ID = uuid.NewString()
	}
	for _, s := range b.sinks {
		s.Publish(env)
	}
}

// Seq returns the last sequence number issued.
func (b *Bus) Seq() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seq
}

// Log is an append-only in-memory record of envelopes.
type Log struct {
	mu      sync.RWMutex
	entries []Envelope
}

// NewLog creates an empty log.
func NewLog() *Log { return &Log{} }

// Publish appends env.
func (l *Log) Publish(env Envelope) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, env)
}

// All returns a copy of every entry.
func (l *Log) All() []Envelope {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Envelope(nil), l.entries...)
}

// Since returns entries with Seq greater than seq.
func (l *Log) Since(seq uint64) []Envelope {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Envelope
	for _, e := range l.entries {
		if e.Seq > seq {
			out = append(out, e)
		}
	}
	return out
}

// OfKind returns the entries of kind k.
func (l *Log) OfKind(k Kind) []Envelope {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Envelope
	for _, e := range l.entries {
		if e.Kind() == k {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Queue hands envelopes to a single consumer without ever blocking the
// publisher: envelopes wait in an unbounded pending list until the consumer
// reads them from C.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []Envelope
	closed  bool
	out     chan Envelope
}

// NewQueue creates a queue and starts its delivery goroutine.
func NewQueue() *Queue {
	q := &Queue{out: make(chan Envelope)}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// Publish enqueues env. Envelopes published after Close are dropped.
func (q *Queue) Publish(env Envelope) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.pending = append(q.pending, env)
	q.cond.Signal()
}

// C is the consumer side. It is closed once Close was called and every
// pending envelope was delivered.
func (q *Queue) C() <-chan Envelope { return q.out }

// Pending returns how many envelopes await delivery.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting envelopes. Pending ones are still delivered.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *Queue) run() {
	defer close(q.out)
	for {
		q.mu.Lock()
		for len(q.pending) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.pending) == 0 {
			q.mu.Unlock()
			return
		}
		env := q.pending[0]
		q.pending = q.pending[1:]
		q.mu.Unlock()

		q.out <- env
	}
}
