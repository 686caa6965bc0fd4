package events

import (
	"sync"

	"go.uber.org/zap"

	"cartpilot/internal"
)

// Sink receives narration events in the order stages produce them.
type Sink interface {
	Emit(ev internal.Event)
}

type Func func(ev internal.Event)

func (f Func) Emit(ev internal.Event) { f(ev) }

type Discard struct{}

func (Discard) Emit(internal.Event) {}

// Multi fans one event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(ev internal.Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ev)
		}
	}
}

// Queue keeps events in append order until drained.
type Queue struct {
	mu     sync.Mutex
	events []internal.Event
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Emit(ev internal.Event) {
	q.mu.Lock()
	q.events = append(q.events, ev)
	q.mu.Unlock()
}

func (q *Queue) Events() []internal.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]internal.Event, len(q.events))
	copy(out, q.events)
	return out
}

func (q *Queue) Drain() []internal.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return LogSink{logger: logger}
}

func (s LogSink) Emit(ev internal.Event) {
	s.logger.Info(ev.Message,
		zap.String("event_id", ev.ID),
		zap.String("stage", string(ev.StageID)),
		zap.String("kind", string(ev.Kind)),
		zap.Time("at", ev.Timestamp),
	)
}
