package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// HandlerFunc handles one bus notification.
type HandlerFunc func(ctx context.Context, event Event) error

// EventBus is an asynchronous publish-subscribe bus. Rooms publish coarse
// notifications on it; storage, telemetry and the spectator hub subscribe.
//
// Every subscription owns a goroutine and an unbounded mailbox, so one
// subscription sees its events in emission order while different
// subscriptions run independently. Handlers never run on a room's goroutine.
type EventBus struct {
	mu      sync.RWMutex
	subs    map[EventType][]*subscription
	stopCh  chan struct{}
	stopped bool
	wg      sync.WaitGroup
	logger  zerolog.Logger
}

type delivery struct {
	ctx   context.Context
	event Event
	done  func(error)
}

type subscription struct {
	name    string
	handler HandlerFunc

	mu     sync.Mutex
	queue  []delivery
	closed bool
	wake   chan struct{}
}

// NewEventBus creates a new EventBus instance.
func NewEventBus() *EventBus {
	return &EventBus{
		subs:   make(map[EventType][]*subscription),
		stopCh: make(chan struct{}),
		logger: log.With().Str("component", "eventbus").Logger(),
	}
}

// Subscribe registers a named handler for an event type. Subscribing after
// Stop is a no-op.
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.stopped {
		eb.logger.Warn().Str("event", string(eventType)).Str("handler", name).Msg("subscribe after stop ignored")
		return
	}

	sub := &subscription{name: name, handler: handler, wake: make(chan struct{}, 1)}
	eb.subs[eventType] = append(eb.subs[eventType], sub)
	eb.wg.Add(1)
	go eb.serve(sub)

	eb.logger.Debug().Str("event", string(eventType)).Str("handler", name).Msg("subscribed to event")
}

// Unsubscribe removes a named handler. Events already queued for it are
// still delivered.
func (eb *EventBus) Unsubscribe(eventType EventType, name string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	kept := eb.subs[eventType][:0]
	for _, sub := range eb.subs[eventType] {
		if sub.name == name {
			sub.close()
			continue
		}
		kept = append(kept, sub)
	}
	eb.subs[eventType] = kept
}

func (s *subscription) push(d delivery) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, d)
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return true
}

func (s *subscription) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// serve drains the mailbox of one subscription until it is closed and empty.
func (eb *EventBus) serve(sub *subscription) {
	defer eb.wg.Done()
	for {
		sub.mu.Lock()
		batch := sub.queue
		sub.queue = nil
		closed := sub.closed
		sub.mu.Unlock()

		if len(batch) == 0 {
			if closed {
				return
			}
			<-sub.wake
			continue
		}
		for _, d := range batch {
			err := eb.run(d.ctx, sub, d.event)
			if d.done != nil {
				d.done(err)
			}
		}
	}
}

// run calls one handler, recovering panics.
func (eb *EventBus) run(ctx context.Context, sub *subscription, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error().
				Str("event", string(event.Type)).
				Str("handler", sub.name).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	if err = sub.handler(ctx, event); err != nil {
		eb.logger.Error().
			Err(err).
			Str("event", string(event.Type)).
			Str("handler", sub.name).
			Msg("handler returned error")
	}
	return err
}

// targets returns the subscriptions for t, or nil once stopped.
func (eb *EventBus) targets(t EventType) []*subscription {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	if eb.stopped {
		return nil
	}
	return append([]*subscription(nil), eb.subs[t]...)
}

// Emit queues an event for every subscribed handler without waiting.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	subs := eb.targets(event.Type)
	eb.logger.Trace().
		Str("event", string(event.Type)).
		Str("source", event.Source).
		Int("handlers", len(subs)).
		Msg("emitting event")

	for _, sub := range subs {
		sub.push(delivery{ctx: ctx, event: event})
	}
}

// EmitSync queues an event and waits until every handler has run it. It
// returns the first handler error. It must not be called from a handler of
// the same event type.
func (eb *EventBus) EmitSync(ctx context.Context, event Event) error {
	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)
	done := func(err error) {
		if err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = err
			}
			mu.Unlock()
		}
		wg.Done()
	}

	subs := eb.targets(event.Type)
	wg.Add(len(subs))
	for _, sub := range subs {
		if !sub.push(delivery{ctx: ctx, event: event, done: done}) {
			wg.Done()
		}
	}

	wg.Wait()
	return firstErr
}

// Stop stops accepting new events and waits until every queued event has
// been handled.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	if eb.stopped {
		eb.mu.Unlock()
		return
	}
	eb.stopped = true
	close(eb.stopCh)
	for _, subs := range eb.subs {
		for _, sub := range subs {
			sub.close()
		}
	}
	eb.mu.Unlock()

	eb.wg.Wait()
	eb.logger.Info().Msg("event bus stopped")
}

// StopCh returns a channel that is closed when the EventBus is stopped.
func (eb *EventBus) StopCh() <-chan struct{} {
	return eb.stopCh
}

// HandlerCount returns the number of handlers registered for an event type.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subs[eventType])
}
