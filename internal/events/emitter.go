package events

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Emitter dispatches typed events synchronously to listeners registered with
// On. An emitter can have a parent; every event emitted on it is delivered to
// the parent chain first (owner entity, then room) and then to the local
// listeners, so a cancel or revert made anywhere up the chain is visible to
// the caller as soon as Emit returns.
type Emitter struct {
	mu        sync.Mutex
	parent    *Emitter
	listeners map[reflect.Type][]listener
	nextID    uint64
	logger    zerolog.Logger
}

type listener struct {
	id   uint64
	once bool
	fn   func(any)
}

// maxChainDepth bounds parent traversal: component, owner entity, room.
const maxChainDepth = 3

// NewEmitter creates an emitter whose events bubble to parent (may be nil).
func NewEmitter(parent *Emitter) *Emitter {
	return &Emitter{
		parent:    parent,
		listeners: make(map[reflect.Type][]listener),
		logger:    log.With().Str("component", "emitter").Logger(),
	}
}

// SetParent rebinds the emitter's parent.
func (e *Emitter) SetParent(parent *Emitter) {
	e.mu.Lock()
	e.parent = parent
	e.mu.Unlock()
}

// Parent returns the emitter events bubble to.
func (e *Emitter) Parent() *Emitter {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.parent
}

// SetLogger replaces the logger used to report listener panics.
func (e *Emitter) SetLogger(l zerolog.Logger) {
	e.logger = l
}

// On registers fn for events of type E on em and returns a function that
// removes the registration.
func On[E any](em *Emitter, fn func(E)) (off func()) {
	return em.add(reflect.TypeFor[E](), false, func(v any) { fn(v.(E)) })
}

// Once registers fn for the next event of type E only.
func Once[E any](em *Emitter, fn func(E)) (off func()) {
	return em.add(reflect.TypeFor[E](), true, func(v any) { fn(v.(E)) })
}

func (e *Emitter) add(t reflect.Type, once bool, fn func(any)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	id := e.nextID
	e.listeners[t] = append(e.listeners[t], listener{id: id, once: once, fn: fn})
	return func() { e.remove(t, id) }
}

func (e *Emitter) remove(t reflect.Type, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ls := e.listeners[t]
	for i, l := range ls {
		if l.id == id {
			e.listeners[t] = append(ls[:i:i], ls[i+1:]...)
			return
		}
	}
}

// ListenerCount returns the number of local listeners for events of type E.
func ListenerCount[E any](em *Emitter) int {
	em.mu.Lock()
	defer em.mu.Unlock()
	return len(em.listeners[reflect.TypeFor[E]()])
}

// Emit delivers ev up the parent chain and then to local listeners, in
// registration order. It returns ev so callers can chain a Canceled check.
func Emit[E any](em *Emitter, ev E) E {
	t := reflect.TypeFor[E]()

	chain := make([]*Emitter, 0, maxChainDepth)
	for p := em.Parent(); p != nil && len(chain) < maxChainDepth-1; p = p.Parent() {
		chain = append(chain, p)
	}
	for _, p := range chain {
		p.deliver(t, ev)
	}
	em.deliver(t, ev)
	return ev
}

func (e *Emitter) deliver(t reflect.Type, ev any) {
	e.mu.Lock()
	ls := e.listeners[t]
	if len(ls) == 0 {
		e.mu.Unlock()
		return
	}
	snapshot := make([]listener, len(ls))
	copy(snapshot, ls)

	kept := ls[:0:0]
	for _, l := range ls {
		if !l.once {
			kept = append(kept, l)
		}
	}
	e.listeners[t] = kept
	e.mu.Unlock()

	for _, l := range snapshot {
		e.call(l, ev)
	}
}

func (e *Emitter) call(l listener, ev any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().
				Str("event", fmt.Sprintf("%T", ev)).
				Interface("panic", r).
				Msg("event listener panicked")
		}
	}()
	l.fn(ev)
}

// Cancelable is embedded in events whose default action a listener may
// suppress.
type Cancelable struct {
	canceled bool
}

// Cancel suppresses the event's default action.
func (c *Cancelable) Cancel() { c.canceled = true }

// Canceled reports whether any listener called Cancel.
func (c *Cancelable) Canceled() bool { return c.canceled }

// Revertible is embedded in events reporting a mutation that already
// happened locally and that a listener may roll back.
type Revertible struct {
	reverted bool
}

// Revert asks the emitter to restore the state from before the mutation.
func (r *Revertible) Revert() { r.reverted = true }

// Reverted reports whether any listener called Revert.
func (r *Revertible) Reverted() bool { return r.reverted }

// Mutation describes a proposed change from Old to New. Listeners may Revert
// it or Alter the value that gets committed; Revert wins over Alter.
type Mutation[T any] struct {
	Revertible
	Old T
	New T

	altered   bool
	alteredTo T
}

// NewMutation returns a mutation proposing a change from old to proposed.
func NewMutation[T any](old, proposed T) Mutation[T] {
	return Mutation[T]{Old: old, New: proposed}
}

// Alter replaces the value that will be committed.
func (m *Mutation[T]) Alter(v T) {
	m.altered = true
	m.alteredTo = v
}

// Altered returns the value set by Alter, if any.
func (m *Mutation[T]) Altered() (T, bool) {
	return m.alteredTo, m.altered
}

// Resolve returns the value to commit: Old when reverted, the altered value
// when one was supplied, New otherwise.
func (m *Mutation[T]) Resolve() T {
	switch {
	case m.reverted:
		return m.Old
	case m.altered:
		return m.alteredTo
	default:
		return m.New
	}
}
