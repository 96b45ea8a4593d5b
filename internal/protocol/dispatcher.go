package protocol

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// GameDataHandler handles one decoded game-data message. sender is the
// client id the message came from (0 when unknown).
type GameDataHandler func(ctx context.Context, msg GameDataMessage, sender int32) error

// RootHandler handles one decoded root message.
type RootHandler func(ctx context.Context, msg RootMessage, sender int32) error

// Dispatcher routes decoded messages to handlers registered per tag.
// Handlers run in registration order; the first error stops the chain.
type Dispatcher struct {
	mu       sync.RWMutex
	gameData map[GameDataTag][]GameDataHandler
	root     map[RootTag][]RootHandler
	logger   zerolog.Logger
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		gameData: make(map[GameDataTag][]GameDataHandler),
		root:     make(map[RootTag][]RootHandler),
		logger:   log.With().Str("component", "dispatcher").Logger(),
	}
}

// OnGameData registers a handler for a game-data tag.
func (d *Dispatcher) OnGameData(tag GameDataTag, h GameDataHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.gameData[tag] = append(d.gameData[tag], h)
}

// OnRoot registers a handler for a root tag.
func (d *Dispatcher) OnRoot(tag RootTag, h RootHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.root[tag] = append(d.root[tag], h)
}

// DispatchGameData runs every handler registered for msg's tag.
func (d *Dispatcher) DispatchGameData(ctx context.Context, msg GameDataMessage, sender int32) error {
	d.mu.RLock()
	handlers := append([]GameDataHandler(nil), d.gameData[msg.Tag()]...)
	d.mu.RUnlock()

	if len(handlers) == 0 {
		d.logger.Trace().Uint8("tag", uint8(msg.Tag())).Msg("no handler for game data message")
		return nil
	}
	for _, h := range handlers {
		if err := h(ctx, msg, sender); err != nil {
			return err
		}
	}
	return nil
}

// DispatchRoot runs every handler registered for msg's tag. GameData and
// GameDataTo payloads with no direct handler are unpacked and their inner
// messages dispatched in order.
func (d *Dispatcher) DispatchRoot(ctx context.Context, msg RootMessage, sender int32) error {
	d.mu.RLock()
	handlers := append([]RootHandler(nil), d.root[msg.Tag()]...)
	d.mu.RUnlock()

	if len(handlers) == 0 {
		switch m := msg.(type) {
		case *GameDataPayload:
			return d.dispatchBatch(ctx, m.Messages, sender)
		case *GameDataToPayload:
			return d.dispatchBatch(ctx, m.Messages, sender)
		}
		d.logger.Trace().Uint8("tag", uint8(msg.Tag())).Msg("no handler for root message")
		return nil
	}
	for _, h := range handlers {
		if err := h(ctx, msg, sender); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dispatcher) dispatchBatch(ctx context.Context, messages []GameDataMessage, sender int32) error {
	for _, m := range messages {
		if err := d.DispatchGameData(ctx, m, sender); err != nil {
			return err
		}
	}
	return nil
}
