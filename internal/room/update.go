package room

import (
	"context"
	"fmt"
	"slices"

	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/logic"
	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/systems"
)

// FixedUpdate runs one tick: due timers fire, every component we simulate
// updates and serializes its delta when dirty, pending end-game intents are
// resolved, and the queued stream is broadcast as one batch.
func (r *Room) FixedUpdate(ctx context.Context) error {
	if r.destroyed {
		return ErrRoomDestroyed
	}

	now := r.clock.Now()
	delta := now.Sub(r.lastTick)
	r.lastTick = now

	r.runTimers(now)
	if r.destroyed {
		return ErrRoomDestroyed
	}

	for _, netID := range sortedNetIDs(r.netObjects) {
		c, ok := r.netObjects[netID]
		if !ok || !c.base().CanSimulate() {
			continue
		}
		c.FixedUpdate(delta)
		if !c.Dirty() {
			continue
		}
		w := protocol.NewWriter()
		c.PreSerialize()
		if c.Serialize(w, false) {
			r.QueueMessage(&protocol.DataMessage{NetID: netID, Data: w.Copy()})
		}
		c.ClearDirty()
	}

	r.resolveEndGameIntents()

	stream, payloads, direct := r.stream, r.payloads, r.direct
	r.stream, r.payloads = nil, nil
	r.direct = make(map[int32][]protocol.GameDataMessage)

	ev := events.Emit(r.emitter, &FixedUpdateEvent{Delta: delta, Messages: stream})
	if ev.Canceled() {
		return nil
	}

	if len(stream) > 0 || len(payloads) > 0 {
		if err := r.broadcaster.Broadcast(ctx, stream, true, Everyone, payloads); err != nil {
			return fmt.Errorf("failed to broadcast tick: %w", err)
		}
	}
	for _, recipient := range sortedRecipients(direct) {
		if err := r.broadcaster.Broadcast(ctx, direct[recipient], true, recipient, nil); err != nil {
			return fmt.Errorf("failed to send to client %d: %w", recipient, err)
		}
	}
	return nil
}

// checkEndConditions registers an intent for every end condition the
// current player table meets.
func (r *Room) checkEndConditions(cause logic.Cause) {
	if !r.IsHost() || !r.started || r.GameData == nil {
		return
	}
	infos := r.GameData.Players()
	states := make([]logic.PlayerState, 0, len(infos))
	for _, info := range infos {
		s := logic.PlayerState{
			Impostor:     info.IsImpostor(),
			Dead:         info.IsDead(),
			Disconnected: info.IsDisconnected(),
			Tasks:        len(info.Tasks),
		}
		for _, t := range info.Tasks {
			if t.Completed {
				s.Done++
			}
		}
		states = append(states, s)
	}
	states = append(states, r.departed...)
	for _, cond := range logic.CheckEnd(states, cause) {
		r.RegisterEndGameIntent(systems.EndGameIntent{Name: cond.Name, Reason: cond.Reason})
	}
}

// resolveEndGameIntents offers each pending intent to listeners in order;
// the first one nobody cancels ends the game.
func (r *Room) resolveEndGameIntents() {
	intents := r.intents
	r.intents = nil
	for _, intent := range intents {
		ev := events.Emit(r.emitter, &EndGameIntentEvent{Intent: intent})
		if ev.Canceled() {
			continue
		}
		r.logger.Info().Str("intent", intent.Name).Msg("game ending")
		r.HandleEnd(intent.Reason)
		return
	}
}

func sortedNetIDs(m map[uint32]Networkable) []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func sortedRecipients(m map[int32][]protocol.GameDataMessage) []int32 {
	ids := make([]int32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
