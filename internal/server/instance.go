package server

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/replay"
	"github.com/skeld-project/skeld/internal/room"
	"github.com/skeld-project/skeld/internal/scheduler"
)

var (
	// ErrRoomFull is returned when a join would exceed the room's max players.
	ErrRoomFull = errors.New("server: room is full")
	// ErrRoomBusy is returned when a room's command queue is full.
	ErrRoomBusy = errors.New("server: room is busy")
)

// Instance is one live room together with its runner, recording and
// observable state.
type Instance struct {
	code      string
	sessionID string
	logger    zerolog.Logger

	eventBus  *events.EventBus
	ctx       context.Context
	runner    *scheduler.Runner
	recorder  *replay.Recorder
	transport Transport
	state     *RoomState
	interval  time.Duration

	nextClientID atomic.Int32
	done         chan struct{}

	// Owned by the runner goroutine.
	matchID       string
	gameStartedAt time.Time
	meetingAt     time.Time
	meetingCaller uint8
	meetingBody   uint8
	dirty         bool
}

// InstanceConfig holds what is needed to start a room.
type InstanceConfig struct {
	Code      string
	SessionID string
	Room      room.Options
	Interval  time.Duration
	Recorder  *replay.Recorder
	Transport Transport
	Public    bool
}

// startInstance builds the room, binds it to the bus and starts its runner.
// onExit runs on the runner goroutine once the room is gone.
func startInstance(ctx context.Context, bus *events.EventBus, cfg InstanceConfig, onExit func(*Instance)) *Instance {
	r := room.New(cfg.Room)

	inst := &Instance{
		code:      cfg.Code,
		sessionID: cfg.SessionID,
		logger: log.With().
			Str("component", "server").
			Str("code", cfg.Code).
			Logger(),
		eventBus:  bus,
		ctx:       ctx,
		recorder:  cfg.Recorder,
		transport: cfg.Transport,
		state:     NewRoomState(r.Settings()),
		interval:  cfg.Interval,
		done:      make(chan struct{}),
	}
	inst.nextClientID.Store(cfg.Room.ClientID)
	inst.state.HostID = r.HostID()
	inst.bind(r)
	if cfg.Public {
		r.SetPrivacy(room.PrivacyPublic)
	}

	inst.runner = scheduler.NewRunner(r, cfg.Interval)
	go func() {
		defer close(inst.done)
		inst.runner.Run(ctx)
		inst.state.SetPhase(events.RoomPhaseDestroyed)
		if inst.recorder != nil {
			if err := inst.recorder.Close(); err != nil {
				inst.logger.Warn().Err(err).Msg("failed to close recording")
			}
		}
		if onExit != nil {
			onExit(inst)
		}
	}()

	inst.logger.Info().Str("session", cfg.SessionID).Dur("tick", cfg.Interval).Msg("room started")
	return inst
}

func (i *Instance) Code() string          { return i.code }
func (i *Instance) SessionID() string     { return i.sessionID }
func (i *Instance) State() *RoomState     { return i.state }
func (i *Instance) Done() <-chan struct{} { return i.done }

// Do runs cmd on the room goroutine and waits for it.
func (i *Instance) Do(ctx context.Context, cmd scheduler.Command) error {
	return i.runner.Do(ctx, cmd)
}

// Join allocates a client id and adds it to the room.
func (i *Instance) Join(ctx context.Context) (int32, error) {
	id := i.nextClientID.Add(1)
	err := i.Do(ctx, func(r *room.Room) error {
		if r.Started() || r.Phase() == events.RoomPhaseStarting {
			return room.ErrGameStarted
		}
		if limit := int(r.Settings().MaxPlayers); limit > 0 && len(r.Players()) >= limit {
			return ErrRoomFull
		}
		i.record(func(rec *replay.Recorder) error { return rec.RecordJoin(id) })
		r.HandleJoin(id)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// Leave removes a client. It does not wait for the room.
func (i *Instance) Leave(clientID int32) {
	ok := i.runner.Post(func(r *room.Room) error {
		i.record(func(rec *replay.Recorder) error { return rec.RecordLeave(clientID) })
		r.HandleLeave(clientID)
		return nil
	})
	if !ok {
		i.logger.Warn().Int32("client_id", clientID).Msg("could not queue leave")
	}
}

// Inbound queues a client's packet. data is kept for the recording,
// messages are applied in order.
func (i *Instance) Inbound(clientID int32, data []byte, messages []protocol.RootMessage) error {
	ok := i.runner.Post(func(r *room.Room) error {
		i.record(func(rec *replay.Recorder) error { return rec.RecordInbound(clientID, data) })
		for _, msg := range messages {
			if err := r.HandleRoot(msg, clientID); err != nil {
				i.logger.Debug().Err(err).Int32("client_id", clientID).Msg("message rejected")
			}
		}
		return nil
	})
	if !ok {
		return ErrRoomBusy
	}
	return nil
}

func (i *Instance) record(fn func(*replay.Recorder) error) {
	if i.recorder == nil {
		return
	}
	if err := fn(i.recorder); err != nil {
		i.logger.Warn().Err(err).Msg("failed to record entry")
	}
}

// Stop destroys the room and waits for its runner to exit.
func (i *Instance) Stop() {
	i.runner.Stop()
	<-i.done
}

// RecordingPath returns the replay file of this room, or "".
func (i *Instance) RecordingPath() string {
	if i.recorder == nil {
		return ""
	}
	return i.recorder.Path()
}

// GetInfo returns a summary of the room for API responses.
func (i *Instance) GetInfo() InstanceInfo {
	snapshot := i.state.Snapshot()
	return InstanceInfo{
		Code:      i.code,
		SessionID: i.sessionID,
		TickRate:  tickRate(i.interval),
		Uptime:    time.Since(snapshot.CreatedAt).Round(time.Second).String(),
		Recording: i.RecordingPath(),
		State:     snapshot,
	}
}

func tickRate(interval time.Duration) int {
	if interval <= 0 {
		return 0
	}
	return int(time.Second / interval)
}

// InstanceInfo is a JSON-serializable summary of a room.
type InstanceInfo struct {
	Code      string            `json:"code"`
	SessionID string            `json:"session_id"`
	TickRate  int               `json:"tick_rate_hz"`
	Uptime    string            `json:"uptime"`
	Recording string            `json:"recording,omitempty"`
	State     RoomStateSnapshot `json:"state"`
}

func (i *Instance) emit(t events.EventType, payload interface{}) {
	if i.eventBus == nil {
		return
	}
	i.eventBus.Emit(i.ctx, events.Event{Type: t, Source: i.code, Payload: payload})
}
