// Package room implements the replicated game-room object graph: the room
// itself, its players, every networked component and the wire handlers
// that keep them in sync.
//
// A Room is single-threaded. Every exported method must be called from the
// goroutine that drives the room (see internal/scheduler).
package room

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/logic"
	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/systems"
)

var (
	ErrNotHost          = errors.New("room: not the host")
	ErrRoomDestroyed    = errors.New("room: destroyed")
	ErrUnknownSpawnType = errors.New("room: unknown spawn type")
	ErrUnknownOwner     = errors.New("room: unknown owner")
	ErrGameStarted      = errors.New("room: game already started")
)

// Everyone is the broadcast recipient meaning every client in the room.
const Everyone int32 = -1

// Broadcaster delivers a flushed batch to the clients of a room. The
// transport owns framing and retries.
type Broadcaster interface {
	Broadcast(ctx context.Context, messages []protocol.GameDataMessage, reliable bool, recipient int32, payloads []protocol.RootMessage) error
}

type discardBroadcaster struct{}

func (discardBroadcaster) Broadcast(context.Context, []protocol.GameDataMessage, bool, int32, []protocol.RootMessage) error {
	return nil
}

// Privacy controls whether a room is listed publicly.
type Privacy byte

const (
	PrivacyPrivate Privacy = iota
	PrivacyPublic
)

func (p Privacy) String() string {
	if p == PrivacyPublic {
		return "public"
	}
	return "private"
}

// Clock is the time source used for tick deltas and timers.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Options configures a new room.
type Options struct {
	Code int32
	// Authoritative rooms resolve game rules for every client.
	Authoritative bool
	// ClientID identifies this process among the room's clients.
	ClientID int32
	HostID   int32

	Settings    protocol.GameOptions
	Broadcaster Broadcaster
	Clock       Clock
	Rand        *rand.Rand

	ReadyTimeout      time.Duration
	MeetingCloseDelay time.Duration
}

const (
	DefaultReadyTimeout      = 10 * time.Second
	DefaultMeetingCloseDelay = 5 * time.Second
)

// Room owns the object graph of one game.
type Room struct {
	Entity

	code          int32
	hostID        int32
	clientID      int32
	authoritative bool
	privacy       Privacy
	settings      protocol.GameOptions
	counter       int8
	counterSeq    uint32

	started   bool
	waiting   bool
	ended     bool
	destroyed bool

	objects    map[int32]Heritable
	players    map[int32]*PlayerData
	netObjects map[uint32]Networkable
	nextNetID  uint32
	prefabs    map[content.SpawnType]Prefab

	stream   []protocol.GameDataMessage
	direct   map[int32][]protocol.GameDataMessage
	payloads []protocol.RootMessage

	ShipStatus *ShipStatus
	MeetingHud *MeetingHud
	Lobby      *LobbyBehaviour
	GameData   *GameData
	VoteBan    *VoteBanSystem

	broadcaster Broadcaster
	clock       Clock
	timers      timerQueue
	lastTick    time.Time
	rng         *rand.Rand
	intents     []systems.EndGameIntent
	readyTimer  *Timer
	// departed holds players that left the running game, for end checks.
	departed []logic.PlayerState

	readyTimeout      time.Duration
	meetingCloseDelay time.Duration

	logger zerolog.Logger
}

// New creates an empty room containing only itself.
func New(opts Options) *Room {
	r := &Room{
		Entity:            newEntity(RoomEntityID, nil),
		code:              opts.Code,
		hostID:            opts.HostID,
		clientID:          opts.ClientID,
		authoritative:     opts.Authoritative,
		settings:          opts.Settings,
		counter:           -1,
		objects:           make(map[int32]Heritable),
		players:           make(map[int32]*PlayerData),
		netObjects:        make(map[uint32]Networkable),
		nextNetID:         1,
		prefabs:           DefaultPrefabs(),
		direct:            make(map[int32][]protocol.GameDataMessage),
		broadcaster:       opts.Broadcaster,
		clock:             opts.Clock,
		rng:               opts.Rand,
		readyTimeout:      opts.ReadyTimeout,
		meetingCloseDelay: opts.MeetingCloseDelay,
	}
	if r.settings.Version == 0 {
		r.settings = protocol.DefaultGameOptions()
	}
	if r.broadcaster == nil {
		r.broadcaster = discardBroadcaster{}
	}
	if r.clock == nil {
		r.clock = systemClock{}
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if r.readyTimeout <= 0 {
		r.readyTimeout = DefaultReadyTimeout
	}
	if r.meetingCloseDelay <= 0 {
		r.meetingCloseDelay = DefaultMeetingCloseDelay
	}

	r.setLogger()
	r.objects[RoomEntityID] = r
	r.lastTick = r.clock.Now()
	return r
}

func (r *Room) Code() int32                    { return r.code }
func (r *Room) CodeString() string             { return protocol.IntToCode(r.code) }
func (r *Room) HostID() int32                  { return r.hostID }
func (r *Room) ClientID() int32                { return r.clientID }
func (r *Room) Privacy() Privacy               { return r.privacy }
func (r *Room) Settings() protocol.GameOptions { return r.settings }
func (r *Room) Counter() int8                  { return r.counter }
func (r *Room) Started() bool                  { return r.started }
func (r *Room) Destroyed() bool                { return r.destroyed }
func (r *Room) Rand() *rand.Rand               { return r.rng }
func (r *Room) Logger() zerolog.Logger         { return r.logger }
func (r *Room) Now() time.Time                 { return r.clock.Now() }

// IsHost reports whether this room resolves game rules.
func (r *Room) IsHost() bool {
	return r.authoritative || (r.hostID != 0 && r.hostID == r.clientID)
}

// Phase summarizes the room state for observers.
func (r *Room) Phase() events.RoomPhase {
	switch {
	case r.destroyed:
		return events.RoomPhaseDestroyed
	case r.waiting:
		return events.RoomPhaseStarting
	case r.started && r.MeetingHud != nil:
		return events.RoomPhaseMeeting
	case r.started:
		return events.RoomPhasePlaying
	case r.ended:
		return events.RoomPhaseEnded
	default:
		return events.RoomPhaseLobby
	}
}

// SetCode changes the room code from its string form.
func (r *Room) SetCode(code string) error {
	v, err := protocol.CodeToInt(code)
	if err != nil {
		return fmt.Errorf("failed to set room code: %w", err)
	}
	r.code = v
	r.setLogger()
	return nil
}

func (r *Room) setLogger() {
	r.logger = log.With().Str("component", "room").Str("code", protocol.IntToCode(r.code)).Logger()
	r.emitter.SetLogger(r.logger)
}

// SetHost moves host authority to another client.
func (r *Room) SetHost(clientID int32) {
	if r.hostID == clientID {
		return
	}
	old := r.hostID
	r.hostID = clientID
	r.logger.Info().Int32("old", old).Int32("new", clientID).Msg("host changed")
	events.Emit(r.emitter, &HostChangeEvent{Old: old, New: clientID})
}

// Players returns the connected players.
func (r *Room) Players() map[int32]*PlayerData { return r.players }

// Player returns the player with the given client id, or nil.
func (r *Room) Player(clientID int32) *PlayerData { return r.players[clientID] }

// Object returns the entity with the given id, or nil.
func (r *Room) Object(id int32) Heritable { return r.objects[id] }

// NetObject returns the component with the given net id, or nil.
func (r *Room) NetObject(netID uint32) Networkable { return r.netObjects[netID] }

// NetObjectCount returns the number of registered components.
func (r *Room) NetObjectCount() int { return len(r.netObjects) }

// Me returns this process's own player, if it has joined as one.
func (r *Room) Me() *PlayerData { return r.players[r.clientID] }

// RegisterPrefab replaces the component list spawned for a spawn type.
func (r *Room) RegisterPrefab(t content.SpawnType, p Prefab) {
	r.prefabs[t] = p
}

// QueueMessage appends a game-data message to the next flush.
func (r *Room) QueueMessage(msg protocol.GameDataMessage) {
	r.stream = append(r.stream, msg)
}

// QueueRpc appends a call on a component to the next flush.
func (r *Room) QueueRpc(netID uint32, rpc protocol.Rpc) {
	r.QueueMessage(protocol.NewRpcMessage(netID, rpc))
}

// QueueTo appends a game-data message addressed to one client.
func (r *Room) QueueTo(recipient int32, msg protocol.GameDataMessage) {
	r.direct[recipient] = append(r.direct[recipient], msg)
}

// QueuePayload appends a root-level payload to the next flush.
func (r *Room) QueuePayload(p protocol.RootMessage) {
	r.payloads = append(r.payloads, p)
}

// PendingMessages returns the queued game-data messages.
func (r *Room) PendingMessages() []protocol.GameDataMessage { return r.stream }

// SetPrivacy changes whether the room is listed. Listeners may revert or
// alter the change.
func (r *Room) SetPrivacy(p Privacy) {
	if r.privacy == p {
		return
	}
	ev := events.Emit(r.emitter, &PrivacyChangeEvent{Mutation: events.NewMutation(r.privacy, p)})
	next := ev.Resolve()
	if next == r.privacy {
		return
	}
	r.privacy = next
	if r.IsHost() {
		r.QueuePayload(&protocol.AlterGamePayload{
			Code:   r.code,
			Alter:  protocol.AlterGameChangePrivacy,
			Public: next == PrivacyPublic,
		})
	}
}

// SetSettings replaces the game options and syncs them to clients.
func (r *Room) SetSettings(o protocol.GameOptions) {
	old := r.settings
	r.settings = o
	if old == o {
		return
	}
	events.Emit(r.emitter, &SettingsUpdateEvent{Old: old, New: o})
	if r.IsHost() {
		if c := r.anyControl(); c != nil {
			c.sendRpc(&protocol.SyncSettingsRpc{Settings: o})
		}
	}
}

// SetStartCounter updates the lobby countdown shown to clients. -1 hides
// it.
func (r *Room) SetStartCounter(counter int8) {
	if r.counter == counter {
		return
	}
	r.counterSeq++
	r.counter = counter
	events.Emit(r.emitter, &StartCounterEvent{Counter: counter})
	if c := r.anyControl(); c != nil {
		c.sendRpc(&protocol.SetStartCounterRpc{Seq: r.counterSeq, Counter: counter})
	}
}

// applyStartCounter applies a counter received from the host. The first
// counter is always taken; later ones must be newer in 32-bit sequence
// space.
func (r *Room) applyStartCounter(seq uint32, counter int8) {
	if r.counterSeq != 0 && !protocol.Seq32GreaterThan(seq, r.counterSeq) {
		return
	}
	r.counterSeq = seq
	if r.counter != counter {
		r.counter = counter
		events.Emit(r.emitter, &StartCounterEvent{Counter: counter})
	}
}

// RegisterEndGameIntent records a reason to end the game; intents are
// resolved at the end of the current tick.
func (r *Room) RegisterEndGameIntent(intent systems.EndGameIntent) {
	if !r.IsHost() || !r.started {
		return
	}
	r.intents = append(r.intents, intent)
}

// Destroy halts the room. Pending timers never fire afterwards.
func (r *Room) Destroy() {
	if r.destroyed {
		return
	}
	r.destroyed = true
	r.timers.clear()
	r.readyTimer = nil
	r.logger.Info().Msg("room destroyed")
}

// anyControl returns a PlayerControl to carry room-wide calls: our own if
// we have one, otherwise the one with the lowest player id.
func (r *Room) anyControl() *PlayerControl {
	if me := r.Me(); me != nil {
		if c := me.Control(); c != nil {
			return c
		}
	}
	var best *PlayerControl
	for _, p := range r.players {
		c := p.Control()
		if c != nil && (best == nil || c.PlayerID() < best.PlayerID()) {
			best = c
		}
	}
	return best
}
