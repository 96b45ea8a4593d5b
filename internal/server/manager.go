package server

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skeld-project/skeld/internal/config"
	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/logic"
	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/replay"
	"github.com/skeld-project/skeld/internal/room"
	"github.com/skeld-project/skeld/internal/util"
)

const (
	codeLetters     = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	maxCodeAttempts = 64
	joinTimeout     = 5 * time.Second
)

var (
	ErrRoomNotFound    = errors.New("server: room not found")
	ErrRoomExists      = errors.New("server: room code in use")
	ErrTooManyRooms    = errors.New("server: room limit reached")
	ErrUnknownPreset   = errors.New("server: unknown preset")
	ErrGameNotStarted  = errors.New("server: no game running")
	ErrManagerStopping = errors.New("server: manager is stopping")
	ErrPlayerNotFound  = errors.New("server: player not in room")
	ErrInvalidCode     = errors.New("server: invalid room code")
)

// Transport delivers room output to connected clients.
type Transport interface {
	Broadcaster(code string) room.Broadcaster
	Disconnect(code string, clientID int32, grace time.Duration)
	CloseRoom(code string)
}

// Manager owns every live room.
type Manager struct {
	mu sync.RWMutex

	cfg       *config.Config
	eventBus  *events.EventBus
	transport Transport
	lag       *LagMonitor
	logger    zerolog.Logger

	rooms   map[string]*Instance
	presets map[string]protocol.GameOptions
	rng     *rand.Rand

	ctx      context.Context
	cancel   context.CancelFunc
	stopping bool
}

// CreateOptions shapes a new room. Settings are resolved in order: map
// default, preset, explicit settings, patch.
type CreateOptions struct {
	Code     string
	Preset   string
	Settings *protocol.GameOptions
	Patch    *logic.OptionsPatch
	Public   bool
}

// NewManager creates the room manager and loads option presets.
func NewManager(cfg *config.Config, eventBus *events.EventBus) (*Manager, error) {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:      cfg,
		eventBus: eventBus,
		lag:      NewLagMonitor(eventBus),
		logger:   util.ComponentLogger("manager"),
		rooms:    make(map[string]*Instance),
		presets:  make(map[string]protocol.GameOptions),
		rng:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		ctx:      ctx,
		cancel:   cancel,
	}

	if err := m.ReloadPresets(); err != nil {
		cancel()
		return nil, err
	}
	if eventBus != nil {
		m.subscribeEvents()
	}
	return m, nil
}

func (m *Manager) subscribeEvents() {
	m.eventBus.Subscribe(events.EventConfigChanged, "manager.configChanged", m.onConfigChanged)
	m.eventBus.Subscribe(events.EventShutdown, "manager.shutdown", m.onShutdown)
	m.logger.Debug().Msg("manager event subscriptions registered")
}

// SetTransport attaches the client transport. Rooms created before the
// call have no clients.
func (m *Manager) SetTransport(t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transport = t
}

// LagMonitor returns the long-tick tracker.
func (m *Manager) LagMonitor() *LagMonitor { return m.lag }

// ReloadPresets reads the presets file named in the room config. A missing
// file leaves no presets.
func (m *Manager) ReloadPresets() error {
	path := m.cfg.GetRoom().PresetsFile
	presets := make(map[string]protocol.GameOptions)
	if path != "" && util.FileExists(path) {
		loaded, err := logic.LoadPresets(path)
		if err != nil {
			return fmt.Errorf("failed to load presets from %s: %w", path, err)
		}
		presets = loaded
	}

	m.mu.Lock()
	m.presets = presets
	m.mu.Unlock()
	m.logger.Info().Str("file", path).Strs("presets", logic.PresetNames(presets)).Msg("option presets loaded")
	return nil
}

// Presets returns the preset names in sorted order.
func (m *Manager) Presets() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return logic.PresetNames(m.presets)
}

// CreateRoom starts a new room.
func (m *Manager) CreateRoom(opts CreateOptions) (*Instance, error) {
	roomCfg := m.cfg.GetRoom()
	appData := m.cfg.GetApplicationData()

	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil, ErrManagerStopping
	}
	if len(m.rooms) >= roomCfg.MaxRooms {
		m.mu.Unlock()
		return nil, ErrTooManyRooms
	}

	code, codeInt, err := m.allocateCode(opts.Code)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	settings, err := m.resolveSettings(roomCfg, opts)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	seed := [2]uint64{m.rng.Uint64(), m.rng.Uint64()}
	sessionID := uuid.NewString()

	var broadcaster room.Broadcaster
	if m.transport != nil {
		broadcaster = m.transport.Broadcaster(code)
	}

	var recorder *replay.Recorder
	if appData.Replay.Enabled {
		w := protocol.NewWriter()
		settings.Serialize(w)
		recorder, err = replay.NewRecorder(appData.Replay.Directory, replay.Header{
			Code:              code,
			MatchID:           sessionID,
			Authoritative:     roomCfg.Authoritative,
			Public:            opts.Public,
			ClientID:          roomCfg.ServerClientID,
			Seed:              seed,
			Settings:          w.Copy(),
			TickRateHz:        roomCfg.TickRateHz,
			ReadyTimeout:      roomCfg.ReadyTimeout(),
			MeetingCloseDelay: roomCfg.MeetingCloseDelay(),
		}, nil)
		if err != nil {
			m.logger.Warn().Err(err).Str("code", code).Msg("recording disabled for room")
			recorder = nil
		} else {
			broadcaster = recorder.Wrap(broadcaster)
		}
	}

	inst := startInstance(m.ctx, m.eventBus, InstanceConfig{
		Code:      code,
		SessionID: sessionID,
		Room: room.Options{
			Code:              codeInt,
			Authoritative:     roomCfg.Authoritative,
			ClientID:          roomCfg.ServerClientID,
			Settings:          settings,
			Broadcaster:       broadcaster,
			Rand:              rand.New(rand.NewPCG(seed[0], seed[1])),
			ReadyTimeout:      roomCfg.ReadyTimeout(),
			MeetingCloseDelay: roomCfg.MeetingCloseDelay(),
		},
		Interval:  roomCfg.TickInterval(),
		Recorder:  recorder,
		Transport: m.transport,
		Public:    opts.Public,
	}, m.onInstanceExit)
	m.rooms[code] = inst
	m.mu.Unlock()

	m.logger.Info().Str("code", code).Str("map", settings.Map.String()).Bool("public", opts.Public).Msg("room created")
	m.emit(events.EventRoomCreated, code, events.RoomPayload{Code: code, MatchID: sessionID})
	return inst, nil
}

// allocateCode returns the canonical form of the requested code, or a fresh
// random six-letter code. Callers hold m.mu.
func (m *Manager) allocateCode(requested string) (string, int32, error) {
	if requested != "" {
		v, err := protocol.CodeToInt(requested)
		if err != nil {
			return "", 0, fmt.Errorf("%w: %v", ErrInvalidCode, err)
		}
		code := protocol.IntToCode(v)
		if _, ok := m.rooms[code]; ok {
			return "", 0, fmt.Errorf("%w: %s", ErrRoomExists, code)
		}
		return code, v, nil
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		var b [6]byte
		for i := range b {
			b[i] = codeLetters[m.rng.IntN(len(codeLetters))]
		}
		v, err := protocol.CodeToInt(string(b[:]))
		if err != nil {
			continue
		}
		code := protocol.IntToCode(v)
		if _, ok := m.rooms[code]; !ok {
			return code, v, nil
		}
	}
	return "", 0, fmt.Errorf("failed to allocate a room code after %d attempts", maxCodeAttempts)
}

func (m *Manager) resolveSettings(roomCfg config.RoomConfig, opts CreateOptions) (protocol.GameOptions, error) {
	settings := protocol.DefaultGameOptions()
	if id, ok := content.ParseMap(roomCfg.DefaultMap); ok {
		settings.Map = id
	}

	name := opts.Preset
	if name == "" {
		name = roomCfg.DefaultPreset
	}
	if name != "" {
		preset, ok := m.presets[name]
		switch {
		case ok:
			settings = preset
		case opts.Preset != "":
			return settings, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
		default:
			m.logger.Warn().Str("preset", name).Msg("default preset not found, using defaults")
		}
	}

	if opts.Settings != nil {
		settings = *opts.Settings
	}
	if opts.Patch != nil {
		settings = opts.Patch.Apply(settings)
	}
	return logic.ClampOptions(settings), nil
}

func (m *Manager) onInstanceExit(inst *Instance) {
	m.mu.Lock()
	if cur, ok := m.rooms[inst.code]; ok && cur == inst {
		delete(m.rooms, inst.code)
	}
	transport := m.transport
	m.mu.Unlock()

	if transport != nil {
		transport.CloseRoom(inst.code)
	}
	m.logger.Info().Str("code", inst.code).Msg("room destroyed")
	m.emit(events.EventRoomDestroyed, inst.code, events.RoomPayload{Code: inst.code, MatchID: inst.sessionID})
}

func (m *Manager) emit(t events.EventType, source string, payload interface{}) {
	if m.eventBus == nil {
		return
	}
	m.eventBus.Emit(context.Background(), events.Event{Type: t, Source: source, Payload: payload})
}

// Get returns a room by code.
func (m *Manager) Get(code string) (*Instance, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.rooms[strings.ToUpper(code)]
	return inst, ok
}

func (m *Manager) mustGet(code string) (*Instance, error) {
	inst, ok := m.Get(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoomNotFound, code)
	}
	return inst, nil
}

// List returns a summary of every room, sorted by code.
func (m *Manager) List() []InstanceInfo {
	m.mu.RLock()
	rooms := make([]*Instance, 0, len(m.rooms))
	for _, inst := range m.rooms {
		rooms = append(rooms, inst)
	}
	m.mu.RUnlock()

	info := make([]InstanceInfo, 0, len(rooms))
	for _, inst := range rooms {
		info = append(info, inst.GetInfo())
	}
	sort.Slice(info, func(i, j int) bool { return info[i].Code < info[j].Code })
	return info
}

// RoomCount returns the number of live rooms.
func (m *Manager) RoomCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rooms)
}

// PlayerCount returns the number of clients across all rooms.
func (m *Manager) PlayerCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, inst := range m.rooms {
		n += inst.state.PlayerCount()
	}
	return n
}

// DestroyRoom stops a room and waits for it to exit.
func (m *Manager) DestroyRoom(code string) error {
	inst, err := m.mustGet(code)
	if err != nil {
		return err
	}
	inst.Stop()
	return nil
}

// Join admits a new client.
func (m *Manager) Join(code string) (int32, error) {
	inst, err := m.mustGet(code)
	if err != nil {
		return 0, err
	}
	ctx, cancel := context.WithTimeout(m.ctx, joinTimeout)
	defer cancel()
	return inst.Join(ctx)
}

// Leave removes a client.
func (m *Manager) Leave(code string, clientID int32) {
	if inst, ok := m.Get(code); ok {
		inst.Leave(clientID)
	}
}

// Inbound queues a client's packet on its room.
func (m *Manager) Inbound(code string, clientID int32, data []byte, messages []protocol.RootMessage) error {
	inst, err := m.mustGet(code)
	if err != nil {
		return err
	}
	return inst.Inbound(clientID, data, messages)
}

// Players returns the clients of a room.
func (m *Manager) Players(code string) ([]PlayerInfo, error) {
	inst, err := m.mustGet(code)
	if err != nil {
		return nil, err
	}
	return inst.state.GetPlayers(), nil
}

// StartGame begins a game in a room.
func (m *Manager) StartGame(ctx context.Context, code string) error {
	inst, err := m.mustGet(code)
	if err != nil {
		return err
	}
	return inst.Do(ctx, func(r *room.Room) error {
		return r.HandleStart()
	})
}

// EndGame ends the running game with reason.
func (m *Manager) EndGame(ctx context.Context, code string, reason protocol.GameOverReason) error {
	inst, err := m.mustGet(code)
	if err != nil {
		return err
	}
	return inst.Do(ctx, func(r *room.Room) error {
		if !r.Started() && r.Phase() != events.RoomPhaseStarting {
			return ErrGameNotStarted
		}
		r.HandleEnd(reason)
		return nil
	})
}

// SetPrivacy lists or unlists a room and returns whether it is public
// afterwards.
func (m *Manager) SetPrivacy(ctx context.Context, code string, public bool) (bool, error) {
	inst, err := m.mustGet(code)
	if err != nil {
		return false, err
	}
	var result bool
	err = inst.Do(ctx, func(r *room.Room) error {
		p := room.PrivacyPrivate
		if public {
			p = room.PrivacyPublic
		}
		r.SetPrivacy(p)
		result = r.Privacy() == room.PrivacyPublic
		return nil
	})
	return result, err
}

// PatchSettings applies a partial options update to a room in the lobby.
func (m *Manager) PatchSettings(ctx context.Context, code string, patch logic.OptionsPatch) (protocol.GameOptions, error) {
	inst, err := m.mustGet(code)
	if err != nil {
		return protocol.GameOptions{}, err
	}
	var result protocol.GameOptions
	err = inst.Do(ctx, func(r *room.Room) error {
		if r.Started() {
			return room.ErrGameStarted
		}
		r.SetSettings(patch.Apply(r.Settings()))
		result = r.Settings()
		return nil
	})
	return result, err
}

// ApplyPreset replaces a lobby's options with a named preset.
func (m *Manager) ApplyPreset(ctx context.Context, code, name string) (protocol.GameOptions, error) {
	m.mu.RLock()
	preset, ok := m.presets[name]
	m.mu.RUnlock()
	if !ok {
		return protocol.GameOptions{}, fmt.Errorf("%w: %s", ErrUnknownPreset, name)
	}

	inst, err := m.mustGet(code)
	if err != nil {
		return protocol.GameOptions{}, err
	}
	err = inst.Do(ctx, func(r *room.Room) error {
		if r.Started() {
			return room.ErrGameStarted
		}
		r.SetSettings(preset)
		return nil
	})
	return preset, err
}

// KickPlayer removes a client, optionally banning it.
func (m *Manager) KickPlayer(ctx context.Context, code string, clientID int32, banned bool) error {
	inst, err := m.mustGet(code)
	if err != nil {
		return err
	}
	return inst.Do(ctx, func(r *room.Room) error {
		if r.Player(clientID) == nil {
			return fmt.Errorf("%w: %d", ErrPlayerNotFound, clientID)
		}
		return r.KickPlayer(clientID, banned)
	})
}

// StopAll destroys every room and waits for them.
func (m *Manager) StopAll() {
	m.mu.Lock()
	m.stopping = true
	rooms := make([]*Instance, 0, len(m.rooms))
	for _, inst := range m.rooms {
		rooms = append(rooms, inst)
	}
	m.mu.Unlock()

	m.logger.Info().Int("rooms", len(rooms)).Msg("stopping all rooms")

	var wg sync.WaitGroup
	for _, inst := range rooms {
		wg.Add(1)
		go func() {
			defer wg.Done()
			inst.Stop()
		}()
	}
	wg.Wait()
	m.cancel()

	m.logger.Info().Msg("all rooms stopped")
}

// --- Event Handlers ---

func (m *Manager) onConfigChanged(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.ConfigChangedPayload)
	if !ok || payload.Section != "room" {
		return nil
	}
	m.logger.Info().Str("key", payload.Key).Msg("room configuration changed, reloading presets")
	return m.ReloadPresets()
}

func (m *Manager) onShutdown(_ context.Context, _ events.Event) error {
	m.logger.Info().Msg("shutdown event received, stopping all rooms")
	m.StopAll()
	return nil
}
