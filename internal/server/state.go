// Package server owns the live rooms: it creates and destroys them, runs
// each on its own scheduler goroutine, and bridges room events onto the
// application EventBus.
package server

import (
	"sort"
	"sync"
	"time"

	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

// RoomState mirrors the parts of a room that outside readers need. The room
// itself is only touched on its runner goroutine; RoomState is updated from
// there and read from anywhere.
type RoomState struct {
	mu sync.RWMutex

	Phase   events.RoomPhase
	Public  bool
	HostID  int32
	MatchID string

	Settings protocol.GameOptions
	Players  map[int32]PlayerInfo

	CreatedAt      time.Time
	PhaseChangedAt time.Time
	GameStartedAt  time.Time

	GamesPlayed int
	Meetings    int
	Kills       int
}

// PlayerInfo describes a connected client.
type PlayerInfo struct {
	ClientID int32     `json:"client_id"`
	PlayerID int       `json:"player_id"` // -1 before the character spawns
	Name     string    `json:"name"`
	Color    string    `json:"color"`
	Host     bool      `json:"host"`
	Impostor bool      `json:"impostor"`
	Dead     bool      `json:"dead"`
	JoinedAt time.Time `json:"joined_at"`
}

// NewRoomState creates a lobby state.
func NewRoomState(settings protocol.GameOptions) *RoomState {
	now := time.Now()
	return &RoomState{
		Phase:          events.RoomPhaseLobby,
		Settings:       settings,
		Players:        make(map[int32]PlayerInfo),
		CreatedAt:      now,
		PhaseChangedAt: now,
	}
}

// SetPhase updates the phase and returns the previous one.
func (s *RoomState) SetPhase(phase events.RoomPhase) events.RoomPhase {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.Phase
	if old != phase {
		s.Phase = phase
		s.PhaseChangedAt = time.Now()
	}
	return old
}

// GetPhase returns the current phase.
func (s *RoomState) GetPhase() events.RoomPhase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Phase
}

// SetPublic records the room privacy.
func (s *RoomState) SetPublic(public bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Public = public
}

// SetSettings records the room options.
func (s *RoomState) SetSettings(o protocol.GameOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Settings = o
}

// GetSettings returns the room options.
func (s *RoomState) GetSettings() protocol.GameOptions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Settings
}

// StartGame records a new match.
func (s *RoomState) StartGame(matchID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MatchID = matchID
	s.GameStartedAt = at
	s.GamesPlayed++
}

// GetMatchID returns the id of the running or last match.
func (s *RoomState) GetMatchID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.MatchID
}

// AddMeeting counts a meeting.
func (s *RoomState) AddMeeting() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Meetings++
}

// AddKill counts a murder.
func (s *RoomState) AddKill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Kills++
}

// ReplacePlayers swaps in a fresh player table.
func (s *RoomState) ReplacePlayers(hostID int32, players []PlayerInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.HostID = hostID

	joined := s.Players
	s.Players = make(map[int32]PlayerInfo, len(players))
	for _, p := range players {
		if prev, ok := joined[p.ClientID]; ok {
			p.JoinedAt = prev.JoinedAt
		} else if p.JoinedAt.IsZero() {
			p.JoinedAt = time.Now()
		}
		s.Players[p.ClientID] = p
	}
}

// PlayerCount returns the number of connected clients.
func (s *RoomState) PlayerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.Players)
}

// GetPlayers returns the players sorted by client id.
func (s *RoomState) GetPlayers() []PlayerInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PlayerInfo, 0, len(s.Players))
	for _, p := range s.Players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}

// Snapshot returns a read-only copy of the state.
func (s *RoomState) Snapshot() RoomStateSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]PlayerInfo, 0, len(s.Players))
	for _, p := range s.Players {
		players = append(players, p)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ClientID < players[j].ClientID })

	return RoomStateSnapshot{
		Phase:          s.Phase,
		Public:         s.Public,
		HostID:         s.HostID,
		MatchID:        s.MatchID,
		Map:            s.Settings.Map.String(),
		MaxPlayers:     int(s.Settings.MaxPlayers),
		Impostors:      int(s.Settings.Impostors),
		PlayerCount:    len(players),
		Players:        players,
		GamesPlayed:    s.GamesPlayed,
		Meetings:       s.Meetings,
		Kills:          s.Kills,
		CreatedAt:      s.CreatedAt,
		PhaseChangedAt: s.PhaseChangedAt,
	}
}

// RoomStateSnapshot is an immutable snapshot of a room state.
type RoomStateSnapshot struct {
	Phase          events.RoomPhase `json:"phase"`
	Public         bool             `json:"public"`
	HostID         int32            `json:"host_id"`
	MatchID        string           `json:"match_id,omitempty"`
	Map            string           `json:"map"`
	MaxPlayers     int              `json:"max_players"`
	Impostors      int              `json:"impostors"`
	PlayerCount    int              `json:"player_count"`
	Players        []PlayerInfo     `json:"players"`
	GamesPlayed    int              `json:"games_played"`
	Meetings       int              `json:"meetings"`
	Kills          int              `json:"kills"`
	CreatedAt      time.Time        `json:"created_at"`
	PhaseChangedAt time.Time        `json:"phase_changed_at"`
}
