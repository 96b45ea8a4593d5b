// Package events carries two event systems: the synchronous, typed Emitter
// used inside a room for vetoable game-state mutations, and the asynchronous
// EventBus that fans room-level notifications out to storage, telemetry and
// spectators.
package events

import "time"

// EventType names a notification published on the EventBus.
type EventType string

const (
	// Room lifecycle
	EventRoomCreated   EventType = "room_created"
	EventRoomDestroyed EventType = "room_destroyed"
	EventPlayerJoined  EventType = "player_joined"
	EventPlayerLeft    EventType = "player_left"

	// Game flow
	EventGameStarted    EventType = "game_started"
	EventGameEnded      EventType = "game_ended"
	EventMeetingStarted EventType = "meeting_started"
	EventMeetingEnded   EventType = "meeting_ended"
	EventPlayerMurdered EventType = "player_murdered"
	EventSabotage       EventType = "sabotage"

	// Runner
	EventLongTick EventType = "long_tick"
	EventLagAlert EventType = "lag_alert"

	// Lobby
	EventSettingsChanged EventType = "settings_changed"
	EventPrivacyChanged  EventType = "privacy_changed"

	// System
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// RoomPhase is the coarse state of a room as seen from outside it.
type RoomPhase int

const (
	RoomPhaseLobby RoomPhase = iota
	RoomPhaseStarting
	RoomPhasePlaying
	RoomPhaseMeeting
	RoomPhaseEnded
	RoomPhaseDestroyed
)

var roomPhaseStrings = map[RoomPhase]string{
	RoomPhaseLobby:     "lobby",
	RoomPhaseStarting:  "starting",
	RoomPhasePlaying:   "playing",
	RoomPhaseMeeting:   "meeting",
	RoomPhaseEnded:     "ended",
	RoomPhaseDestroyed: "destroyed",
}

func (p RoomPhase) String() string {
	if str, ok := roomPhaseStrings[p]; ok {
		return str
	}
	return "lobby"
}

// MarshalJSON serializes RoomPhase as a JSON string (e.g. "playing").
func (p RoomPhase) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// Event is a single notification on the EventBus.
type Event struct {
	Type    EventType
	Source  string // room code, or a component name for system events
	Payload interface{}
}

// RoomPayload accompanies room created/destroyed notifications.
type RoomPayload struct {
	Code    string
	MatchID string
	HostID  int32
}

// PlayerPayload accompanies join/leave notifications.
type PlayerPayload struct {
	Code     string
	MatchID  string
	ClientID int32
	PlayerID int // -1 when the player has no character yet
	Name     string
}

// GameStartedPayload is published once roles and tasks are assigned.
type GameStartedPayload struct {
	Code      string
	MatchID   string
	Map       string
	Players   []PlayerSummary
	StartedAt time.Time
}

// PlayerSummary describes a player at the start or end of a game.
type PlayerSummary struct {
	ClientID int32  `json:"client_id"`
	PlayerID uint8  `json:"player_id"`
	Name     string `json:"name"`
	Color    string `json:"color"`
	Impostor bool   `json:"impostor"`
	Dead     bool   `json:"dead"`
	Tasks    int    `json:"tasks"`
	Done     int    `json:"tasks_done"`
}

// GameEndedPayload is published when a game ends for any reason.
type GameEndedPayload struct {
	Code    string
	MatchID string
	Reason  string
	Winners string // "crewmates", "impostors" or "none"
	Players []PlayerSummary
	EndedAt time.Time
}

// MeetingPayload accompanies meeting start/end notifications.
type MeetingPayload struct {
	Code     string
	MatchID  string
	Caller   uint8
	Body     uint8 // 255 for an emergency meeting
	Exiled   int   // -1 when nobody was ejected
	Tie      bool
	Duration time.Duration
}

// MurderPayload accompanies a kill.
type MurderPayload struct {
	Code    string
	MatchID string
	Killer  uint8
	Victim  uint8
}

// SabotagePayload accompanies a sabotage.
type SabotagePayload struct {
	Code    string
	MatchID string
	System  string
}

// SettingsPayload accompanies settings and privacy changes.
type SettingsPayload struct {
	Code     string
	Public   bool
	Settings interface{}
}

// LongTickPayload is published when a room runner falls behind its tick
// rate.
type LongTickPayload struct {
	Code     string
	Delta    time.Duration
	Interval time.Duration
}

// AlertPayload is published when a room crosses a lag threshold.
type AlertPayload struct {
	Code    string
	Level   string
	Events  int
	Message string
}

// ConfigChangedPayload is emitted when configuration changes occur.
type ConfigChangedPayload struct {
	Section string
	Key     string
	Value   interface{}
}
