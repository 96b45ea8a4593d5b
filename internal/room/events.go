package room

import (
	"time"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/systems"
)

// Room lifecycle.

type SpawnEvent struct{ Component Networkable }

type DespawnEvent struct{ Component Networkable }

type PlayerJoinEvent struct{ Player *PlayerData }

type PlayerLeaveEvent struct{ Player *PlayerData }

type PlayerReadyEvent struct{ Player *PlayerData }

type PlayerSceneChangeEvent struct {
	Player *PlayerData
	Scene  string
}

type HostChangeEvent struct{ Old, New int32 }

type GameStartEvent struct{}

// GameEndEvent carries the final player table captured before the room
// clears its players.
type GameEndEvent struct {
	Reason  protocol.GameOverReason
	Players []events.PlayerSummary
}

// FixedUpdateEvent fires once per tick before the stream is flushed.
// Canceling it drops the tick's batch.
type FixedUpdateEvent struct {
	events.Cancelable
	Delta    time.Duration
	Messages []protocol.GameDataMessage
}

type PrivacyChangeEvent struct{ events.Mutation[Privacy] }

type SettingsUpdateEvent struct{ Old, New protocol.GameOptions }

type StartCounterEvent struct{ Counter int8 }

// EndGameIntentEvent is raised for every registered intent at the end of
// a tick. Canceling it keeps the game running.
type EndGameIntentEvent struct {
	events.Cancelable
	Intent systems.EndGameIntent
}

// Player actions.

type PlayerSetNameEvent struct {
	events.Mutation[string]
	Player *PlayerData
}

type PlayerSetColorEvent struct {
	events.Mutation[content.Color]
	Player *PlayerData
}

type PlayerSetCosmeticEvent struct {
	events.Mutation[uint32]
	Player *PlayerData
	Kind   protocol.RpcTag
}

type PlayerChatEvent struct {
	events.Cancelable
	Player  *PlayerData
	Message string
}

type PlayerChatNoteEvent struct {
	Player *PlayerData
	Note   protocol.ChatNoteType
}

type PlayerMurderEvent struct {
	events.Revertible
	Player *PlayerData
	Victim *PlayerData
}

type PlayerReportEvent struct {
	events.Cancelable
	Player *PlayerData
	Body   uint8
}

type PlayerStartMeetingEvent struct {
	Player *PlayerData
	Body   uint8
}

type PlayerSetImpostorsEvent struct {
	Impostors []uint8
}

type PlayerExileEvent struct{ Player *PlayerData }

type PlayerCompleteTaskEvent struct {
	Player *PlayerData
	Index  uint32
}

type PlayerAnimationEvent struct {
	Player *PlayerData
	Task   byte
}

type PlayerScannerEvent struct {
	Player   *PlayerData
	Scanning bool
}

type PlayerVentEvent struct {
	Player  *PlayerData
	Vent    uint32
	Entered bool
}

type PlayerClimbLadderEvent struct {
	Player *PlayerData
	Ladder uint8
}

type PlayerMoveEvent struct {
	Player   *PlayerData
	Position protocol.Vector2
	Velocity protocol.Vector2
}

type PlayerSnapToEvent struct {
	events.Mutation[protocol.Vector2]
	Player *PlayerData
}

// GameData.

type PlayerInfoAddEvent struct{ Info *PlayerInfo }

type PlayerInfoRemoveEvent struct{ Info *PlayerInfo }

type PlayerSetTasksEvent struct {
	Info  *PlayerInfo
	Tasks []uint8
}

// Meetings.

type MeetingVoteEvent struct {
	events.Mutation[uint8]
	Voter uint8
}

type MeetingClearVoteEvent struct{ Voter uint8 }

type MeetingVotingCompleteEvent struct {
	States []protocol.VoterState
	Exiled uint8
	Tie    bool
}

type MeetingCloseEvent struct{ Meeting *MeetingHud }

// Kick votes.

type KickVoteEvent struct {
	events.Revertible
	Voter, Target int32
}

type PlayerKickedEvent struct {
	Player *PlayerData
	Banned bool
}
