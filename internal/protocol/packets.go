// Package protocol implements the Hazel wire format used by the game:
// little-endian fixed-width integers, 7-bit packed integers, length-prefixed
// strings and tagged sub-messages with a 2-byte length prefix. It also carries
// the typed root, game-data and RPC message codecs the room consumes.
package protocol

import "strconv"

// RootTag identifies a root-level message inside a reliable/unreliable packet.
type RootTag byte

const (
	RootHostGame     RootTag = 0x00
	RootJoinGame     RootTag = 0x01
	RootStartGame    RootTag = 0x02 // Host tells everyone the game is starting
	RootRemoveGame   RootTag = 0x03
	RootRemovePlayer RootTag = 0x04 // Player removed, carries the new host
	RootGameData     RootTag = 0x05 // Batch of game-data messages for everyone
	RootGameDataTo   RootTag = 0x06 // Batch of game-data messages for one client
	RootJoinedGame   RootTag = 0x07
	RootEndGame      RootTag = 0x08 // Game over with reason
	RootAlterGame    RootTag = 0x0A // Privacy change
	RootKickPlayer   RootTag = 0x0B // Kick/ban a client
	RootWaitForHost  RootTag = 0x0C
	RootRedirect     RootTag = 0x0D
)

// GameDataTag identifies a message inside a GameData/GameDataTo root message.
type GameDataTag byte

const (
	TagData           GameDataTag = 0x01 // Delta state for one net object
	TagRpc            GameDataTag = 0x02 // Remote procedure call on one net object
	TagSpawn          GameDataTag = 0x04 // Prefab spawned with full component state
	TagDespawn        GameDataTag = 0x05 // Net object removed
	TagSceneChange    GameDataTag = 0x06 // Client changed scene
	TagReady          GameDataTag = 0x07 // Client loaded into the game scene
	TagChangeSettings GameDataTag = 0x08
)

// RpcTag is the call id carried by an RpcMessage.
type RpcTag byte

const (
	RpcPlayAnimation    RpcTag = 0
	RpcCompleteTask     RpcTag = 1
	RpcSyncSettings     RpcTag = 2
	RpcSetInfected      RpcTag = 3
	RpcExiled           RpcTag = 4
	RpcCheckName        RpcTag = 5
	RpcSetName          RpcTag = 6
	RpcCheckColor       RpcTag = 7
	RpcSetColor         RpcTag = 8
	RpcSetHat           RpcTag = 9
	RpcSetSkin          RpcTag = 10
	RpcReportDeadBody   RpcTag = 11
	RpcMurderPlayer     RpcTag = 12
	RpcSendChat         RpcTag = 13
	RpcStartMeeting     RpcTag = 14
	RpcSetScanner       RpcTag = 15
	RpcSendChatNote     RpcTag = 16
	RpcSetPet           RpcTag = 17
	RpcSetStartCounter  RpcTag = 18
	RpcEnterVent        RpcTag = 19
	RpcExitVent         RpcTag = 20
	RpcSnapTo           RpcTag = 21
	RpcClose            RpcTag = 22
	RpcVotingComplete   RpcTag = 23
	RpcCastVote         RpcTag = 24
	RpcClearVote        RpcTag = 25
	RpcAddVote          RpcTag = 26
	RpcCloseDoorsOfType RpcTag = 27
	RpcRepairSystem     RpcTag = 28
	RpcSetTasks         RpcTag = 29
	RpcUpdateGameData   RpcTag = 30
	RpcClimbLadder      RpcTag = 31
	RpcUsePlatform      RpcTag = 32
)

var rpcTagNames = map[RpcTag]string{
	RpcPlayAnimation:    "PlayAnimation",
	RpcCompleteTask:     "CompleteTask",
	RpcSyncSettings:     "SyncSettings",
	RpcSetInfected:      "SetInfected",
	RpcExiled:           "Exiled",
	RpcCheckName:        "CheckName",
	RpcSetName:          "SetName",
	RpcCheckColor:       "CheckColor",
	RpcSetColor:         "SetColor",
	RpcSetHat:           "SetHat",
	RpcSetSkin:          "SetSkin",
	RpcReportDeadBody:   "ReportDeadBody",
	RpcMurderPlayer:     "MurderPlayer",
	RpcSendChat:         "SendChat",
	RpcStartMeeting:     "StartMeeting",
	RpcSetScanner:       "SetScanner",
	RpcSendChatNote:     "SendChatNote",
	RpcSetPet:           "SetPet",
	RpcSetStartCounter:  "SetStartCounter",
	RpcEnterVent:        "EnterVent",
	RpcExitVent:         "ExitVent",
	RpcSnapTo:           "SnapTo",
	RpcClose:            "Close",
	RpcVotingComplete:   "VotingComplete",
	RpcCastVote:         "CastVote",
	RpcClearVote:        "ClearVote",
	RpcAddVote:          "AddVote",
	RpcCloseDoorsOfType: "CloseDoorsOfType",
	RpcRepairSystem:     "RepairSystem",
	RpcSetTasks:         "SetTasks",
	RpcUpdateGameData:   "UpdateGameData",
	RpcClimbLadder:      "ClimbLadder",
	RpcUsePlatform:      "UsePlatform",
}

// String returns the call name, or the numeric value for unknown calls.
func (t RpcTag) String() string {
	if name, ok := rpcTagNames[t]; ok {
		return name
	}
	return "Rpc(" + strconv.Itoa(int(t)) + ")"
}

// SpawnFlag is the flag byte carried by a SpawnMessage.
type SpawnFlag byte

const (
	SpawnFlagNone              SpawnFlag = 0
	SpawnFlagIsClientCharacter SpawnFlag = 1
)

// GameOverReason is carried by the EndGame root message.
type GameOverReason byte

const (
	GameOverHumansByVote       GameOverReason = 0
	GameOverHumansByTask       GameOverReason = 1
	GameOverImpostorByVote     GameOverReason = 2
	GameOverImpostorByKill     GameOverReason = 3
	GameOverImpostorBySabotage GameOverReason = 4
	GameOverImpostorDisconnect GameOverReason = 5
	GameOverHumansDisconnect   GameOverReason = 6
	GameOverNone               GameOverReason = 255
)

var gameOverNames = map[GameOverReason]string{
	GameOverHumansByVote:       "humans_by_vote",
	GameOverHumansByTask:       "humans_by_task",
	GameOverImpostorByVote:     "impostor_by_vote",
	GameOverImpostorByKill:     "impostor_by_kill",
	GameOverImpostorBySabotage: "impostor_by_sabotage",
	GameOverImpostorDisconnect: "impostor_disconnect",
	GameOverHumansDisconnect:   "humans_disconnect",
	GameOverNone:               "none",
}

func (r GameOverReason) String() string {
	if s, ok := gameOverNames[r]; ok {
		return s
	}
	return "reason_" + strconv.Itoa(int(r))
}

// ParseGameOverReason returns the reason with the given name.
func ParseGameOverReason(name string) (GameOverReason, bool) {
	for r, n := range gameOverNames {
		if n == name {
			return r, true
		}
	}
	return 0, false
}

// Winners names the side a reason awards the game to: "crewmates",
// "impostors" or "none".
func (r GameOverReason) Winners() string {
	switch r {
	case GameOverHumansByVote, GameOverHumansByTask, GameOverImpostorDisconnect:
		return "crewmates"
	case GameOverImpostorByVote, GameOverImpostorByKill, GameOverImpostorBySabotage, GameOverHumansDisconnect:
		return "impostors"
	default:
		return "none"
	}
}

// DisconnectReason is carried by RemovePlayer/KickPlayer flows.
type DisconnectReason byte

const (
	DisconnectExitGame DisconnectReason = 0
	DisconnectKicked   DisconnectReason = 8
	DisconnectBanned   DisconnectReason = 6
	DisconnectTimeout  DisconnectReason = 16 // Never readied up in time
)

// ChatNoteType is carried by SendChatNote.
type ChatNoteType byte

const (
	ChatNoteDidVote ChatNoteType = 0
)

// MaxMessageSize is the largest payload a single framed message can carry.
const MaxMessageSize = 65535

// LengthPrefixSize is the size of the message length prefix in bytes.
const LengthPrefixSize = 2
