package protocol

import (
	"fmt"

	"github.com/skeld-project/skeld/internal/content"
)

// GameOptionsVersion is the options block version this package writes.
const GameOptionsVersion = 4

// KillDistance selects the kill range.
type KillDistance byte

const (
	KillDistanceShort  KillDistance = 0
	KillDistanceMedium KillDistance = 1
	KillDistanceLong   KillDistance = 2
)

// TaskBarUpdates controls when the shared task bar refreshes.
type TaskBarUpdates byte

const (
	TaskBarAlways   TaskBarUpdates = 0
	TaskBarMeetings TaskBarUpdates = 1
	TaskBarNever    TaskBarUpdates = 2
)

// GameOptions is the lobby settings block shared by SyncSettings and
// ChangeSettings.
type GameOptions struct {
	Version           byte           `json:"version" yaml:"version"`
	MaxPlayers        byte           `json:"max_players" yaml:"max_players"`
	Keywords          uint32         `json:"keywords" yaml:"keywords"`
	Map               content.MapID  `json:"map" yaml:"map"`
	PlayerSpeed       float32        `json:"player_speed" yaml:"player_speed"`
	CrewmateVision    float32        `json:"crewmate_vision" yaml:"crewmate_vision"`
	ImpostorVision    float32        `json:"impostor_vision" yaml:"impostor_vision"`
	KillCooldown      float32        `json:"kill_cooldown" yaml:"kill_cooldown"`
	CommonTasks       byte           `json:"common_tasks" yaml:"common_tasks"`
	LongTasks         byte           `json:"long_tasks" yaml:"long_tasks"`
	ShortTasks        byte           `json:"short_tasks" yaml:"short_tasks"`
	EmergencyMeetings int32          `json:"emergency_meetings" yaml:"emergency_meetings"`
	Impostors         byte           `json:"impostors" yaml:"impostors"`
	KillDistance      KillDistance   `json:"kill_distance" yaml:"kill_distance"`
	DiscussionTime    int32          `json:"discussion_time" yaml:"discussion_time"`
	VotingTime        int32          `json:"voting_time" yaml:"voting_time"`
	IsDefaults        bool           `json:"is_defaults" yaml:"is_defaults"`
	EmergencyCooldown byte           `json:"emergency_cooldown" yaml:"emergency_cooldown"`
	ConfirmEjects     bool           `json:"confirm_ejects" yaml:"confirm_ejects"`
	VisualTasks       bool           `json:"visual_tasks" yaml:"visual_tasks"`
	AnonymousVotes    bool           `json:"anonymous_votes" yaml:"anonymous_votes"`
	TaskBarUpdates    TaskBarUpdates `json:"task_bar_updates" yaml:"task_bar_updates"`
}

// DefaultGameOptions returns the options a freshly hosted lobby starts with.
func DefaultGameOptions() GameOptions {
	return GameOptions{
		Version:           GameOptionsVersion,
		MaxPlayers:        10,
		Keywords:          1, // English
		Map:               content.MapTheSkeld,
		PlayerSpeed:       1,
		CrewmateVision:    1,
		ImpostorVision:    1.5,
		KillCooldown:      15,
		CommonTasks:       1,
		LongTasks:         1,
		ShortTasks:        2,
		EmergencyMeetings: 1,
		Impostors:         1,
		KillDistance:      KillDistanceMedium,
		DiscussionTime:    15,
		VotingTime:        120,
		IsDefaults:        true,
		EmergencyCooldown: 15,
		ConfirmEjects:     true,
		VisualTasks:       true,
		AnonymousVotes:    false,
		TaskBarUpdates:    TaskBarAlways,
	}
}

// Serialize writes the options block prefixed by its packed length.
func (o *GameOptions) Serialize(w *Writer) {
	body := NewWriter()
	body.WriteUint8(GameOptionsVersion)
	body.WriteUint8(o.MaxPlayers)
	body.WriteUint32(o.Keywords)
	body.WriteUint8(byte(o.Map))
	body.WriteFloat32(o.PlayerSpeed)
	body.WriteFloat32(o.CrewmateVision)
	body.WriteFloat32(o.ImpostorVision)
	body.WriteFloat32(o.KillCooldown)
	body.WriteUint8(o.CommonTasks)
	body.WriteUint8(o.LongTasks)
	body.WriteUint8(o.ShortTasks)
	body.WriteInt32(o.EmergencyMeetings)
	body.WriteUint8(o.Impostors)
	body.WriteUint8(byte(o.KillDistance))
	body.WriteInt32(o.DiscussionTime)
	body.WriteInt32(o.VotingTime)
	body.WriteBool(o.IsDefaults)
	body.WriteUint8(o.EmergencyCooldown)
	body.WriteBool(o.ConfirmEjects)
	body.WriteBool(o.VisualTasks)
	body.WriteBool(o.AnonymousVotes)
	body.WriteUint8(byte(o.TaskBarUpdates))
	w.WriteBytesAndSize(body.Bytes())
}

// Deserialize reads a length-prefixed options block. Older versions stop
// after the fields they define; later fields keep their current values.
func (o *GameOptions) Deserialize(r *Reader) error {
	raw := r.ReadBytesAndSize()
	if err := r.Err(); err != nil {
		return fmt.Errorf("failed to read game options: %w", err)
	}

	b := NewReader(raw)
	o.Version = b.ReadUint8()
	o.MaxPlayers = b.ReadUint8()
	o.Keywords = b.ReadUint32()
	o.Map = content.MapID(b.ReadUint8())
	o.PlayerSpeed = b.ReadFloat32()
	o.CrewmateVision = b.ReadFloat32()
	o.ImpostorVision = b.ReadFloat32()
	o.KillCooldown = b.ReadFloat32()
	o.CommonTasks = b.ReadUint8()
	o.LongTasks = b.ReadUint8()
	o.ShortTasks = b.ReadUint8()
	o.EmergencyMeetings = b.ReadInt32()
	o.Impostors = b.ReadUint8()
	o.KillDistance = KillDistance(b.ReadUint8())
	o.DiscussionTime = b.ReadInt32()
	o.VotingTime = b.ReadInt32()
	o.IsDefaults = b.ReadBool()

	if o.Version > 1 {
		o.EmergencyCooldown = b.ReadUint8()
	}
	if o.Version > 2 {
		o.ConfirmEjects = b.ReadBool()
		o.VisualTasks = b.ReadBool()
	}
	if o.Version > 3 {
		o.AnonymousVotes = b.ReadBool()
		o.TaskBarUpdates = TaskBarUpdates(b.ReadUint8())
	}

	if err := b.Err(); err != nil {
		return fmt.Errorf("failed to parse game options v%d: %w", o.Version, err)
	}
	o.Version = GameOptionsVersion
	return nil
}
