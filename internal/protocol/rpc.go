package protocol

import (
	"fmt"

	"github.com/skeld-project/skeld/internal/content"
)

// Rpc is a typed remote procedure call payload.
type Rpc interface {
	Tag() RpcTag
	Serialize(w *Writer)
	Deserialize(r *Reader)
}

var rpcFactories = map[RpcTag]func() Rpc{
	RpcPlayAnimation:    func() Rpc { return &PlayAnimationRpc{} },
	RpcCompleteTask:     func() Rpc { return &CompleteTaskRpc{} },
	RpcSyncSettings:     func() Rpc { return &SyncSettingsRpc{} },
	RpcSetInfected:      func() Rpc { return &SetInfectedRpc{} },
	RpcExiled:           func() Rpc { return &ExiledRpc{} },
	RpcCheckName:        func() Rpc { return &CheckNameRpc{} },
	RpcSetName:          func() Rpc { return &SetNameRpc{} },
	RpcCheckColor:       func() Rpc { return &CheckColorRpc{} },
	RpcSetColor:         func() Rpc { return &SetColorRpc{} },
	RpcSetHat:           func() Rpc { return &SetHatRpc{} },
	RpcSetSkin:          func() Rpc { return &SetSkinRpc{} },
	RpcReportDeadBody:   func() Rpc { return &ReportDeadBodyRpc{} },
	RpcMurderPlayer:     func() Rpc { return &MurderPlayerRpc{} },
	RpcSendChat:         func() Rpc { return &SendChatRpc{} },
	RpcStartMeeting:     func() Rpc { return &StartMeetingRpc{} },
	RpcSetScanner:       func() Rpc { return &SetScannerRpc{} },
	RpcSendChatNote:     func() Rpc { return &SendChatNoteRpc{} },
	RpcSetPet:           func() Rpc { return &SetPetRpc{} },
	RpcSetStartCounter:  func() Rpc { return &SetStartCounterRpc{} },
	RpcEnterVent:        func() Rpc { return &EnterVentRpc{} },
	RpcExitVent:         func() Rpc { return &ExitVentRpc{} },
	RpcSnapTo:           func() Rpc { return &SnapToRpc{} },
	RpcClose:            func() Rpc { return &CloseRpc{} },
	RpcVotingComplete:   func() Rpc { return &VotingCompleteRpc{} },
	RpcCastVote:         func() Rpc { return &CastVoteRpc{} },
	RpcClearVote:        func() Rpc { return &ClearVoteRpc{} },
	RpcAddVote:          func() Rpc { return &AddVoteRpc{} },
	RpcCloseDoorsOfType: func() Rpc { return &CloseDoorsOfTypeRpc{} },
	RpcRepairSystem:     func() Rpc { return &RepairSystemRpc{} },
	RpcSetTasks:         func() Rpc { return &SetTasksRpc{} },
	RpcUpdateGameData:   func() Rpc { return &UpdateGameDataRpc{} },
	RpcClimbLadder:      func() Rpc { return &ClimbLadderRpc{} },
	RpcUsePlatform:      func() Rpc { return &UsePlatformRpc{} },
}

// ParseRpc decodes the payload of an RpcMessage into its typed form.
func ParseRpc(msg *RpcMessage) (Rpc, error) {
	factory, ok := rpcFactories[msg.Call]
	if !ok {
		return nil, fmt.Errorf("rpc %s: %w", msg.Call, ErrUnknownTag)
	}
	rpc := factory()
	r := NewReader(msg.Data)
	rpc.Deserialize(r)
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse rpc %s on net id %d: %w", msg.Call, msg.NetID, err)
	}
	return rpc, nil
}

// NewRpcMessage serializes a typed call into an RpcMessage targeting netID.
func NewRpcMessage(netID uint32, rpc Rpc) *RpcMessage {
	w := NewWriter()
	rpc.Serialize(w)
	return &RpcMessage{
		NetID: netID,
		Call:  rpc.Tag(),
		Data:  w.Copy(),
	}
}

// PlayAnimationRpc plays a task animation visible to other players.
type PlayAnimationRpc struct{ Task byte }

func (c *PlayAnimationRpc) Tag() RpcTag           { return RpcPlayAnimation }
func (c *PlayAnimationRpc) Serialize(w *Writer)   { w.WriteUint8(c.Task) }
func (c *PlayAnimationRpc) Deserialize(r *Reader) { c.Task = r.ReadUint8() }

// CompleteTaskRpc marks one of the sender's tasks complete.
type CompleteTaskRpc struct{ TaskIndex uint32 }

func (c *CompleteTaskRpc) Tag() RpcTag           { return RpcCompleteTask }
func (c *CompleteTaskRpc) Serialize(w *Writer)   { w.WritePackedUint32(c.TaskIndex) }
func (c *CompleteTaskRpc) Deserialize(r *Reader) { c.TaskIndex = r.ReadPackedUint32() }

// SyncSettingsRpc broadcasts the host's game options.
type SyncSettingsRpc struct{ Settings GameOptions }

func (c *SyncSettingsRpc) Tag() RpcTag         { return RpcSyncSettings }
func (c *SyncSettingsRpc) Serialize(w *Writer) { c.Settings.Serialize(w) }
func (c *SyncSettingsRpc) Deserialize(r *Reader) {
	if err := c.Settings.Deserialize(r); err != nil && r.err == nil {
		r.err = err
	}
}

// SetInfectedRpc announces the impostors by player id.
type SetInfectedRpc struct{ Impostors []uint8 }

func (c *SetInfectedRpc) Tag() RpcTag { return RpcSetInfected }
func (c *SetInfectedRpc) Serialize(w *Writer) {
	w.WritePackedUint32(uint32(len(c.Impostors)))
	for _, id := range c.Impostors {
		w.WriteUint8(id)
	}
}
func (c *SetInfectedRpc) Deserialize(r *Reader) {
	n := r.ReadPackedUint32()
	if int(n) > r.Left() {
		n = uint32(r.Left())
	}
	c.Impostors = make([]uint8, 0, n)
	for i := uint32(0); i < n; i++ {
		c.Impostors = append(c.Impostors, r.ReadUint8())
	}
}

// ExiledRpc marks the target player as ejected.
type ExiledRpc struct{}

func (c *ExiledRpc) Tag() RpcTag         { return RpcExiled }
func (c *ExiledRpc) Serialize(*Writer)   {}
func (c *ExiledRpc) Deserialize(*Reader) {}

// CheckNameRpc asks the host to validate and assign a name.
type CheckNameRpc struct{ Name string }

func (c *CheckNameRpc) Tag() RpcTag           { return RpcCheckName }
func (c *CheckNameRpc) Serialize(w *Writer)   { w.WriteString(c.Name) }
func (c *CheckNameRpc) Deserialize(r *Reader) { c.Name = r.ReadString() }

// SetNameRpc assigns a player's name.
type SetNameRpc struct{ Name string }

func (c *SetNameRpc) Tag() RpcTag           { return RpcSetName }
func (c *SetNameRpc) Serialize(w *Writer)   { w.WriteString(c.Name) }
func (c *SetNameRpc) Deserialize(r *Reader) { c.Name = r.ReadString() }

// CheckColorRpc asks the host to validate and assign a color.
type CheckColorRpc struct{ Color content.Color }

func (c *CheckColorRpc) Tag() RpcTag           { return RpcCheckColor }
func (c *CheckColorRpc) Serialize(w *Writer)   { w.WriteUint8(byte(c.Color)) }
func (c *CheckColorRpc) Deserialize(r *Reader) { c.Color = content.Color(r.ReadUint8()) }

// SetColorRpc assigns a player's color.
type SetColorRpc struct{ Color content.Color }

func (c *SetColorRpc) Tag() RpcTag           { return RpcSetColor }
func (c *SetColorRpc) Serialize(w *Writer)   { w.WriteUint8(byte(c.Color)) }
func (c *SetColorRpc) Deserialize(r *Reader) { c.Color = content.Color(r.ReadUint8()) }

// SetHatRpc assigns a player's hat.
type SetHatRpc struct{ Hat uint32 }

func (c *SetHatRpc) Tag() RpcTag           { return RpcSetHat }
func (c *SetHatRpc) Serialize(w *Writer)   { w.WritePackedUint32(c.Hat) }
func (c *SetHatRpc) Deserialize(r *Reader) { c.Hat = r.ReadPackedUint32() }

// SetSkinRpc assigns a player's skin.
type SetSkinRpc struct{ Skin uint32 }

func (c *SetSkinRpc) Tag() RpcTag           { return RpcSetSkin }
func (c *SetSkinRpc) Serialize(w *Writer)   { w.WritePackedUint32(c.Skin) }
func (c *SetSkinRpc) Deserialize(r *Reader) { c.Skin = r.ReadPackedUint32() }

// SetPetRpc assigns a player's pet.
type SetPetRpc struct{ Pet uint32 }

func (c *SetPetRpc) Tag() RpcTag           { return RpcSetPet }
func (c *SetPetRpc) Serialize(w *Writer)   { w.WritePackedUint32(c.Pet) }
func (c *SetPetRpc) Deserialize(r *Reader) { c.Pet = r.ReadPackedUint32() }

// NoBody is the body id used for an emergency button meeting.
const NoBody uint8 = 255

// ReportDeadBodyRpc asks the host to start a meeting for a body (or NoBody).
type ReportDeadBodyRpc struct{ BodyID uint8 }

func (c *ReportDeadBodyRpc) Tag() RpcTag           { return RpcReportDeadBody }
func (c *ReportDeadBodyRpc) Serialize(w *Writer)   { w.WriteUint8(c.BodyID) }
func (c *ReportDeadBodyRpc) Deserialize(r *Reader) { c.BodyID = r.ReadUint8() }

// MurderPlayerRpc kills the player whose PlayerControl has VictimNetID.
type MurderPlayerRpc struct{ VictimNetID uint32 }

func (c *MurderPlayerRpc) Tag() RpcTag           { return RpcMurderPlayer }
func (c *MurderPlayerRpc) Serialize(w *Writer)   { w.WritePackedUint32(c.VictimNetID) }
func (c *MurderPlayerRpc) Deserialize(r *Reader) { c.VictimNetID = r.ReadPackedUint32() }

// SendChatRpc is a chat message.
type SendChatRpc struct{ Message string }

func (c *SendChatRpc) Tag() RpcTag           { return RpcSendChat }
func (c *SendChatRpc) Serialize(w *Writer)   { w.WriteString(c.Message) }
func (c *SendChatRpc) Deserialize(r *Reader) { c.Message = r.ReadString() }

// StartMeetingRpc is the host's confirmation that a meeting starts.
type StartMeetingRpc struct{ BodyID uint8 }

func (c *StartMeetingRpc) Tag() RpcTag           { return RpcStartMeeting }
func (c *StartMeetingRpc) Serialize(w *Writer)   { w.WriteUint8(c.BodyID) }
func (c *StartMeetingRpc) Deserialize(r *Reader) { c.BodyID = r.ReadUint8() }

// SetScannerRpc toggles the med-bay scan animation.
type SetScannerRpc struct {
	Scanning bool
	Seq      uint8
}

func (c *SetScannerRpc) Tag() RpcTag { return RpcSetScanner }
func (c *SetScannerRpc) Serialize(w *Writer) {
	w.WriteBool(c.Scanning)
	w.WriteUint8(c.Seq)
}
func (c *SetScannerRpc) Deserialize(r *Reader) {
	c.Scanning = r.ReadBool()
	c.Seq = r.ReadUint8()
}

// SendChatNoteRpc is a system note in chat, e.g. "X has voted".
type SendChatNoteRpc struct {
	PlayerID uint8
	Note     ChatNoteType
}

func (c *SendChatNoteRpc) Tag() RpcTag { return RpcSendChatNote }
func (c *SendChatNoteRpc) Serialize(w *Writer) {
	w.WriteUint8(c.PlayerID)
	w.WriteUint8(byte(c.Note))
}
func (c *SendChatNoteRpc) Deserialize(r *Reader) {
	c.PlayerID = r.ReadUint8()
	c.Note = ChatNoteType(r.ReadUint8())
}

// SetStartCounterRpc updates the lobby countdown. Counter -1 hides it.
type SetStartCounterRpc struct {
	Seq     uint32
	Counter int8
}

func (c *SetStartCounterRpc) Tag() RpcTag { return RpcSetStartCounter }
func (c *SetStartCounterRpc) Serialize(w *Writer) {
	w.WritePackedUint32(c.Seq)
	w.WriteInt8(c.Counter)
}
func (c *SetStartCounterRpc) Deserialize(r *Reader) {
	c.Seq = r.ReadPackedUint32()
	c.Counter = r.ReadInt8()
}

// EnterVentRpc moves the player into a vent.
type EnterVentRpc struct{ VentID uint32 }

func (c *EnterVentRpc) Tag() RpcTag           { return RpcEnterVent }
func (c *EnterVentRpc) Serialize(w *Writer)   { w.WritePackedUint32(c.VentID) }
func (c *EnterVentRpc) Deserialize(r *Reader) { c.VentID = r.ReadPackedUint32() }

// ExitVentRpc moves the player out of a vent.
type ExitVentRpc struct{ VentID uint32 }

func (c *ExitVentRpc) Tag() RpcTag           { return RpcExitVent }
func (c *ExitVentRpc) Serialize(w *Writer)   { w.WritePackedUint32(c.VentID) }
func (c *ExitVentRpc) Deserialize(r *Reader) { c.VentID = r.ReadPackedUint32() }

// SnapToRpc teleports a player.
type SnapToRpc struct {
	Position Vector2
	Seq      uint16
}

func (c *SnapToRpc) Tag() RpcTag { return RpcSnapTo }
func (c *SnapToRpc) Serialize(w *Writer) {
	w.WriteVector2(c.Position)
	w.WriteUint16(c.Seq)
}
func (c *SnapToRpc) Deserialize(r *Reader) {
	c.Position = r.ReadVector2()
	c.Seq = r.ReadUint16()
}

// CloseRpc closes the meeting hud.
type CloseRpc struct{}

func (c *CloseRpc) Tag() RpcTag         { return RpcClose }
func (c *CloseRpc) Serialize(*Writer)   {}
func (c *CloseRpc) Deserialize(*Reader) {}

// VoterState is one player's final vote in VotingComplete.
type VoterState struct {
	PlayerID uint8
	VotedFor uint8
}

// VotingCompleteRpc carries the meeting outcome.
// Format: [count:packed][count * (player_id:1, voted_for:1)][exiled:1][tie:1]
type VotingCompleteRpc struct {
	States   []VoterState
	ExiledID uint8 // NoExile when nobody was ejected
	Tie      bool
}

// NoExile is the exiled id used when nobody leaves the ship.
const NoExile uint8 = 255

func (c *VotingCompleteRpc) Tag() RpcTag { return RpcVotingComplete }
func (c *VotingCompleteRpc) Serialize(w *Writer) {
	w.WritePackedUint32(uint32(len(c.States)))
	for _, s := range c.States {
		w.WriteUint8(s.PlayerID)
		w.WriteUint8(s.VotedFor)
	}
	w.WriteUint8(c.ExiledID)
	w.WriteBool(c.Tie)
}
func (c *VotingCompleteRpc) Deserialize(r *Reader) {
	n := r.ReadPackedUint32()
	if int(n)*2 > r.Left() {
		n = uint32(r.Left() / 2)
	}
	c.States = make([]VoterState, 0, n)
	for i := uint32(0); i < n; i++ {
		c.States = append(c.States, VoterState{PlayerID: r.ReadUint8(), VotedFor: r.ReadUint8()})
	}
	c.ExiledID = r.ReadUint8()
	c.Tie = r.ReadBool()
}

// CastVoteRpc is a vote sent to the host.
type CastVoteRpc struct {
	VoterID   uint8
	SuspectID uint8
}

func (c *CastVoteRpc) Tag() RpcTag { return RpcCastVote }
func (c *CastVoteRpc) Serialize(w *Writer) {
	w.WriteUint8(c.VoterID)
	w.WriteUint8(c.SuspectID)
}
func (c *CastVoteRpc) Deserialize(r *Reader) {
	c.VoterID = r.ReadUint8()
	c.SuspectID = r.ReadUint8()
}

// ClearVoteRpc tells a client its vote was cleared.
type ClearVoteRpc struct{}

func (c *ClearVoteRpc) Tag() RpcTag         { return RpcClearVote }
func (c *ClearVoteRpc) Serialize(*Writer)   {}
func (c *ClearVoteRpc) Deserialize(*Reader) {}

// AddVoteRpc is a kick vote by client id.
type AddVoteRpc struct {
	VoterClientID  int32
	TargetClientID int32
}

func (c *AddVoteRpc) Tag() RpcTag { return RpcAddVote }
func (c *AddVoteRpc) Serialize(w *Writer) {
	w.WriteInt32(c.VoterClientID)
	w.WriteInt32(c.TargetClientID)
}
func (c *AddVoteRpc) Deserialize(r *Reader) {
	c.VoterClientID = r.ReadInt32()
	c.TargetClientID = r.ReadInt32()
}

// CloseDoorsOfTypeRpc asks the host to close every door in a room.
type CloseDoorsOfTypeRpc struct{ System content.SystemType }

func (c *CloseDoorsOfTypeRpc) Tag() RpcTag           { return RpcCloseDoorsOfType }
func (c *CloseDoorsOfTypeRpc) Serialize(w *Writer)   { w.WriteUint8(byte(c.System)) }
func (c *CloseDoorsOfTypeRpc) Deserialize(r *Reader) { c.System = content.SystemType(r.ReadUint8()) }

// RepairSystemRpc forwards a repair (or sabotage) to a ship system.
// Format: [system:1][player_net_id:packed][amount:1]
type RepairSystemRpc struct {
	System      content.SystemType
	PlayerNetID uint32
	Amount      uint8
}

func (c *RepairSystemRpc) Tag() RpcTag { return RpcRepairSystem }
func (c *RepairSystemRpc) Serialize(w *Writer) {
	w.WriteUint8(byte(c.System))
	w.WritePackedUint32(c.PlayerNetID)
	w.WriteUint8(c.Amount)
}
func (c *RepairSystemRpc) Deserialize(r *Reader) {
	c.System = content.SystemType(r.ReadUint8())
	c.PlayerNetID = r.ReadPackedUint32()
	c.Amount = r.ReadUint8()
}

// SetTasksRpc assigns task types to a player.
type SetTasksRpc struct {
	PlayerID uint8
	Tasks    []uint8
}

func (c *SetTasksRpc) Tag() RpcTag { return RpcSetTasks }
func (c *SetTasksRpc) Serialize(w *Writer) {
	w.WriteUint8(c.PlayerID)
	w.WriteBytesAndSize(c.Tasks)
}
func (c *SetTasksRpc) Deserialize(r *Reader) {
	c.PlayerID = r.ReadUint8()
	tasks := r.ReadBytesAndSize()
	c.Tasks = append([]uint8(nil), tasks...)
}

// UpdateGameDataRpc carries framed player records in the GameData delta
// format. Data is kept raw and decoded by the GameData component.
type UpdateGameDataRpc struct{ Data []byte }

func (c *UpdateGameDataRpc) Tag() RpcTag         { return RpcUpdateGameData }
func (c *UpdateGameDataRpc) Serialize(w *Writer) { w.WriteBytes(c.Data) }
func (c *UpdateGameDataRpc) Deserialize(r *Reader) {
	c.Data = append([]byte(nil), r.ReadRemaining()...)
}

// ClimbLadderRpc moves a player along an Airship ladder.
type ClimbLadderRpc struct {
	LadderID uint8
	Seq      uint8
}

func (c *ClimbLadderRpc) Tag() RpcTag { return RpcClimbLadder }
func (c *ClimbLadderRpc) Serialize(w *Writer) {
	w.WriteUint8(c.LadderID)
	w.WriteUint8(c.Seq)
}
func (c *ClimbLadderRpc) Deserialize(r *Reader) {
	c.LadderID = r.ReadUint8()
	c.Seq = r.ReadUint8()
}

// UsePlatformRpc asks the host to move the Airship gap platform.
type UsePlatformRpc struct{}

func (c *UsePlatformRpc) Tag() RpcTag         { return RpcUsePlatform }
func (c *UsePlatformRpc) Serialize(*Writer)   {}
func (c *UsePlatformRpc) Deserialize(*Reader) {}
