package protocol

import (
	"errors"
	"fmt"

	"github.com/skeld-project/skeld/internal/content"
)

// ErrUnknownTag is returned when a message carries a tag this package does
// not know how to decode.
var ErrUnknownTag = errors.New("protocol: unknown message tag")

// GameDataMessage is one message inside a GameData/GameDataTo batch.
type GameDataMessage interface {
	Tag() GameDataTag
	Serialize(w *Writer)
	Deserialize(r *Reader) error
}

// DataMessage carries the delta state of one net object.
// Format: [net_id:packed][data...]
type DataMessage struct {
	NetID uint32
	Data  []byte
}

func (m *DataMessage) Tag() GameDataTag { return TagData }

func (m *DataMessage) Serialize(w *Writer) {
	w.WritePackedUint32(m.NetID)
	w.WriteBytes(m.Data)
}

func (m *DataMessage) Deserialize(r *Reader) error {
	m.NetID = r.ReadPackedUint32()
	m.Data = r.ReadRemaining()
	if err := r.Err(); err != nil {
		return fmt.Errorf("failed to parse data message: %w", err)
	}
	return nil
}

// RpcMessage carries a remote procedure call on one net object. Data holds
// the undecoded call payload; ParseRpc turns it into a typed Rpc.
// Format: [net_id:packed][call_id:1][data...]
type RpcMessage struct {
	NetID uint32
	Call  RpcTag
	Data  []byte
}

func (m *RpcMessage) Tag() GameDataTag { return TagRpc }

func (m *RpcMessage) Serialize(w *Writer) {
	w.WritePackedUint32(m.NetID)
	w.WriteUint8(byte(m.Call))
	w.WriteBytes(m.Data)
}

func (m *RpcMessage) Deserialize(r *Reader) error {
	m.NetID = r.ReadPackedUint32()
	m.Call = RpcTag(r.ReadUint8())
	m.Data = r.ReadRemaining()
	if err := r.Err(); err != nil {
		return fmt.Errorf("failed to parse rpc message: %w", err)
	}
	return nil
}

// ComponentData is the spawn payload of one component inside a SpawnMessage.
type ComponentData struct {
	NetID uint32
	Data  []byte
}

// SpawnMessage instantiates a prefab with full component state.
// Format: [spawn_type:packed][owner_id:packed][flags:1][count:packed]
//
//	[count * (net_id:packed, message(tag=1, data))]
type SpawnMessage struct {
	SpawnType  content.SpawnType
	OwnerID    int32
	Flags      SpawnFlag
	Components []ComponentData
}

func (m *SpawnMessage) Tag() GameDataTag { return TagSpawn }

func (m *SpawnMessage) Serialize(w *Writer) {
	w.WritePackedUint32(uint32(m.SpawnType))
	w.WritePackedInt32(m.OwnerID)
	w.WriteUint8(byte(m.Flags))
	w.WritePackedUint32(uint32(len(m.Components)))
	for _, c := range m.Components {
		w.WritePackedUint32(c.NetID)
		w.WriteMessage(1, c.Data)
	}
}

func (m *SpawnMessage) Deserialize(r *Reader) error {
	m.SpawnType = content.SpawnType(r.ReadPackedUint32())
	m.OwnerID = r.ReadPackedInt32()
	m.Flags = SpawnFlag(r.ReadUint8())
	count := r.ReadPackedUint32()
	if r.Err() == nil && int(count) > r.Left() {
		return fmt.Errorf("failed to parse spawn message: %d components in %d bytes", count, r.Left())
	}

	m.Components = make([]ComponentData, 0, count)
	for i := uint32(0); i < count && r.Err() == nil; i++ {
		netID := r.ReadPackedUint32()
		_, sub := r.ReadMessage()
		m.Components = append(m.Components, ComponentData{
			NetID: netID,
			Data:  sub.ReadRemaining(),
		})
	}

	if err := r.Err(); err != nil {
		return fmt.Errorf("failed to parse spawn message: %w", err)
	}
	return nil
}

// DespawnMessage removes a net object.
// Format: [net_id:packed]
type DespawnMessage struct {
	NetID uint32
}

func (m *DespawnMessage) Tag() GameDataTag { return TagDespawn }

func (m *DespawnMessage) Serialize(w *Writer) {
	w.WritePackedUint32(m.NetID)
}

func (m *DespawnMessage) Deserialize(r *Reader) error {
	m.NetID = r.ReadPackedUint32()
	if err := r.Err(); err != nil {
		return fmt.Errorf("failed to parse despawn message: %w", err)
	}
	return nil
}

// SceneChangeMessage is sent when a client switches scene ("OnlineGame").
// Format: [client_id:packed][scene:string]
type SceneChangeMessage struct {
	ClientID int32
	Scene    string
}

func (m *SceneChangeMessage) Tag() GameDataTag { return TagSceneChange }

func (m *SceneChangeMessage) Serialize(w *Writer) {
	w.WritePackedInt32(m.ClientID)
	w.WriteString(m.Scene)
}

func (m *SceneChangeMessage) Deserialize(r *Reader) error {
	m.ClientID = r.ReadPackedInt32()
	m.Scene = r.ReadString()
	if err := r.Err(); err != nil {
		return fmt.Errorf("failed to parse scene change message: %w", err)
	}
	return nil
}

// ReadyMessage is sent when a client finished loading the game scene.
// Format: [client_id:packed]
type ReadyMessage struct {
	ClientID int32
}

func (m *ReadyMessage) Tag() GameDataTag { return TagReady }

func (m *ReadyMessage) Serialize(w *Writer) {
	w.WritePackedInt32(m.ClientID)
}

func (m *ReadyMessage) Deserialize(r *Reader) error {
	m.ClientID = r.ReadPackedInt32()
	if err := r.Err(); err != nil {
		return fmt.Errorf("failed to parse ready message: %w", err)
	}
	return nil
}

// ChangeSettingsMessage carries a full game options block.
type ChangeSettingsMessage struct {
	Settings GameOptions
}

func (m *ChangeSettingsMessage) Tag() GameDataTag { return TagChangeSettings }

func (m *ChangeSettingsMessage) Serialize(w *Writer) {
	m.Settings.Serialize(w)
}

func (m *ChangeSettingsMessage) Deserialize(r *Reader) error {
	return m.Settings.Deserialize(r)
}

// NewGameDataMessage returns an empty message for a tag.
func NewGameDataMessage(tag GameDataTag) (GameDataMessage, error) {
	switch tag {
	case TagData:
		return &DataMessage{}, nil
	case TagRpc:
		return &RpcMessage{}, nil
	case TagSpawn:
		return &SpawnMessage{}, nil
	case TagDespawn:
		return &DespawnMessage{}, nil
	case TagSceneChange:
		return &SceneChangeMessage{}, nil
	case TagReady:
		return &ReadyMessage{}, nil
	case TagChangeSettings:
		return &ChangeSettingsMessage{}, nil
	default:
		return nil, fmt.Errorf("game data tag 0x%02X: %w", byte(tag), ErrUnknownTag)
	}
}

// WriteGameData writes each message framed with its tag.
func WriteGameData(w *Writer, messages []GameDataMessage) {
	for _, m := range messages {
		w.Begin(byte(m.Tag()))
		m.Serialize(w)
		w.End()
	}
}

// ReadGameData decodes every framed game-data message left in r. Messages
// with unknown tags are skipped so one bad entry cannot desync the batch.
func ReadGameData(r *Reader) ([]GameDataMessage, error) {
	var out []GameDataMessage
	err := r.Messages(func(tag byte, sub *Reader) error {
		msg, err := NewGameDataMessage(GameDataTag(tag))
		if err != nil {
			return nil
		}
		if err := msg.Deserialize(sub); err != nil {
			return err
		}
		out = append(out, msg)
		return nil
	})
	return out, err
}
