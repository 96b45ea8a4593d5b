package protocol

import (
	"fmt"
)

// RootMessage is a top-level message the room hands to its broadcaster
// alongside the game-data batch.
type RootMessage interface {
	Tag() RootTag
	Serialize(w *Writer)
	Deserialize(r *Reader) error
}

// GameDataPayload is a batch of game-data messages for everyone in a room.
// Format: [code:4][messages...]
type GameDataPayload struct {
	Code     int32
	Messages []GameDataMessage
}

func (m *GameDataPayload) Tag() RootTag { return RootGameData }

func (m *GameDataPayload) Serialize(w *Writer) {
	w.WriteInt32(m.Code)
	WriteGameData(w, m.Messages)
}

func (m *GameDataPayload) Deserialize(r *Reader) error {
	m.Code = r.ReadInt32()
	messages, err := ReadGameData(r)
	if err != nil {
		return fmt.Errorf("failed to parse game data: %w", err)
	}
	m.Messages = messages
	return nil
}

// GameDataToPayload is a batch of game-data messages for one recipient.
// Format: [code:4][recipient:packed][messages...]
type GameDataToPayload struct {
	Code      int32
	Recipient int32
	Messages  []GameDataMessage
}

func (m *GameDataToPayload) Tag() RootTag { return RootGameDataTo }

func (m *GameDataToPayload) Serialize(w *Writer) {
	w.WriteInt32(m.Code)
	w.WritePackedInt32(m.Recipient)
	WriteGameData(w, m.Messages)
}

func (m *GameDataToPayload) Deserialize(r *Reader) error {
	m.Code = r.ReadInt32()
	m.Recipient = r.ReadPackedInt32()
	messages, err := ReadGameData(r)
	if err != nil {
		return fmt.Errorf("failed to parse game data to %d: %w", m.Recipient, err)
	}
	m.Messages = messages
	return nil
}

// StartGamePayload announces that the host started the game.
type StartGamePayload struct {
	Code int32
}

func (m *StartGamePayload) Tag() RootTag        { return RootStartGame }
func (m *StartGamePayload) Serialize(w *Writer) { w.WriteInt32(m.Code) }
func (m *StartGamePayload) Deserialize(r *Reader) error {
	m.Code = r.ReadInt32()
	return r.Err()
}

// EndGamePayload announces the game result.
// Format: [code:4][reason:1][show_ad:1]
type EndGamePayload struct {
	Code   int32
	Reason GameOverReason
	ShowAd bool
}

func (m *EndGamePayload) Tag() RootTag { return RootEndGame }

func (m *EndGamePayload) Serialize(w *Writer) {
	w.WriteInt32(m.Code)
	w.WriteUint8(byte(m.Reason))
	w.WriteBool(m.ShowAd)
}

func (m *EndGamePayload) Deserialize(r *Reader) error {
	m.Code = r.ReadInt32()
	m.Reason = GameOverReason(r.ReadUint8())
	m.ShowAd = r.ReadBool()
	return r.Err()
}

// AlterGameTag selects what an AlterGame message changes.
type AlterGameTag byte

// AlterGameChangePrivacy is the only AlterGame tag in use.
const AlterGameChangePrivacy AlterGameTag = 1

// AlterGamePayload changes the lobby's public/private flag.
// Format: [code:4][tag:1][public:1]
type AlterGamePayload struct {
	Code   int32
	Alter  AlterGameTag
	Public bool
}

func (m *AlterGamePayload) Tag() RootTag { return RootAlterGame }

func (m *AlterGamePayload) Serialize(w *Writer) {
	w.WriteInt32(m.Code)
	w.WriteUint8(byte(m.Alter))
	w.WriteBool(m.Public)
}

func (m *AlterGamePayload) Deserialize(r *Reader) error {
	m.Code = r.ReadInt32()
	m.Alter = AlterGameTag(r.ReadUint8())
	m.Public = r.ReadBool()
	return r.Err()
}

// KickPlayerPayload kicks or bans a client.
// Format: [code:4][client_id:packed][banned:1]
type KickPlayerPayload struct {
	Code     int32
	ClientID int32
	Banned   bool
}

func (m *KickPlayerPayload) Tag() RootTag { return RootKickPlayer }

func (m *KickPlayerPayload) Serialize(w *Writer) {
	w.WriteInt32(m.Code)
	w.WritePackedInt32(m.ClientID)
	w.WriteBool(m.Banned)
}

func (m *KickPlayerPayload) Deserialize(r *Reader) error {
	m.Code = r.ReadInt32()
	m.ClientID = r.ReadPackedInt32()
	m.Banned = r.ReadBool()
	return r.Err()
}

// RemovePlayerPayload tells everyone a client left and who hosts now.
// Format: [code:4][client_id:4][host_id:4][reason:1]
type RemovePlayerPayload struct {
	Code     int32
	ClientID int32
	HostID   int32
	Reason   DisconnectReason
}

func (m *RemovePlayerPayload) Tag() RootTag { return RootRemovePlayer }

func (m *RemovePlayerPayload) Serialize(w *Writer) {
	w.WriteInt32(m.Code)
	w.WriteInt32(m.ClientID)
	w.WriteInt32(m.HostID)
	w.WriteUint8(byte(m.Reason))
}

func (m *RemovePlayerPayload) Deserialize(r *Reader) error {
	m.Code = r.ReadInt32()
	m.ClientID = r.ReadInt32()
	m.HostID = r.ReadInt32()
	m.Reason = DisconnectReason(r.ReadUint8())
	return r.Err()
}

// NewRootMessage returns an empty root message for a tag.
func NewRootMessage(tag RootTag) (RootMessage, error) {
	switch tag {
	case RootGameData:
		return &GameDataPayload{}, nil
	case RootGameDataTo:
		return &GameDataToPayload{}, nil
	case RootStartGame:
		return &StartGamePayload{}, nil
	case RootEndGame:
		return &EndGamePayload{}, nil
	case RootAlterGame:
		return &AlterGamePayload{}, nil
	case RootKickPlayer:
		return &KickPlayerPayload{}, nil
	case RootRemovePlayer:
		return &RemovePlayerPayload{}, nil
	default:
		return nil, fmt.Errorf("root tag 0x%02X: %w", byte(tag), ErrUnknownTag)
	}
}

// EncodeRoot frames root messages into one packet body.
func EncodeRoot(messages ...RootMessage) []byte {
	w := NewWriter()
	for _, m := range messages {
		w.Begin(byte(m.Tag()))
		m.Serialize(w)
		w.End()
	}
	return w.Copy()
}

// DecodeRoot parses every framed root message in data. Unknown tags are
// skipped.
func DecodeRoot(data []byte) ([]RootMessage, error) {
	var out []RootMessage
	err := NewReader(data).Messages(func(tag byte, sub *Reader) error {
		msg, err := NewRootMessage(RootTag(tag))
		if err != nil {
			return nil
		}
		if err := msg.Deserialize(sub); err != nil {
			return fmt.Errorf("failed to decode root message 0x%02X: %w", tag, err)
		}
		out = append(out, msg)
		return nil
	})
	return out, err
}

// EncodeBatch frames one flushed tick: the game-data messages wrapped for
// everyone (recipient < 0) or for a single client, followed by any root
// payloads. An empty message list omits the game-data wrapper.
func EncodeBatch(code, recipient int32, messages []GameDataMessage, payloads []RootMessage) []byte {
	out := make([]RootMessage, 0, len(payloads)+1)
	if len(messages) > 0 {
		if recipient < 0 {
			out = append(out, &GameDataPayload{Code: code, Messages: messages})
		} else {
			out = append(out, &GameDataToPayload{Code: code, Recipient: recipient, Messages: messages})
		}
	}
	out = append(out, payloads...)
	return EncodeRoot(out...)
}
