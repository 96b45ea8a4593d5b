package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/skeld-project/skeld/internal/protocol"
)

// Register installs the room's wire handlers on d.
func (r *Room) Register(d *protocol.Dispatcher) {
	gameData := func(ctx context.Context, msg protocol.GameDataMessage, sender int32) error {
		return r.HandleGameData(msg, sender)
	}
	for _, tag := range []protocol.GameDataTag{
		protocol.TagData,
		protocol.TagRpc,
		protocol.TagSpawn,
		protocol.TagDespawn,
		protocol.TagSceneChange,
		protocol.TagReady,
		protocol.TagChangeSettings,
	} {
		d.OnGameData(tag, gameData)
	}

	root := func(ctx context.Context, msg protocol.RootMessage, sender int32) error {
		return r.HandleRoot(msg, sender)
	}
	for _, tag := range []protocol.RootTag{
		protocol.RootAlterGame,
		protocol.RootStartGame,
		protocol.RootEndGame,
		protocol.RootRemovePlayer,
		protocol.RootKickPlayer,
	} {
		d.OnRoot(tag, root)
	}
}

// HandleGameData applies one game-data message received from sender.
// Messages naming unknown net ids or players are ignored.
func (r *Room) HandleGameData(msg protocol.GameDataMessage, sender int32) error {
	if r.destroyed {
		return ErrRoomDestroyed
	}

	switch m := msg.(type) {
	case *protocol.DataMessage:
		c, ok := r.netObjects[m.NetID]
		if !ok {
			r.logger.Debug().Uint32("net_id", m.NetID).Msg("data for unknown net id")
			return nil
		}
		c.Deserialize(protocol.NewReader(m.Data), false)

	case *protocol.RpcMessage:
		r.handleRpc(m, sender)

	case *protocol.SpawnMessage:
		if m.OwnerID != RoomEntityID && r.players[m.OwnerID] == nil {
			r.HandleJoin(m.OwnerID)
		}
		_, err := r.SpawnPrefab(m.SpawnType, m.OwnerID, m.Flags, m.Components, false)
		if errors.Is(err, ErrUnknownSpawnType) || errors.Is(err, ErrUnknownOwner) {
			r.logger.Debug().Err(err).Msg("ignoring spawn")
			return nil
		}
		return err

	case *protocol.DespawnMessage:
		c, ok := r.netObjects[m.NetID]
		if !ok {
			r.logger.Debug().Uint32("net_id", m.NetID).Msg("despawn of unknown net id")
			return nil
		}
		r.DespawnComponent(c)

	case *protocol.SceneChangeMessage:
		p := r.players[m.ClientID]
		if p == nil {
			return nil
		}
		r.handleSceneChange(p, m.Scene)

	case *protocol.ReadyMessage:
		if p := r.players[m.ClientID]; p != nil {
			p.SetReady()
		}

	case *protocol.ChangeSettingsMessage:
		r.SetSettings(m.Settings)

	default:
		r.logger.Trace().Uint8("tag", uint8(msg.Tag())).Msg("unhandled game data message")
	}
	return nil
}

// handleRpc decodes and applies one call. A malformed call or a panic in
// its handler is logged and dropped.
func (r *Room) handleRpc(m *protocol.RpcMessage, sender int32) {
	c, ok := r.netObjects[m.NetID]
	if !ok {
		r.logger.Debug().Uint32("net_id", m.NetID).Str("call", m.Call.String()).Msg("rpc for unknown net id")
		return
	}
	rpc, err := protocol.ParseRpc(m)
	if err != nil {
		r.logger.Warn().Err(err).Uint32("net_id", m.NetID).Msg("dropping malformed rpc")
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn().
				Uint32("net_id", m.NetID).
				Str("call", m.Call.String()).
				Int32("sender", sender).
				Str("panic", fmt.Sprint(rec)).
				Msg("rpc handler panicked")
		}
	}()
	c.HandleRpc(rpc, sender)
}

// HandleRoot applies one root-level message.
func (r *Room) HandleRoot(msg protocol.RootMessage, sender int32) error {
	if r.destroyed {
		return ErrRoomDestroyed
	}

	switch m := msg.(type) {
	case *protocol.AlterGamePayload:
		if m.Alter != protocol.AlterGameChangePrivacy {
			return nil
		}
		if m.Public {
			r.SetPrivacy(PrivacyPublic)
		} else {
			r.SetPrivacy(PrivacyPrivate)
		}

	case *protocol.StartGamePayload:
		if err := r.HandleStart(); err != nil && !errors.Is(err, ErrGameStarted) {
			return err
		}

	case *protocol.EndGamePayload:
		r.HandleEnd(m.Reason)

	case *protocol.RemovePlayerPayload:
		r.HandleLeave(m.ClientID)
		if !r.authoritative && m.HostID != 0 {
			r.SetHost(m.HostID)
		}

	case *protocol.KickPlayerPayload:
		if p := r.players[m.ClientID]; p != nil {
			r.HandleLeave(m.ClientID)
		}

	case *protocol.GameDataPayload:
		for _, inner := range m.Messages {
			if err := r.HandleGameData(inner, sender); err != nil {
				return err
			}
		}

	case *protocol.GameDataToPayload:
		if m.Recipient != r.clientID && !r.authoritative {
			return nil
		}
		for _, inner := range m.Messages {
			if err := r.HandleGameData(inner, sender); err != nil {
				return err
			}
		}
	}
	return nil
}
