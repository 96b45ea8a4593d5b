package server

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
	"github.com/skeld-project/skeld/internal/room"
	"github.com/skeld-project/skeld/internal/systems"
)

const (
	// longTickFactor is how many tick intervals a tick may lag before it is
	// reported.
	longTickFactor = 3
	kickGrace      = time.Second
)

// bind subscribes the instance to its room. Every listener runs on the
// runner goroutine.
func (i *Instance) bind(r *room.Room) {
	em := r.Emitter()

	events.On(em, func(e *room.PlayerJoinEvent) {
		i.dirty = true
		i.emit(events.EventPlayerJoined, events.PlayerPayload{
			Code:     i.code,
			MatchID:  i.matchID,
			ClientID: e.Player.ClientID(),
			PlayerID: -1,
		})
	})

	events.On(em, func(e *room.PlayerLeaveEvent) {
		i.dirty = true
		payload := events.PlayerPayload{
			Code:     i.code,
			MatchID:  i.matchID,
			ClientID: e.Player.ClientID(),
			PlayerID: -1,
			Name:     e.Player.Name(),
		}
		if id, ok := e.Player.PlayerID(); ok {
			payload.PlayerID = int(id)
		}
		i.emit(events.EventPlayerLeft, payload)
	})

	events.On(em, func(e *room.PlayerKickedEvent) {
		i.dirty = true
		i.logger.Info().Int32("client_id", e.Player.ClientID()).Bool("banned", e.Banned).Msg("player kicked")
		if i.transport != nil {
			i.transport.Disconnect(i.code, e.Player.ClientID(), kickGrace)
		}
	})

	events.On(em, func(*room.PlayerSetNameEvent) { i.dirty = true })
	events.On(em, func(*room.PlayerSetColorEvent) { i.dirty = true })
	events.On(em, func(*room.PlayerSetImpostorsEvent) { i.dirty = true })
	events.On(em, func(*room.PlayerExileEvent) { i.dirty = true })
	events.On(em, func(*room.HostChangeEvent) { i.dirty = true })

	events.On(em, func(*room.GameStartEvent) {
		i.dirty = true
		i.matchID = uuid.NewString()
		i.gameStartedAt = r.Now()
		i.state.StartGame(i.matchID, i.gameStartedAt)
		i.emit(events.EventGameStarted, events.GameStartedPayload{
			Code:      i.code,
			MatchID:   i.matchID,
			Map:       r.Settings().Map.String(),
			Players:   summarize(r),
			StartedAt: i.gameStartedAt,
		})
	})

	events.On(em, func(e *room.GameEndEvent) {
		i.dirty = true
		i.emit(events.EventGameEnded, events.GameEndedPayload{
			Code:    i.code,
			MatchID: i.matchID,
			Reason:  e.Reason.String(),
			Winners: e.Reason.Winners(),
			Players: e.Players,
			EndedAt: r.Now(),
		})
	})

	events.On(em, func(e *room.PlayerStartMeetingEvent) {
		i.meetingAt = r.Now()
		i.meetingBody = e.Body
		i.meetingCaller, _ = e.Player.PlayerID()
		i.state.AddMeeting()
		i.emit(events.EventMeetingStarted, events.MeetingPayload{
			Code:    i.code,
			MatchID: i.matchID,
			Caller:  i.meetingCaller,
			Body:    e.Body,
			Exiled:  -1,
		})
	})

	events.On(em, func(e *room.MeetingVotingCompleteEvent) {
		i.dirty = true
		exiled := -1
		if e.Exiled != protocol.NoExile {
			exiled = int(e.Exiled)
		}
		i.emit(events.EventMeetingEnded, events.MeetingPayload{
			Code:     i.code,
			MatchID:  i.matchID,
			Caller:   i.meetingCaller,
			Body:     i.meetingBody,
			Exiled:   exiled,
			Tie:      e.Tie,
			Duration: r.Now().Sub(i.meetingAt),
		})
	})

	events.On(em, func(e *room.PlayerMurderEvent) {
		if e.Reverted() {
			return
		}
		i.dirty = true
		i.state.AddKill()
		killer, _ := e.Player.PlayerID()
		victim, _ := e.Victim.PlayerID()
		i.emit(events.EventPlayerMurdered, events.MurderPayload{
			Code:    i.code,
			MatchID: i.matchID,
			Killer:  killer,
			Victim:  victim,
		})
	})

	events.On(em, func(e *systems.SystemSabotagedEvent) {
		i.emit(events.EventSabotage, events.SabotagePayload{
			Code:    i.code,
			MatchID: i.matchID,
			System:  e.System.String(),
		})
	})

	events.On(em, func(e *room.PrivacyChangeEvent) {
		public := e.Resolve() == room.PrivacyPublic
		i.state.SetPublic(public)
		i.emit(events.EventPrivacyChanged, events.SettingsPayload{Code: i.code, Public: public})
	})

	events.On(em, func(e *room.SettingsUpdateEvent) {
		i.state.SetSettings(e.New)
		i.emit(events.EventSettingsChanged, events.SettingsPayload{
			Code:     i.code,
			Public:   r.Privacy() == room.PrivacyPublic,
			Settings: e.New,
		})
	})

	events.On(em, func(e *room.FixedUpdateEvent) {
		if i.interval > 0 && e.Delta > longTickFactor*i.interval {
			i.emit(events.EventLongTick, events.LongTickPayload{
				Code:     i.code,
				Delta:    e.Delta,
				Interval: i.interval,
			})
		}
		i.state.SetPhase(r.Phase())
		if i.dirty {
			i.dirty = false
			i.state.ReplacePlayers(r.HostID(), playerInfos(r))
		}
	})
}

func summarize(r *room.Room) []events.PlayerSummary {
	out := make([]events.PlayerSummary, 0, len(r.Players()))
	for _, p := range r.Players() {
		out = append(out, p.Summary())
	}
	sortSummaries(out)
	return out
}

func sortSummaries(s []events.PlayerSummary) {
	sort.Slice(s, func(a, b int) bool { return s[a].ClientID < s[b].ClientID })
}

func playerInfos(r *room.Room) []PlayerInfo {
	out := make([]PlayerInfo, 0, len(r.Players()))
	for id, p := range r.Players() {
		s := p.Summary()
		info := PlayerInfo{
			ClientID: id,
			PlayerID: -1,
			Name:     s.Name,
			Color:    s.Color,
			Host:     p.IsHost(),
			Impostor: s.Impostor,
			Dead:     s.Dead,
		}
		if _, ok := p.PlayerID(); ok {
			info.PlayerID = int(s.PlayerID)
		}
		out = append(out, info)
	}
	return out
}
