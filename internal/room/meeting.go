package room

import (
	"fmt"
	"slices"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/logic"
	"github.com/skeld-project/skeld/internal/protocol"
)

// Vote sentinels. Real player ids are always below VoteDead.
const (
	VoteDead        uint8 = 252
	VoteSkipped     uint8 = 253
	VoteMissed      uint8 = 254
	VoteHasNotVoted uint8 = 255
)

// PlayerVoteState is one player's slot in a meeting.
//
// Format: [voted_for:1][did_report:1]
type PlayerVoteState struct {
	PlayerID  uint8
	VotedFor  uint8
	DidReport bool
}

// SetVotedFor records a vote for a real player. It panics on an id in the
// sentinel range; use Skip, SetDead or Clear for those states.
func (s *PlayerVoteState) SetVotedFor(target uint8) {
	if target >= VoteDead {
		panic(fmt.Sprintf("room: vote target %d collides with a vote sentinel", target))
	}
	s.VotedFor = target
}

func (s *PlayerVoteState) Skip()    { s.VotedFor = VoteSkipped }
func (s *PlayerVoteState) SetDead() { s.VotedFor = VoteDead }
func (s *PlayerVoteState) Clear()   { s.VotedFor = VoteHasNotVoted }

func (s *PlayerVoteState) IsDead() bool  { return s.VotedFor == VoteDead }
func (s *PlayerVoteState) Skipped() bool { return s.VotedFor == VoteSkipped }
func (s *PlayerVoteState) HasVoted() bool {
	return s.VotedFor != VoteHasNotVoted && s.VotedFor != VoteDead
}
func (s *PlayerVoteState) VotedPlayer() bool { return s.VotedFor < VoteDead }

func (s *PlayerVoteState) Serialize(w *protocol.Writer) {
	w.WriteUint8(s.VotedFor)
	w.WriteBool(s.DidReport)
}

func (s *PlayerVoteState) Deserialize(r *protocol.Reader) {
	s.VotedFor = r.ReadUint8()
	s.DidReport = r.ReadBool()
}

// MeetingHud collects votes while a meeting runs. It is spawned when a
// meeting starts and despawned when it closes.
//
// Spawn format: [count:packed][count * (player_id:1, state)]
// Delta format: [dirty_mask:packed][state for each set bit, ascending]
type MeetingHud struct {
	NetObject
	states    map[uint8]*PlayerVoteState
	dirtyMask uint32
	resolved  bool
	tie       bool
	exiled    uint8
	closer    *Timer
}

func newMeetingHud(r *Room, spawnType content.SpawnType, netID uint32, ownerID int32, flags protocol.SpawnFlag) Networkable {
	return &MeetingHud{
		NetObject: newNetObject(r, spawnType, netID, ownerID, flags),
		states:    make(map[uint8]*PlayerVoteState),
		exiled:    protocol.NoExile,
	}
}

func (m *MeetingHud) Dirty() bool { return m.dirtyMask != 0 }
func (m *MeetingHud) ClearDirty() { m.dirtyMask = 0 }

// deltaPlayerLimit bounds the player ids a delta can carry: the dirty mask
// is one packed uint32. Rooms hold at most 15 players, so ids stay below
// it; a state past the limit only reaches clients in a spawn.
const deltaPlayerLimit = 32

func (m *MeetingHud) markDirty(id uint8) {
	if id >= deltaPlayerLimit {
		m.room.logger.Debug().Uint8("player_id", id).Msg("vote state outside delta mask")
		return
	}
	m.dirtyMask |= 1 << id
}

// State returns the vote slot of a player, or nil.
func (m *MeetingHud) State(id uint8) *PlayerVoteState { return m.states[id] }

// Resolved reports whether voting has finished.
func (m *MeetingHud) Resolved() bool { return m.resolved }

// Outcome returns the exiled player id (NoExile when none) and whether the
// vote tied.
func (m *MeetingHud) Outcome() (exiled uint8, tie bool) { return m.exiled, m.tie }

func (m *MeetingHud) sortedIDs() []uint8 {
	ids := make([]uint8, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// populate fills one slot per known player; dead players start as dead.
func (m *MeetingHud) populate(reporter uint8) {
	if m.room.GameData == nil {
		return
	}
	for _, info := range m.room.GameData.Players() {
		s := &PlayerVoteState{PlayerID: info.PlayerID, VotedFor: VoteHasNotVoted}
		if info.IsDead() || info.IsDisconnected() {
			s.SetDead()
		}
		s.DidReport = info.PlayerID == reporter
		m.states[info.PlayerID] = s
	}
}

// CastVote records voter's vote for suspect, or a skip when suspect is
// VoteSkipped. A client forwards the vote to the host.
func (m *MeetingHud) CastVote(voter, suspect uint8) {
	if m.resolved {
		return
	}
	if !m.IsHost() {
		m.sendRpc(&protocol.CastVoteRpc{VoterID: voter, SuspectID: suspect})
		return
	}

	s, ok := m.states[voter]
	if !ok || s.IsDead() || s.HasVoted() {
		return
	}
	if suspect != VoteSkipped {
		if target, ok := m.states[suspect]; !ok || target.IsDead() {
			return
		}
	}

	ev := events.Emit(m.emitter, &MeetingVoteEvent{Mutation: events.NewMutation(VoteHasNotVoted, suspect), Voter: voter})
	next := ev.Resolve()
	switch {
	case next == VoteHasNotVoted:
		return
	case next == VoteSkipped:
		s.Skip()
	case next < VoteDead:
		s.SetVotedFor(next)
	default:
		return
	}
	m.markDirty(voter)

	if p := m.room.GetPlayerByPlayerID(voter); p != nil {
		if c := p.Control(); c != nil {
			c.sendRpc(&protocol.SendChatNoteRpc{PlayerID: voter, Note: protocol.ChatNoteDidVote})
		}
	}
	m.checkComplete()
}

// ClearVote undoes a vote on the host, e.g. when the target left.
func (m *MeetingHud) ClearVote(voter uint8) {
	if !m.IsHost() || m.resolved {
		return
	}
	s, ok := m.states[voter]
	if !ok || !s.HasVoted() {
		return
	}
	s.Clear()
	m.markDirty(voter)
	events.Emit(m.emitter, &MeetingClearVoteEvent{Voter: voter})
	if p := m.room.GetPlayerByPlayerID(voter); p != nil {
		m.sendRpcTo(p.clientID, &protocol.ClearVoteRpc{})
	}
}

// handleLeave marks a leaving player dead and clears votes cast for them.
func (m *MeetingHud) handleLeave(playerID uint8) {
	if s, ok := m.states[playerID]; ok && !s.IsDead() {
		s.SetDead()
		m.markDirty(playerID)
	}
	for _, id := range m.sortedIDs() {
		if m.states[id].VotedFor == playerID {
			m.ClearVote(id)
		}
	}
	if m.IsHost() {
		m.checkComplete()
	}
}

func (m *MeetingHud) checkComplete() {
	if m.resolved || len(m.states) == 0 {
		return
	}
	for _, s := range m.states {
		if !s.IsDead() && !s.HasVoted() {
			return
		}
	}
	m.resolve()
}

// tally returns the exiled id and whether the leading count tied. Skips
// compete as a candidate; a skip or tie exiles nobody.
func tally(states map[uint8]*PlayerVoteState) (exiled uint8, tie bool) {
	counts := make(map[uint8]int)
	for _, s := range states {
		if s.VotedPlayer() || s.Skipped() {
			counts[s.VotedFor]++
		}
	}
	candidates := make([]uint8, 0, len(counts))
	for id := range counts {
		candidates = append(candidates, id)
	}
	slices.Sort(candidates)

	leader, best := protocol.NoExile, 0
	for _, id := range candidates {
		switch n := counts[id]; {
		case n > best:
			leader, best, tie = id, n, false
		case n == best:
			tie = true
		}
	}
	if tie || leader == VoteSkipped {
		return protocol.NoExile, tie
	}
	return leader, false
}

func (m *MeetingHud) resolve() {
	m.resolved = true
	m.exiled, m.tie = tally(m.states)

	states := make([]protocol.VoterState, 0, len(m.states))
	for _, id := range m.sortedIDs() {
		states = append(states, protocol.VoterState{PlayerID: id, VotedFor: m.states[id].VotedFor})
	}
	m.sendRpc(&protocol.VotingCompleteRpc{States: states, ExiledID: m.exiled, Tie: m.tie})
	events.Emit(m.emitter, &MeetingVotingCompleteEvent{States: states, Exiled: m.exiled, Tie: m.tie})

	m.room.logger.Info().Uint8("exiled", m.exiled).Bool("tie", m.tie).Msg("voting complete")
	m.closer = m.room.After(m.room.meetingCloseDelay, func() {
		m.closer = nil
		m.Close()
	})
}

// Close ends the meeting: the exiled player dies, clients are told to
// close the hud and the hud despawns.
func (m *MeetingHud) Close() {
	if !m.Spawned() {
		return
	}
	if m.IsHost() {
		if m.exiled != protocol.NoExile {
			if p := m.room.GetPlayerByPlayerID(m.exiled); p != nil {
				if c := p.Control(); c != nil {
					c.exile()
				}
			}
		}
		m.sendRpc(&protocol.CloseRpc{})
	}
	events.Emit(m.emitter, &MeetingCloseEvent{Meeting: m})
	m.room.DespawnComponent(m)
	if m.IsHost() && m.exiled != protocol.NoExile {
		m.room.checkEndConditions(logic.CauseExile)
	}
}

// Despawned cancels a pending auto-close.
func (m *MeetingHud) Despawned() {
	m.closer.Stop()
	m.closer = nil
}

func (m *MeetingHud) Serialize(w *protocol.Writer, spawn bool) bool {
	if spawn {
		ids := m.sortedIDs()
		w.WritePackedUint32(uint32(len(ids)))
		for _, id := range ids {
			w.WriteUint8(id)
			m.states[id].Serialize(w)
		}
		return true
	}
	if m.dirtyMask == 0 {
		return false
	}
	w.WritePackedUint32(m.dirtyMask)
	for id := uint8(0); id < deltaPlayerLimit; id++ {
		if m.dirtyMask&(1<<id) == 0 {
			continue
		}
		s, ok := m.states[id]
		if !ok {
			s = &PlayerVoteState{PlayerID: id, VotedFor: VoteHasNotVoted}
		}
		s.Serialize(w)
	}
	return true
}

func (m *MeetingHud) Deserialize(r *protocol.Reader, spawn bool) {
	if spawn {
		clear(m.states)
		n := r.ReadPackedUint32()
		for i := uint32(0); i < n && r.Err() == nil; i++ {
			s := &PlayerVoteState{PlayerID: r.ReadUint8()}
			s.Deserialize(r)
			m.states[s.PlayerID] = s
		}
		return
	}
	mask := r.ReadPackedUint32()
	for id := uint8(0); id < deltaPlayerLimit && r.Err() == nil; id++ {
		if mask&(1<<id) == 0 {
			continue
		}
		s, ok := m.states[id]
		if !ok {
			s = &PlayerVoteState{PlayerID: id}
			m.states[id] = s
		}
		s.Deserialize(r)
	}
}

func (m *MeetingHud) HandleRpc(rpc protocol.Rpc, sender int32) {
	switch c := rpc.(type) {
	case *protocol.CastVoteRpc:
		if !m.IsHost() {
			return
		}
		if c.SuspectID >= VoteDead && c.SuspectID != VoteSkipped {
			return
		}
		m.CastVote(c.VoterID, c.SuspectID)

	case *protocol.ClearVoteRpc:
		if me := m.room.Me(); me != nil {
			if id, ok := me.PlayerID(); ok {
				if s, ok := m.states[id]; ok {
					s.Clear()
					events.Emit(m.emitter, &MeetingClearVoteEvent{Voter: id})
				}
			}
		}

	case *protocol.VotingCompleteRpc:
		if m.IsHost() {
			return
		}
		for _, vs := range c.States {
			if s, ok := m.states[vs.PlayerID]; ok {
				s.VotedFor = vs.VotedFor
			}
		}
		m.resolved = true
		m.exiled, m.tie = c.ExiledID, c.Tie
		events.Emit(m.emitter, &MeetingVotingCompleteEvent{States: c.States, Exiled: c.ExiledID, Tie: c.Tie})

	case *protocol.CloseRpc:
		if !m.IsHost() {
			events.Emit(m.emitter, &MeetingCloseEvent{Meeting: m})
			m.room.DespawnComponent(m)
		}
	}
}
