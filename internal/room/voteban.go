package room

import (
	"slices"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/events"
	"github.com/skeld-project/skeld/internal/protocol"
)

// KickVotesNeeded is the number of distinct voters that kick a player.
const KickVotesNeeded = 3

// VoteBanSystem collects lobby kick votes by client id.
//
// Format: [count:1][count * (target:int32, 3 * voter:packed)]
// An empty voter slot is written as 0.
type VoteBanSystem struct {
	NetObject
	votes map[int32][KickVotesNeeded]int32
}

func newVoteBanSystem(r *Room, spawnType content.SpawnType, netID uint32, ownerID int32, flags protocol.SpawnFlag) Networkable {
	return &VoteBanSystem{
		NetObject: newNetObject(r, spawnType, netID, ownerID, flags),
		votes:     make(map[int32][KickVotesNeeded]int32),
	}
}

// Voters returns the client ids that voted to kick target.
func (v *VoteBanSystem) Voters(target int32) []int32 {
	var out []int32
	for _, voter := range v.votes[target] {
		if voter != 0 {
			out = append(out, voter)
		}
	}
	return out
}

// AddVote records voter's vote to kick target. The host kicks the target
// once enough distinct voters agree; a client forwards the vote.
func (v *VoteBanSystem) AddVote(voter, target int32) {
	if voter == target || voter == 0 || target == 0 {
		return
	}
	if !v.IsHost() {
		v.sendRpc(&protocol.AddVoteRpc{VoterClientID: voter, TargetClientID: target})
		return
	}

	slots := v.votes[target]
	free := -1
	for i, existing := range slots {
		if existing == voter {
			return
		}
		if existing == 0 && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return
	}

	ev := events.Emit(v.emitter, &KickVoteEvent{Voter: voter, Target: target})
	if ev.Reverted() {
		return
	}
	slots[free] = voter
	v.votes[target] = slots
	v.MarkDirty()

	if free == KickVotesNeeded-1 {
		delete(v.votes, target)
		v.room.logger.Info().Int32("client_id", target).Msg("player kicked by vote")
		if err := v.room.KickPlayer(target, false); err != nil {
			v.room.logger.Warn().Err(err).Msg("failed to kick player")
		}
	}
}

// RemovePlayer drops every vote for or by a client.
func (v *VoteBanSystem) RemovePlayer(clientID int32) {
	changed := false
	if _, ok := v.votes[clientID]; ok {
		delete(v.votes, clientID)
		changed = true
	}
	for target, slots := range v.votes {
		kept := [KickVotesNeeded]int32{}
		n := 0
		for _, voter := range slots {
			if voter != 0 && voter != clientID {
				kept[n] = voter
				n++
			}
		}
		if kept != slots {
			v.votes[target] = kept
			changed = true
		}
	}
	if changed {
		v.MarkDirty()
	}
}

func (v *VoteBanSystem) Serialize(w *protocol.Writer, spawn bool) bool {
	targets := make([]int32, 0, len(v.votes))
	for target := range v.votes {
		targets = append(targets, target)
	}
	slices.Sort(targets)

	w.WriteUint8(uint8(len(targets)))
	for _, target := range targets {
		w.WriteInt32(target)
		for _, voter := range v.votes[target] {
			w.WritePackedInt32(voter)
		}
	}
	return true
}

func (v *VoteBanSystem) Deserialize(r *protocol.Reader, spawn bool) {
	clear(v.votes)
	n := int(r.ReadUint8())
	for i := 0; i < n && r.Err() == nil; i++ {
		target := r.ReadInt32()
		var slots [KickVotesNeeded]int32
		for j := range slots {
			slots[j] = r.ReadPackedInt32()
		}
		v.votes[target] = slots
	}
}

func (v *VoteBanSystem) HandleRpc(rpc protocol.Rpc, sender int32) {
	if c, ok := rpc.(*protocol.AddVoteRpc); ok && v.IsHost() {
		v.AddVote(c.VoterClientID, c.TargetClientID)
	}
}
