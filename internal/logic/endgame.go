package logic

import (
	"github.com/skeld-project/skeld/internal/protocol"
)

// PlayerState is the slice of a player record the end conditions look at.
type PlayerState struct {
	Impostor     bool
	Dead         bool
	Disconnected bool
	Tasks        int
	Done         int
}

// EndCondition is a satisfied reason for the game to end.
type EndCondition struct {
	Name   string
	Reason protocol.GameOverReason
}

// Cause tells the evaluator what last changed the player table.
type Cause int

const (
	CauseTick Cause = iota
	CauseKill
	CauseExile
	CauseDisconnect
)

// CheckEnd returns every end condition the player table satisfies, most
// decisive first. An empty table never ends a game, and a table without a
// single impostor only ends on tasks.
func CheckEnd(players []PlayerState, cause Cause) []EndCondition {
	if len(players) == 0 {
		return nil
	}

	var (
		impostors                 int
		aliveImpostors, aliveCrew int
		goneImpostors, goneCrew   int
		tasks, done               int
	)
	for _, p := range players {
		if p.Impostor {
			impostors++
		}
		switch {
		case p.Disconnected && p.Impostor:
			goneImpostors++
		case p.Disconnected:
			goneCrew++
		case p.Dead:
		case p.Impostor:
			aliveImpostors++
		default:
			aliveCrew++
		}
		if !p.Impostor && !p.Disconnected {
			tasks += p.Tasks
			done += p.Done
		}
	}

	var out []EndCondition
	switch {
	case impostors == 0:
	case aliveImpostors == 0 && goneImpostors > 0 && cause == CauseDisconnect:
		out = append(out, EndCondition{Name: "impostors disconnected", Reason: protocol.GameOverImpostorDisconnect})
	case aliveImpostors == 0:
		out = append(out, EndCondition{Name: "impostors ejected", Reason: protocol.GameOverHumansByVote})
	case aliveCrew == 0 && goneCrew > 0 && cause == CauseDisconnect:
		out = append(out, EndCondition{Name: "crewmates disconnected", Reason: protocol.GameOverHumansDisconnect})
	case aliveImpostors >= aliveCrew && cause == CauseExile:
		out = append(out, EndCondition{Name: "impostors outnumber", Reason: protocol.GameOverImpostorByVote})
	case aliveImpostors >= aliveCrew:
		out = append(out, EndCondition{Name: "impostors outnumber", Reason: protocol.GameOverImpostorByKill})
	}

	if tasks > 0 && done >= tasks {
		out = append(out, EndCondition{Name: "tasks complete", Reason: protocol.GameOverHumansByTask})
	}
	return out
}
