// Package logic holds the game rules that sit above the replicated object
// graph: role selection, task assignment, option resolution and end
// conditions. Everything here works on plain values so it can be tested
// without a room.
package logic

import (
	"math/rand/v2"
	"slices"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/protocol"
)

// ImpostorCount returns how many impostors a game with the given player
// count gets under opts. The requested count is capped by the player-count
// table and always leaves at least one crewmate.
func ImpostorCount(opts protocol.GameOptions, players int) int {
	n := int(opts.Impostors)
	n = min(n, content.MaxImpostors(players))
	n = min(n, players-1)
	return max(n, 0)
}

// SelectImpostors picks count player ids from candidates. The result is
// sorted; the same rng state and candidates always give the same pick.
func SelectImpostors(rng *rand.Rand, candidates []uint8, count int) []uint8 {
	pool := slices.Clone(candidates)
	slices.Sort(pool)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })

	count = min(max(count, 0), len(pool))
	picked := pool[:count]
	slices.Sort(picked)
	return picked
}
