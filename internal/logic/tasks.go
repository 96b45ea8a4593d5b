package logic

import (
	"math/rand/v2"
	"slices"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/protocol"
)

// AssignTasks builds the starting task list of every player. Common tasks
// are drawn once and shared; long and short tasks are drawn per player.
// Lists are ordered common, long, short.
func AssignTasks(rng *rand.Rand, m content.MapID, opts protocol.GameOptions, players []uint8) map[uint8][]uint8 {
	common := drawTasks(rng, content.TasksOfLength(m, content.TaskCommon), int(opts.CommonTasks))
	long := content.TasksOfLength(m, content.TaskLong)
	short := content.TasksOfLength(m, content.TaskShort)

	ids := slices.Clone(players)
	slices.Sort(ids)

	out := make(map[uint8][]uint8, len(ids))
	for _, id := range ids {
		list := slices.Clone(common)
		list = append(list, drawTasks(rng, long, int(opts.LongTasks))...)
		list = append(list, drawTasks(rng, short, int(opts.ShortTasks))...)
		out[id] = list
	}
	return out
}

func drawTasks(rng *rand.Rand, pool []content.Task, n int) []uint8 {
	ids := make([]uint8, len(pool))
	for i, t := range pool {
		ids[i] = t.ID
	}
	rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids[:min(n, len(ids))]
}
