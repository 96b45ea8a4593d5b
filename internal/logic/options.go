package logic

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/skeld-project/skeld/internal/content"
	"github.com/skeld-project/skeld/internal/protocol"
)

// ClampOptions forces every option into the range the client accepts.
func ClampOptions(o protocol.GameOptions) protocol.GameOptions {
	o.Version = protocol.GameOptionsVersion
	o.MaxPlayers = clamp(o.MaxPlayers, 4, 15)
	if !o.Map.Valid() {
		o.Map = content.MapTheSkeld
	}
	o.PlayerSpeed = clamp(o.PlayerSpeed, 0.5, 3)
	o.CrewmateVision = clamp(o.CrewmateVision, 0.25, 5)
	o.ImpostorVision = clamp(o.ImpostorVision, 0.25, 5)
	o.KillCooldown = clamp(o.KillCooldown, 10, 60)
	o.CommonTasks = clamp(o.CommonTasks, 0, 2)
	o.LongTasks = clamp(o.LongTasks, 0, 3)
	o.ShortTasks = clamp(o.ShortTasks, 0, 5)
	o.EmergencyMeetings = clamp(o.EmergencyMeetings, 0, 9)
	o.Impostors = clamp(o.Impostors, 1, 3)
	o.KillDistance = clamp(o.KillDistance, protocol.KillDistanceShort, protocol.KillDistanceLong)
	o.DiscussionTime = clamp(o.DiscussionTime, 0, 120)
	o.VotingTime = clamp(o.VotingTime, 0, 300)
	o.EmergencyCooldown = clamp(o.EmergencyCooldown, 0, 60)
	o.TaskBarUpdates = clamp(o.TaskBarUpdates, protocol.TaskBarAlways, protocol.TaskBarNever)
	return o
}

func clamp[T ~uint8 | ~int32 | ~float32](v, lo, hi T) T {
	return min(max(v, lo), hi)
}

// OptionsPatch is a partial options update. Nil fields are left alone.
type OptionsPatch struct {
	MaxPlayers        *byte                    `json:"max_players,omitempty" yaml:"max_players"`
	Map               *content.MapID           `json:"map,omitempty" yaml:"map"`
	PlayerSpeed       *float32                 `json:"player_speed,omitempty" yaml:"player_speed"`
	CrewmateVision    *float32                 `json:"crewmate_vision,omitempty" yaml:"crewmate_vision"`
	ImpostorVision    *float32                 `json:"impostor_vision,omitempty" yaml:"impostor_vision"`
	KillCooldown      *float32                 `json:"kill_cooldown,omitempty" yaml:"kill_cooldown"`
	CommonTasks       *byte                    `json:"common_tasks,omitempty" yaml:"common_tasks"`
	LongTasks         *byte                    `json:"long_tasks,omitempty" yaml:"long_tasks"`
	ShortTasks        *byte                    `json:"short_tasks,omitempty" yaml:"short_tasks"`
	EmergencyMeetings *int32                   `json:"emergency_meetings,omitempty" yaml:"emergency_meetings"`
	Impostors         *byte                    `json:"impostors,omitempty" yaml:"impostors"`
	KillDistance      *protocol.KillDistance   `json:"kill_distance,omitempty" yaml:"kill_distance"`
	DiscussionTime    *int32                   `json:"discussion_time,omitempty" yaml:"discussion_time"`
	VotingTime        *int32                   `json:"voting_time,omitempty" yaml:"voting_time"`
	EmergencyCooldown *byte                    `json:"emergency_cooldown,omitempty" yaml:"emergency_cooldown"`
	ConfirmEjects     *bool                    `json:"confirm_ejects,omitempty" yaml:"confirm_ejects"`
	VisualTasks       *bool                    `json:"visual_tasks,omitempty" yaml:"visual_tasks"`
	AnonymousVotes    *bool                    `json:"anonymous_votes,omitempty" yaml:"anonymous_votes"`
	TaskBarUpdates    *protocol.TaskBarUpdates `json:"task_bar_updates,omitempty" yaml:"task_bar_updates"`
}

// Apply returns o with every set field of the patch copied over, clamped.
// A patch that changes anything clears IsDefaults.
func (p OptionsPatch) Apply(o protocol.GameOptions) protocol.GameOptions {
	before := o
	set(&o.MaxPlayers, p.MaxPlayers)
	set(&o.Map, p.Map)
	set(&o.PlayerSpeed, p.PlayerSpeed)
	set(&o.CrewmateVision, p.CrewmateVision)
	set(&o.ImpostorVision, p.ImpostorVision)
	set(&o.KillCooldown, p.KillCooldown)
	set(&o.CommonTasks, p.CommonTasks)
	set(&o.LongTasks, p.LongTasks)
	set(&o.ShortTasks, p.ShortTasks)
	set(&o.EmergencyMeetings, p.EmergencyMeetings)
	set(&o.Impostors, p.Impostors)
	set(&o.KillDistance, p.KillDistance)
	set(&o.DiscussionTime, p.DiscussionTime)
	set(&o.VotingTime, p.VotingTime)
	set(&o.EmergencyCooldown, p.EmergencyCooldown)
	set(&o.ConfirmEjects, p.ConfirmEjects)
	set(&o.VisualTasks, p.VisualTasks)
	set(&o.AnonymousVotes, p.AnonymousVotes)
	set(&o.TaskBarUpdates, p.TaskBarUpdates)

	o = ClampOptions(o)
	if o != before {
		o.IsDefaults = false
	}
	return o
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// presetFile is the layout of an options preset file:
//
//	presets:
//	  classic:
//	    impostors: 2
//	    map: 0
type presetFile struct {
	Presets map[string]OptionsPatch `yaml:"presets"`
}

// LoadPresets reads named option presets from a YAML file. Each preset is a
// patch over the default options.
func LoadPresets(path string) (map[string]protocol.GameOptions, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets: %w", err)
	}
	return ParsePresets(raw)
}

// ParsePresets decodes preset YAML.
func ParsePresets(raw []byte) (map[string]protocol.GameOptions, error) {
	var file presetFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %w", err)
	}

	out := make(map[string]protocol.GameOptions, len(file.Presets))
	for name, patch := range file.Presets {
		out[name] = patch.Apply(protocol.DefaultGameOptions())
	}
	return out, nil
}

// PresetNames returns the preset names in sorted order.
func PresetNames(presets map[string]protocol.GameOptions) []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
