package progression

import (
	"os"

	"gopkg.in/yaml.v3"
)

// QuestDef is one quest definition loaded from the quests file.
type QuestDef struct {
	ID     string `yaml:"id"`
	Title  string `yaml:"title"`
	Metric string `yaml:"metric"`
	Target int    `yaml:"target"`
}

// Quest metrics the orchestrator can feed.
const (
	MetricMatchesPlayed = "matches_played"
	MetricMatchesWon    = "matches_won"
	MetricWageredWins   = "wagered_wins"
	MetricBlitzWins     = "blitz_wins"
	MetricFastWins      = "fast_wins" // win in at most 6 moves total
)

// MatchFacts is what a finished match contributes to quest progress.
type MatchFacts struct {
	Outcome   string // "win", "loss", "draw"
	Role      string
	Blitz     bool
	Wagered   bool
	MoveCount int
}

var defaultQuests = []QuestDef{
	{ID: "daily_play_3", Title: "Play 3 matches", Metric: MetricMatchesPlayed, Target: 3},
	{ID: "daily_win_1", Title: "Win a match", Metric: MetricMatchesWon, Target: 1},
	{ID: "high_roller", Title: "Win 5 wagered matches", Metric: MetricWageredWins, Target: 5},
	{ID: "speed_demon", Title: "Win 3 blitz matches", Metric: MetricBlitzWins, Target: 3},
	{ID: "quick_finish", Title: "Win within 6 moves", Metric: MetricFastWins, Target: 1},
}

// LoadQuests reads quest definitions from a yaml file; an empty path falls
// back to the built-in set.
func LoadQuests(path string) ([]QuestDef, error) {
	if path == "" {
		return defaultQuests, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var defs struct {
		Quests []QuestDef `yaml:"quests"`
	}
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, err
	}
	if len(defs.Quests) == 0 {
		return defaultQuests, nil
	}
	return defs.Quests, nil
}

// QuestDeltas maps match facts onto per-quest progress increments.
func QuestDeltas(defs []QuestDef, facts MatchFacts) map[string]int {
	out := map[string]int{}
	for _, def := range defs {
		if questMetricHit(def.Metric, facts) {
			out[def.ID] = 1
		}
	}
	return out
}

func questMetricHit(metric string, facts MatchFacts) bool {
	switch metric {
	case MetricMatchesPlayed:
		return true
	case MetricMatchesWon:
		return facts.Outcome == "win"
	case MetricWageredWins:
		return facts.Outcome == "win" && facts.Wagered
	case MetricBlitzWins:
		return facts.Outcome == "win" && facts.Blitz
	case MetricFastWins:
		return facts.Outcome == "win" && facts.MoveCount <= 6
	default:
		return false
	}
}
