package engine

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/park285/chessduel/internal/chess/uci"
)

// Preset is a playing strength for the external engine. Weaker presets ask
// for several lines and draw among the first PrimaryChoices of them.
type Preset struct {
	Name             string
	SkillLevel       int
	Threads          int
	HashMB           int
	MoveTimeMillis   int
	NodeCap          int
	DepthCap         int
	MultiPV          int
	PrimaryChoices   int
	CandidateWeights []float64
	EvalNoise        int
	Elo              int
}

// rung is one step of the strength ladder; level N is ladder[N-1].
type rung struct {
	skill, hash, moveMS, depth, elo, noise int
	weights                                []float64
}

var ladder = []rung{
	{skill: 0, hash: 16, moveMS: 20, depth: 5, elo: 600, noise: 80, weights: []float64{0.5, 0.3, 0.2}},
	{skill: 0, hash: 16, moveMS: 60, depth: 6, elo: 700, noise: 60, weights: []float64{0.6, 0.3, 0.1}},
	{skill: 1, hash: 24, moveMS: 80, depth: 8, elo: 800, noise: 45, weights: []float64{0.7, 0.2, 0.1}},
	{skill: 3, hash: 32, moveMS: 140, depth: 10, elo: 1000, noise: 30, weights: []float64{0.65, 0.25, 0.1}},
	{skill: 7, hash: 48, moveMS: 200, depth: 12, elo: 1200, noise: 25, weights: []float64{0.7, 0.2, 0.1}},
	{skill: 11, hash: 64, moveMS: 300, depth: 16, elo: 1400, noise: 10, weights: []float64{0.8, 0.2}},
	{skill: 16, hash: 96, moveMS: 500, depth: 20, elo: 1650, noise: 5, weights: []float64{0.85, 0.15}},
	{skill: 20, hash: 128, moveMS: 1000, depth: 30, weights: []float64{1}},
}

var presetAliases = map[string]string{
	"":             "level1",
	"beginner":     "level1",
	"intermediate": "level5",
	"advanced":     "level7",
	"master":       "level8",
	"max":          "level8",
}

var presets = buildPresets()

func buildPresets() map[string]Preset {
	out := make(map[string]Preset, len(ladder))
	for i, r := range ladder {
		p := Preset{
			Name:             fmt.Sprintf("level%d", i+1),
			SkillLevel:       r.skill,
			Threads:          2,
			HashMB:           r.hash,
			MoveTimeMillis:   r.moveMS,
			DepthCap:         r.depth,
			CandidateWeights: r.weights,
			PrimaryChoices:   len(r.weights),
			EvalNoise:        r.noise,
			Elo:              r.elo,
		}
		// Three-way draws still look at five lines so the spread has depth.
		p.MultiPV = p.PrimaryChoices
		if p.PrimaryChoices == 3 {
			p.MultiPV = 5
		}
		if i == len(ladder)-1 {
			p.Threads = 6
		}
		out[p.Name] = p
	}
	return out
}

// GetPreset resolves a level name or alias. The returned weights are a copy.
func GetPreset(name string) (Preset, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := presetAliases[key]; ok {
		key = alias
	}
	p, ok := presets[key]
	if !ok {
		return Preset{}, fmt.Errorf("unknown engine preset: %s", name)
	}
	p.CandidateWeights = slices.Clone(p.CandidateWeights)
	return p, nil
}

func ValidatePreset(p Preset) error {
	if err := options(p, false).Validate(); err != nil {
		return fmt.Errorf("preset %s: %w", p.Name, err)
	}
	switch {
	case p.Threads <= 0:
		return fmt.Errorf("threads must be > 0: %d", p.Threads)
	case p.PrimaryChoices <= 0 || p.PrimaryChoices > p.MultiPV:
		return fmt.Errorf("primary choices %d must be within 1..multipv (%d)", p.PrimaryChoices, p.MultiPV)
	case len(p.CandidateWeights) < p.PrimaryChoices:
		return fmt.Errorf("candidate weights (%d) must cover primary choices (%d)", len(p.CandidateWeights), p.PrimaryChoices)
	case min(p.MoveTimeMillis, p.NodeCap, p.DepthCap, p.EvalNoise) < 0:
		return fmt.Errorf("preset %s has negative limits", p.Name)
	}
	var sum float64
	for i, w := range p.CandidateWeights[:p.PrimaryChoices] {
		if w < 0 {
			return fmt.Errorf("candidate weight at index %d is negative: %f", i, w)
		}
		sum += w
	}
	if sum == 0 {
		return errors.New("candidate weights sum to zero")
	}
	return nil
}

// BuildGoCommand renders the go command for p. A positive think budget
// replaces the preset move time.
func BuildGoCommand(p Preset, think time.Duration) ([]string, error) {
	if err := ValidatePreset(p); err != nil {
		return nil, err
	}
	args, err := uci.GoArgs(limits(p, think))
	if err != nil {
		return nil, fmt.Errorf("preset %s: %w", p.Name, err)
	}
	return args, nil
}

func limits(p Preset, think time.Duration) uci.Limits {
	l := uci.Limits{Depth: p.DepthCap, MoveTimeMillis: p.MoveTimeMillis, NodeCap: p.NodeCap}
	if think > 0 {
		l.MoveTimeMillis = int(think / time.Millisecond)
	}
	return l
}

func options(p Preset, chess960 bool) uci.Options {
	return uci.Options{
		Threads:    p.Threads,
		SkillLevel: p.SkillLevel,
		HashMB:     p.HashMB,
		MultiPV:    p.MultiPV,
		Elo:        p.Elo,
		Chess960:   chess960,
	}
}
