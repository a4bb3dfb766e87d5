package engine

import (
	"errors"
	"math/rand"
	"sort"

	"github.com/park285/chessduel/internal/chess/uci"
)

// Candidate is one multipv line as reported by the engine.
type Candidate = uci.Candidate

var errNoCandidates = errors.New("no candidates to choose from")

// SelectCandidate draws one of the first PrimaryChoices lines using the
// preset weights, then jitters its score by up to EvalNoise centipawns.
func SelectCandidate(p Preset, lines []Candidate, r *rand.Rand) (Candidate, error) {
	if len(lines) == 0 {
		return Candidate{}, errNoCandidates
	}
	if err := ValidatePreset(p); err != nil {
		return Candidate{}, err
	}

	weights := p.CandidateWeights[:min(p.PrimaryChoices, len(lines))]
	cumulative := make([]float64, len(weights))
	var total float64
	for i, w := range weights {
		total += w
		cumulative[i] = total
	}
	if total == 0 {
		return Candidate{}, errors.New("candidate weights sum to zero")
	}

	i := sort.SearchFloat64s(cumulative, r.Float64()*total)
	if i == len(cumulative) {
		i--
	}
	choice := lines[i]
	if p.EvalNoise > 0 {
		choice.EvalCP += r.Intn(2*p.EvalNoise+1) - p.EvalNoise
	}
	return choice, nil
}
