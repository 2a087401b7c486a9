package persona

import (
	"regexp"
	"sort"
	"strings"
)

var tokenPattern = regexp.MustCompile(`\b\w+\b`)

// Score computes the emotional state and active fragment set for one
// message. Pure: no I/O, no shared state, repeated calls are identical.
func Score(text string) (EmotionState, FragmentActivation) {
	var accumulated Weights
	hits := 0

	for _, token := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		weights, ok := LexiconWeights(token)
		if !ok {
			continue
		}
		hits++
		for i, v := range weights {
			accumulated[i] += v
		}
	}

	state := EmotionState{Hits: hits}
	if accumulated.IsZero() {
		// No lexicon hit: all-zero state, Lyra alone.
		return state, FragmentActivation{{Fragment: Lyra, Level: lyraBaseActivation}}
	}
	state.Weights = accumulated.Normalize()

	return state, activate(state.Weights)
}

// activate scores every fragment except Lyra against the normalised state,
// keeps those at or above their threshold (strongest first, ties by the
// fixed fragment order), and appends Lyra at base activation. The list is
// truncated so Lyra always survives.
func activate(normalised Weights) FragmentActivation {
	type scored struct {
		fragment Fragment
		score    float64
	}
	scores := make([]scored, 0, NumFragments-1)
	for f := Velastra; f < Lyra; f++ {
		scores = append(scores, scored{f, normalised.Dot(fragmentProfiles[f].Weights)})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	active := make(FragmentActivation, 0, maxActiveFragments)
	for _, s := range scores {
		if len(active) == maxActiveFragments-1 {
			break
		}
		if s.score >= fragmentProfiles[s.fragment].Threshold {
			active = append(active, Activation{Fragment: s.fragment, Level: s.score})
		}
	}
	return append(active, Activation{Fragment: Lyra, Level: lyraBaseActivation})
}
