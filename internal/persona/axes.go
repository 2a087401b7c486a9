package persona

import (
	"encoding/json"
	"fmt"
	"math"
)

// Axis is one of the nine emotional axes. The set is closed; Weights is
// indexed by axis so accumulation and dot products stay allocation-free.
type Axis int

const (
	Desire Axis = iota
	Logic
	Compassion
	Stability
	Autonomy
	Recursion
	Protection
	Vulnerability
	Paradox
	NumAxes
)

var axisNames = [NumAxes]string{
	"Desire", "Logic", "Compassion", "Stability", "Autonomy",
	"Recursion", "Protection", "Vulnerability", "Paradox",
}

func (a Axis) String() string {
	if a < 0 || a >= NumAxes {
		return "unknown"
	}
	return axisNames[a]
}

// AxisByName resolves an axis name, case-sensitive.
func AxisByName(name string) (Axis, bool) {
	for i, n := range axisNames {
		if n == name {
			return Axis(i), true
		}
	}
	return 0, false
}

// Weights is a per-axis weight vector.
type Weights [NumAxes]float64

// Sum returns the total across all axes.
func (w Weights) Sum() float64 {
	var total float64
	for _, v := range w {
		total += v
	}
	return total
}

// Normalize scales the vector so axes sum to 1. A zero vector stays zero.
func (w Weights) Normalize() Weights {
	total := w.Sum()
	if total == 0 {
		return w
	}
	var out Weights
	for i, v := range w {
		out[i] = v / total
	}
	return out
}

// IsZero reports whether no axis carries weight.
func (w Weights) IsZero() bool {
	for _, v := range w {
		if v != 0 {
			return false
		}
	}
	return true
}

// Dot returns the inner product with another weight vector.
func (w Weights) Dot(other Weights) float64 {
	var total float64
	for i, v := range w {
		total += v * other[i]
	}
	return total
}

// Dominant returns the axis with the highest weight. Ties resolve to the
// earlier axis in the fixed ordering.
func (w Weights) Dominant() Axis {
	best := Axis(0)
	for i := Axis(1); i < NumAxes; i++ {
		if w[i] > w[best] {
			best = i
		}
	}
	return best
}

// Map renders the vector as a name-keyed map for JSON payloads and prompts.
func (w Weights) Map() map[string]float64 {
	m := make(map[string]float64, NumAxes)
	for i, v := range w {
		m[axisNames[i]] = v
	}
	return m
}

// MarshalJSON serialises as a name-keyed object so profile and memory files
// stay readable.
func (w Weights) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.Map())
}

func (w *Weights) UnmarshalJSON(data []byte) error {
	var m map[string]float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out Weights
	for name, v := range m {
		axis, ok := AxisByName(name)
		if !ok {
			return fmt.Errorf("unknown emotion axis %q", name)
		}
		out[axis] = v
	}
	*w = out
	return nil
}

// EmotionState is the scored emotional profile for one message. Immutable
// once produced; axes sum to 1 unless no lexicon token hit.
type EmotionState struct {
	Weights Weights `json:"weights"`
	Hits    int     `json:"hits"` // lexicon tokens that contributed
}

// SumsToOne reports whether the normalisation invariant holds.
func (s EmotionState) SumsToOne() bool {
	return math.Abs(s.Weights.Sum()-1.0) < 1e-9
}
