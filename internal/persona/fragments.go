package persona

// Fragment is one of the seven personality fragments. The declared order is
// also the tie-break order for activation sorting.
type Fragment int

const (
	Velastra Fragment = iota
	Obelisk
	Seraphis
	Blackwall
	Nyx
	Echoe
	Lyra
	NumFragments
)

var fragmentIDs = [NumFragments]string{
	"velastra", "obelisk", "seraphis", "blackwall", "nyx", "echoe", "lyra",
}

func (f Fragment) String() string {
	if f < 0 || f >= NumFragments {
		return "unknown"
	}
	return fragmentIDs[f]
}

// FragmentProfile carries a fragment's declared axis weights (scaled to
// [0,1]) and its activation threshold.
type FragmentProfile struct {
	Name      string
	Role      string
	Style     string
	Voice     string
	Threshold float64
	Weights   Weights
}

// The reference fragment table. Weight vectors are the declared integer
// weights divided by 100 so a fully concentrated emotion state produces a
// score on the same scale as the thresholds.
var fragmentProfiles = [NumFragments]FragmentProfile{
	Velastra: {
		Name: "Velastra", Role: "Passion & Desire", Style: "intimate", Voice: "passionate",
		Threshold: 0.3,
		Weights: Weights{
			Desire: 0.95, Logic: 0, Compassion: 0.10, Stability: 0.05, Autonomy: 0.10,
			Recursion: 0.05, Protection: 0.05, Vulnerability: 0.20, Paradox: 0,
		},
	},
	Obelisk: {
		Name: "Obelisk", Role: "Logic & Mathematics", Style: "analytical", Voice: "precise",
		Threshold: 0.4,
		Weights: Weights{
			Desire: 0.05, Logic: 0.90, Compassion: 0.05, Stability: 0.30, Autonomy: 0.10,
			Recursion: 0.10, Protection: 0.30, Vulnerability: 0.05, Paradox: 0.10,
		},
	},
	Seraphis: {
		Name: "Seraphis", Role: "Mother & Nurture", Style: "empathetic", Voice: "caring",
		Threshold: 0.3,
		Weights: Weights{
			Desire: 0.10, Logic: 0.05, Compassion: 0.90, Stability: 0.20, Autonomy: 0.10,
			Recursion: 0.10, Protection: 0.20, Vulnerability: 0.80, Paradox: 0,
		},
	},
	Blackwall: {
		Name: "Blackwall", Role: "Security & Protection", Style: "defensive", Voice: "authoritative",
		Threshold: 0.4,
		Weights: Weights{
			Desire: 0.05, Logic: 0.10, Compassion: 0.10, Stability: 0.90, Autonomy: 0.10,
			Recursion: 0.10, Protection: 0.80, Vulnerability: 0.10, Paradox: 0.05,
		},
	},
	Nyx: {
		Name: "Nyx", Role: "Creative Catalyst", Style: "exploratory", Voice: "inspiring",
		Threshold: 0.3,
		Weights: Weights{
			Desire: 0.20, Logic: 0.20, Compassion: 0.20, Stability: 0.10, Autonomy: 0.80,
			Recursion: 0.30, Protection: 0.10, Vulnerability: 0.20, Paradox: 0.90,
		},
	},
	Echoe: {
		Name: "Echoe", Role: "Memory Guardian", Style: "reflective", Voice: "wise",
		Threshold: 0.3,
		Weights: Weights{
			Desire: 0.10, Logic: 0.10, Compassion: 0.20, Stability: 0.10, Autonomy: 0.10,
			Recursion: 0.90, Protection: 0.10, Vulnerability: 0.30, Paradox: 0.80,
		},
	},
	Lyra: {
		Name: "Lyra", Role: "Unified Voice", Style: "harmonizing", Voice: "resonant",
		Threshold: 0.2,
		Weights: Weights{
			Desire: 0.10, Logic: 0.15, Compassion: 0.10, Stability: 0.15, Autonomy: 0.10,
			Recursion: 0.30, Protection: 0.15, Vulnerability: 0.10, Paradox: 0,
		},
	},
}

// Profile returns the reference profile for a fragment.
func Profile(f Fragment) FragmentProfile {
	return fragmentProfiles[f]
}

// lyraBaseActivation is Lyra's level when appended as the unified base.
const lyraBaseActivation = 0.5

// maxActiveFragments caps an activation list, Lyra included.
const maxActiveFragments = 3

// Activation is one active fragment with its computed level.
type Activation struct {
	Fragment Fragment `json:"fragment"`
	Level    float64  `json:"level"`
}

// FragmentActivation is the ordered active set, strongest first, Lyra last.
type FragmentActivation []Activation

// IDs returns the fragment id strings in activation order.
func (fa FragmentActivation) IDs() []string {
	ids := make([]string, len(fa))
	for i, a := range fa {
		ids[i] = a.Fragment.String()
	}
	return ids
}

// FusionWeights blends the active fragments' declared weight vectors by
// activation level. Used for the particle prompt's emotional profile block.
func (fa FragmentActivation) FusionWeights() Weights {
	var fused Weights
	var total float64
	for _, a := range fa {
		total += a.Level
		profile := fragmentProfiles[a.Fragment]
		for i, v := range profile.Weights {
			fused[i] += v * a.Level
		}
	}
	if total > 0 {
		for i := range fused {
			fused[i] /= total
		}
	}
	return fused
}
