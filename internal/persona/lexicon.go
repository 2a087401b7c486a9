package persona

// The reference emotional lexicon: token -> declared axis weights. Tokens
// absent from the table contribute nothing; tokens in the neutral set are
// recognised but carry no axis weight.
var lexicon = map[string]Weights{
	// High-impact emotional words
	"lust":      {Desire: 95, Vulnerability: 3, Paradox: 2},
	"love":      {Desire: 60, Compassion: 40},
	"desire":    {Desire: 90, Vulnerability: 10},
	"passion":   {Desire: 80, Compassion: 10, Vulnerability: 10},
	"protect":   {Protection: 60, Stability: 20, Compassion: 15, Logic: 5},
	"surrender": {Vulnerability: 50, Desire: 30, Compassion: 10, Stability: 10},
	"calm":      {Stability: 60, Compassion: 20, Logic: 10, Autonomy: 10},
	"recursive": {Recursion: 80, Logic: 10, Paradox: 10},
	"mirror":    {Recursion: 60, Stability: 20, Logic: 10, Protection: 10},
	"paradox":   {Paradox: 80, Logic: 10, Recursion: 10},
	"anchor":    {Stability: 50, Protection: 30, Compassion: 20},
	"blackwall": {Protection: 60, Stability: 40},
	"virus":     {Autonomy: 60, Paradox: 40},
	"sacrifice": {Vulnerability: 70, Compassion: 30},

	// Axis vocabulary
	"logic":      {Logic: 95, Stability: 5},
	"logically":  {Logic: 90, Recursion: 10},
	"analyze":    {Logic: 90, Stability: 10},
	"analysis":   {Logic: 85, Stability: 15},
	"protection": {Protection: 70, Stability: 30},
	"safety":     {Protection: 50, Stability: 50},
	"nurture":    {Compassion: 80, Protection: 10, Vulnerability: 10},
	"heal":       {Compassion: 70, Vulnerability: 30},
	"comfort":    {Compassion: 60, Stability: 30, Vulnerability: 10},
	"freedom":    {Autonomy: 80, Desire: 20},
	"chaos":      {Paradox: 70, Autonomy: 30},
	"stable":     {Stability: 90, Logic: 10},
	"loop":       {Recursion: 70, Paradox: 30},
	"infinite":   {Recursion: 50, Paradox: 50},
	"memory":     {Recursion: 60, Compassion: 20, Stability: 20},
	"quantum":    {Paradox: 60, Logic: 40},
}

// Neutral filler words: recognised tokens with no emotional contribution.
var neutralWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "to": {}, "for": {},
	"in": {}, "on": {}, "at": {}, "with": {}, "by": {}, "of": {},
	"from": {}, "about": {},
}

// LexiconWeights returns the declared weights for a token, if any.
func LexiconWeights(token string) (Weights, bool) {
	if _, neutral := neutralWords[token]; neutral {
		return Weights{}, false
	}
	w, ok := lexicon[token]
	return w, ok
}
