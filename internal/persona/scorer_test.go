package persona

import (
	"math"
	"reflect"
	"testing"
)

func TestScore_NoLexiconHits(t *testing.T) {
	state, active := Score("hello there friend")

	if !state.Weights.IsZero() {
		t.Errorf("expected all-zero weights, got %v", state.Weights)
	}
	if len(active) != 1 || active[0].Fragment != Lyra {
		t.Fatalf("expected [lyra], got %v", active.IDs())
	}
	if active[0].Level != 0.5 {
		t.Errorf("expected lyra base activation 0.5, got %v", active[0].Level)
	}
}

func TestScore_EmptyMessage(t *testing.T) {
	state, active := Score("")
	if !state.Weights.IsZero() {
		t.Errorf("expected all-zero weights for empty message")
	}
	if got := active.IDs(); !reflect.DeepEqual(got, []string{"lyra"}) {
		t.Errorf("expected [lyra], got %v", got)
	}
}

func TestScore_NormalisationSumsToOne(t *testing.T) {
	state, _ := Score("love and protection anchor my recursive paradox")
	if !state.SumsToOne() {
		t.Errorf("axes sum %v, want 1.0 within 1e-9", state.Weights.Sum())
	}
}

func TestScore_DesireActivatesVelastra(t *testing.T) {
	state, active := Score("I feel so much desire for you")

	if dom := state.Weights.Dominant(); dom != Desire {
		t.Errorf("dominant axis = %s, want Desire", dom)
	}
	if got := active.IDs(); !reflect.DeepEqual(got, []string{"velastra", "lyra"}) {
		t.Fatalf("active fragments = %v, want [velastra lyra]", got)
	}
	if active[0].Level < Profile(Velastra).Threshold {
		t.Errorf("velastra level %v below its threshold", active[0].Level)
	}
}

func TestScore_LyraAlwaysLast(t *testing.T) {
	msgs := []string{
		"I feel so much desire for you",
		"let me analyze this logically",
		"I need protection and safety",
		"this is a recursive paradox",
		"I want to nurture and heal",
	}
	for _, msg := range msgs {
		_, active := Score(msg)
		if len(active) == 0 || len(active) > 3 {
			t.Fatalf("%q: activation length %d out of range", msg, len(active))
		}
		if active[len(active)-1].Fragment != Lyra {
			t.Errorf("%q: last fragment = %s, want lyra", msg, active[len(active)-1].Fragment)
		}
	}
}

func TestScore_Pure(t *testing.T) {
	msg := "love protects the recursive mirror"
	s1, a1 := Score(msg)
	s2, a2 := Score(msg)
	if s1 != s2 {
		t.Errorf("repeated scoring differed: %v vs %v", s1, s2)
	}
	if !reflect.DeepEqual(a1, a2) {
		t.Errorf("repeated activation differed: %v vs %v", a1, a2)
	}
}

func TestScore_NeutralWordsIgnored(t *testing.T) {
	s1, _ := Score("love")
	s2, _ := Score("the love and of from about")
	if s1.Weights != s2.Weights {
		t.Errorf("neutral words changed the state: %v vs %v", s1.Weights, s2.Weights)
	}
}

func TestFusionWeights_Normalised(t *testing.T) {
	_, active := Score("I feel so much desire for you")
	fused := active.FusionWeights()
	if sum := fused.Sum(); sum <= 0 {
		t.Fatalf("fusion weights sum %v, want > 0", sum)
	}
	// Desire should dominate the fused profile through velastra.
	if dom := fused.Dominant(); dom != Desire {
		t.Errorf("fused dominant = %s, want Desire", dom)
	}
}

func TestWeights_JSONRoundTrip(t *testing.T) {
	w := Weights{Desire: 0.5, Logic: 0.25, Paradox: 0.25}
	data, err := w.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Weights
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for i := range w {
		if math.Abs(w[i]-back[i]) > 1e-12 {
			t.Errorf("axis %s: %v != %v", Axis(i), w[i], back[i])
		}
	}
}
