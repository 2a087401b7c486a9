package dispatch

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/lyralab/quantumd/internal/types"
)

func TestCleanParticleText(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"<think>reasoning here</think>Hello!", "Hello!"},
		{"<b>bold</b> text", "bold text"},
		{"plain text", "plain text"},
		{"a\n\n\n\nb", "a\n\nb"},
		{"  padded  ", "padded"},
	}
	for _, c := range cases {
		if got := cleanParticleText(c.in); got != c.want {
			t.Errorf("clean(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestSynthesize_AllEnhancements(t *testing.T) {
	memoryContext := "Relevant memories:\n1. User likes quantum AI and superposition concepts (relevance: 0.82)"
	got := synthesize(
		"<think>x</think>Hi!",
		"User interaction analyzed: The returning customer seems relaxed...",
		map[string]float64{"neutral": 1.0},
		true,
		memoryContext,
	)
	want := "Based on our previous interactions, Welcome back! Hi!" +
		" Drawing from our shared memories: " + memoryContext
	if got != want {
		t.Errorf("got\n%q\nwant\n%q", got, want)
	}
}

func TestSynthesize_Pure(t *testing.T) {
	a := synthesize("P", "summary", map[string]float64{"happy": 0.8}, false, noMemoriesSentinel)
	b := synthesize("P", "summary", map[string]float64{"happy": 0.8}, false, noMemoriesSentinel)
	if a != b {
		t.Errorf("same inputs produced different replies: %q vs %q", a, b)
	}
}

func TestSynthesize_EmotionSuffix(t *testing.T) {
	got := synthesize("P", "", map[string]float64{"happy": 0.8}, false, noMemoriesSentinel)
	if got != "P I can sense your happy energy and I'm here with you." {
		t.Errorf("got %q", got)
	}

	neutral := synthesize("P", "", map[string]float64{"neutral": 1.0}, false, noMemoriesSentinel)
	if neutral != "P" {
		t.Errorf("neutral emotion added a suffix: %q", neutral)
	}
}

func TestSynthesize_NoMemorySentinelSuppressesSuffix(t *testing.T) {
	got := synthesize("P", "", map[string]float64{"neutral": 1.0}, false, noMemoriesSentinel)
	if strings.Contains(got, "Drawing from our shared memories") {
		t.Errorf("sentinel did not suppress memory suffix: %q", got)
	}
}

func TestDominantEmotion_TiesStable(t *testing.T) {
	profile := map[string]float64{"sad": 0.8, "angry": 0.8}
	for i := 0; i < 10; i++ {
		if got := dominantEmotion(profile); got != "angry" {
			t.Fatalf("tie resolution unstable: %q", got)
		}
	}
}

func TestParseWaveResponse(t *testing.T) {
	long := strings.Repeat("x", 150)
	summary, emotions := parseWaveResponse(long)
	if !strings.HasPrefix(summary, "User interaction analyzed: ") || !strings.HasSuffix(summary, "...") {
		t.Errorf("summary = %q", summary)
	}
	if len(summary) != len("User interaction analyzed: ")+100+3 {
		t.Errorf("summary length = %d", len(summary))
	}
	if emotions["neutral"] != 1.0 {
		t.Errorf("emotions = %v", emotions)
	}

	_, emotions = parseWaveResponse("the user is happy but also frustrated")
	if emotions["happy"] != 0.8 || emotions["angry"] != 0.8 {
		t.Errorf("emotions = %v", emotions)
	}
	if _, ok := emotions["neutral"]; ok {
		t.Errorf("neutral set alongside detected emotions")
	}
}

func TestRenderMemoryContext(t *testing.T) {
	if got := renderMemoryContext(nil); got != noMemoriesSentinel {
		t.Errorf("empty hits = %q", got)
	}

	hits := []types.MemoryHit{
		{Content: "first memory", Score: 0.91},
		{Content: "second memory", Score: 0.755},
	}
	got := renderMemoryContext(hits)
	want := "Relevant memories:\n1. first memory (relevance: 0.91)\n2. second memory (relevance: 0.76)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPersonalizationScore(t *testing.T) {
	cases := []struct {
		name       string
		confidence float64
		axes       int
		pTime      time.Duration
		wTime      time.Duration
		want       float64
	}{
		{"fast and confident", 0.85, 1, time.Second, time.Second, 0.3 + 0.255 + 0 + 0.2},
		{"complex emotions", 0.85, 4, 10 * time.Second, time.Second, 0.3 + 0.255 + 0.2},
		{"two axes", 0.85, 2, 10 * time.Second, 10 * time.Second, 0.3 + 0.255 + 0.1},
		{"fallback confidence", 0.5, 1, 10 * time.Second, 10 * time.Second, 0.3 + 0.15},
	}
	for _, c := range cases {
		got := personalizationScore(c.confidence, c.axes, c.pTime, c.wTime)
		if diff := got - c.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("%s: score = %f, want %f", c.name, got, c.want)
		}
	}

	if got := personalizationScore(1.0, 5, time.Second, time.Second); got != 1.0 {
		t.Errorf("score not clamped: %f", got)
	}
}

func TestEmbeddingKey_TruncatesParticleHead(t *testing.T) {
	long := strings.Repeat("p", 500)
	key := embeddingKey(long, "summary")
	if len(key) != embeddingKeyParticleChars+1+len("summary") {
		t.Errorf("key length = %d", len(key))
	}
	if !strings.HasSuffix(key, " summary") {
		t.Errorf("key missing wave summary")
	}
}

func TestEmbeddingKey_MultibyteBoundary(t *testing.T) {
	long := strings.Repeat("日", 300)
	key := embeddingKey(long, "summary")
	if !utf8.ValidString(key) {
		t.Errorf("key is not valid UTF-8: %q", key)
	}
	if got := utf8.RuneCountInString(key); got != embeddingKeyParticleChars+1+len("summary") {
		t.Errorf("key runes = %d", got)
	}
}

func TestParseWaveResponse_MultibyteBoundary(t *testing.T) {
	summary, _ := parseWaveResponse(strings.Repeat("é", 150))
	if !utf8.ValidString(summary) {
		t.Errorf("summary is not valid UTF-8: %q", summary)
	}
	body := strings.TrimSuffix(strings.TrimPrefix(summary, "User interaction analyzed: "), "...")
	if got := utf8.RuneCountInString(body); got != 100 {
		t.Errorf("preview runes = %d, want 100", got)
	}
}

func TestTruncateRunes(t *testing.T) {
	cases := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly", 7, "exactly"},
		{"abcdef", 3, "abc"},
		{"ééé", 2, "éé"},
		{"", 5, ""},
	}
	for _, c := range cases {
		if got := truncateRunes(c.in, c.n); got != c.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", c.in, c.n, got, c.want)
		}
	}
}
