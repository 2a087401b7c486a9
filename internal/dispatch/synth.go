package dispatch

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/lyralab/quantumd/internal/types"
)

// noMemoriesSentinel is the memory-context value that suppresses the
// shared-memories suffix.
const noMemoriesSentinel = "No relevant memories found."

var (
	tagPattern     = regexp.MustCompile(`<[^>]+>`)
	newlinePattern = regexp.MustCompile(`\n\s*\n`)
)

// cleanParticleText strips the model's think block and any leftover
// angle-bracket tags, then collapses blank-line runs.
func cleanParticleText(text string) string {
	if idx := strings.Index(text, "</think>"); idx != -1 && strings.Contains(text, "<think>") {
		text = text[idx+len("</think>"):]
	}
	text = tagPattern.ReplaceAllString(text, "")
	text = newlinePattern.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// synthesize fuses the three stage outputs into the final reply. Pure: the
// same inputs always produce the same string.
func synthesize(particleText, contextSummary string, emotionProfile map[string]float64,
	relevantMemories bool, memoryContext string) string {

	reply := cleanParticleText(particleText)

	if strings.Contains(strings.ToLower(contextSummary), "returning customer") {
		reply = "Welcome back! " + reply
	}

	if e := dominantEmotion(emotionProfile); e != "" && e != "neutral" {
		reply += fmt.Sprintf(" I can sense your %s energy and I'm here with you.", e)
	}

	if relevantMemories {
		reply = "Based on our previous interactions, " + reply
	}

	if memoryContext != noMemoriesSentinel && memoryContext != "" {
		reply += " Drawing from our shared memories: " + memoryContext
	}

	return reply
}

// dominantEmotion picks the highest-valued emotion; ties break by name so
// the result is stable.
func dominantEmotion(profile map[string]float64) string {
	if len(profile) == 0 {
		return ""
	}
	names := make([]string, 0, len(profile))
	for name := range profile {
		names = append(names, name)
	}
	sort.Strings(names)
	best := names[0]
	for _, name := range names[1:] {
		if profile[name] > profile[best] {
			best = name
		}
	}
	return best
}

// truncateRunes cuts s to at most n runes, never splitting a multi-byte
// character.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// parseWaveResponse reduces the raw wave output to a context summary and an
// emotion profile. Keyword detection only; the wave model is not trusted to
// emit structure.
func parseWaveResponse(response string) (string, map[string]float64) {
	summary := fmt.Sprintf("User interaction analyzed: %s...", truncateRunes(response, 100))

	emotions := make(map[string]float64)
	lower := strings.ToLower(response)
	if strings.Contains(lower, "happy") || strings.Contains(lower, "excited") {
		emotions["happy"] = 0.8
	}
	if strings.Contains(lower, "sad") || strings.Contains(lower, "depressed") {
		emotions["sad"] = 0.8
	}
	if strings.Contains(lower, "angry") || strings.Contains(lower, "frustrated") {
		emotions["angry"] = 0.8
	}
	if len(emotions) == 0 {
		emotions["neutral"] = 1.0
	}
	return summary, emotions
}

// renderMemoryContext turns top-K hits into the numbered block embedded in
// the reply, or the sentinel when nothing was retrieved.
func renderMemoryContext(hits []types.MemoryHit) string {
	if len(hits) == 0 {
		return noMemoriesSentinel
	}
	var b strings.Builder
	b.WriteString("Relevant memories:")
	for i, h := range hits {
		fmt.Fprintf(&b, "\n%d. %s (relevance: %.2f)", i+1, h.Content, h.Score)
	}
	return b.String()
}

// personalizationScore grades how tailored the reply is. Metadata only, the
// score never changes the reply text.
func personalizationScore(particleConfidence float64, emotionAxes int,
	particleTime, waveTime time.Duration) float64 {

	score := 0.3 + particleConfidence*0.3
	switch {
	case emotionAxes > 3:
		score += 0.2
	case emotionAxes > 1:
		score += 0.1
	}
	if particleTime < 5*time.Second && waveTime < 3*time.Second {
		score += 0.2
	}
	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}
	return score
}
