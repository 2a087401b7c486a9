package profile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/lyralab/quantumd/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

func TestGetProfile_SynthesisesDefault(t *testing.T) {
	s := newTestStore(t)

	p, err := s.GetProfile("u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.UserID != "u1" {
		t.Errorf("user id = %q", p.UserID)
	}
	if p.MemoryContextIndex.TotalMemories != 0 || len(p.MemoryContextIndex.ContextLines) != 0 {
		t.Errorf("fresh profile should have no memories")
	}
	// Synthesised lazily: nothing on disk yet.
	if s.HasProfile("u1") {
		t.Errorf("profile persisted before first mutation")
	}
}

func TestAppendMemory_UpdatesIndex(t *testing.T) {
	s := newTestStore(t)

	memID, err := s.AppendMemory("u1", types.MemoryEntry{
		Content:    "testing the dispatch core with integrated memory",
		MemoryType: "conversation",
	})
	if err != nil {
		t.Fatalf("AppendMemory: %v", err)
	}
	if !strings.HasPrefix(memID, "mem_") {
		t.Errorf("memID = %q", memID)
	}

	p, err := s.GetProfile("u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if p.MemoryContextIndex.TotalMemories != 1 {
		t.Errorf("total memories = %d, want 1", p.MemoryContextIndex.TotalMemories)
	}
	if len(p.MemoryContextIndex.ContextLines) != p.MemoryContextIndex.TotalMemories {
		t.Errorf("context line count %d != total %d",
			len(p.MemoryContextIndex.ContextLines), p.MemoryContextIndex.TotalMemories)
	}

	// Memory file exists and parses back.
	entry, err := s.ReadMemory("u1", memID)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if entry.Content != "testing the dispatch core with integrated memory" {
		t.Errorf("content round trip failed: %q", entry.Content)
	}
}

func TestContextLine_FourFields(t *testing.T) {
	s := newTestStore(t)

	long := strings.Repeat("x", 250)
	if _, err := s.AppendMemory("u1", types.MemoryEntry{Content: long}); err != nil {
		t.Fatalf("AppendMemory: %v", err)
	}
	if _, err := s.AppendMemory("u1", types.MemoryEntry{Content: "has|pipes|and\nnewlines"}); err != nil {
		t.Fatalf("AppendMemory: %v", err)
	}

	p, _ := s.GetProfile("u1")
	for _, line := range p.MemoryContextIndex.ContextLines {
		parts := strings.Split(line, "|")
		if len(parts) != 4 {
			t.Fatalf("line %q splits into %d fields, want 4", line, len(parts))
		}
		for i, f := range parts {
			if f == "" {
				t.Errorf("line %q field %d is empty", line, i)
			}
		}
		if len(parts[3]) > 103 {
			t.Errorf("preview field length %d > 103", len(parts[3]))
		}
		if !strings.HasSuffix(parts[3], "...") {
			t.Errorf("preview %q missing ellipsis marker", parts[3])
		}
	}
}

func TestContextLine_MultibytePreviewStaysValid(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AppendMemory("u1", types.MemoryEntry{Content: strings.Repeat("ü", 180)}); err != nil {
		t.Fatalf("AppendMemory: %v", err)
	}

	p, _ := s.GetProfile("u1")
	line := p.MemoryContextIndex.ContextLines[0]
	if !utf8.ValidString(line) {
		t.Fatalf("context line is not valid UTF-8: %q", line)
	}
	parts := strings.Split(line, "|")
	preview := strings.TrimSuffix(parts[3], "...")
	if got := utf8.RuneCountInString(preview); got != previewLen {
		t.Errorf("preview runes = %d, want %d", got, previewLen)
	}
}

func TestSearchContext_RankOneForUniqueSubstring(t *testing.T) {
	s := newTestStore(t)

	for _, content := range []string{
		"the user enjoys gardening",
		"the user asked about quantum superposition concepts",
		"the user said hello",
	} {
		if _, err := s.AppendMemory("u1", types.MemoryEntry{Content: content}); err != nil {
			t.Fatalf("AppendMemory: %v", err)
		}
	}

	hits, err := s.SearchContext("u1", "quantum", 5)
	if err != nil {
		t.Fatalf("SearchContext: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if !strings.Contains(hits[0].Preview, "quantum") {
		t.Errorf("top hit preview %q does not contain query", hits[0].Preview)
	}
	if hits[0].Relevance < 1 {
		t.Errorf("relevance = %d", hits[0].Relevance)
	}
}

func TestSearchContext_TiesMostRecentFirst(t *testing.T) {
	s := newTestStore(t)

	if _, err := s.AppendMemory("u1", types.MemoryEntry{Content: "alpha older entry"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendMemory("u1", types.MemoryEntry{Content: "alpha newer entry"}); err != nil {
		t.Fatal(err)
	}

	hits, err := s.SearchContext("u1", "alpha", 5)
	if err != nil {
		t.Fatalf("SearchContext: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("got %d hits, want 2", len(hits))
	}
	if !strings.Contains(hits[0].Preview, "newer") {
		t.Errorf("tie not broken most-recent first: %q", hits[0].Preview)
	}
}

func TestSearchContext_CaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AppendMemory("u1", types.MemoryEntry{Content: "Quantum AI discussion"}); err != nil {
		t.Fatal(err)
	}
	hits, err := s.SearchContext("u1", "qUaNtUm", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("case-insensitive search got %d hits, want 1", len(hits))
	}
}

func TestProfileOnDiskAlwaysParses(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.AppendMemory("u1", types.MemoryEntry{Content: "first"}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(s.root, "u1", "profile.json"))
	if err != nil {
		t.Fatalf("read profile: %v", err)
	}
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("profile on disk does not parse: %v", err)
	}
	if p.SystemMetadata.LastUpdated == "" || p.SystemMetadata.CreatedDate == "" {
		t.Errorf("system metadata stamps missing")
	}
	// No temp files left behind.
	entries, _ := os.ReadDir(filepath.Join(s.root, "u1"))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", e.Name())
		}
	}
}

func TestRecentContextLines_LastK(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		if _, err := s.AppendMemory("u1", types.MemoryEntry{
			Content:   strings.Repeat("m", i+1),
			Timestamp: time.Now().Add(time.Duration(i) * time.Second),
		}); err != nil {
			t.Fatal(err)
		}
	}
	lines, err := s.RecentContextLines("u1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 3 {
		t.Errorf("got %d lines, want 3", len(lines))
	}
}

func TestGetSummary(t *testing.T) {
	s := newTestStore(t)

	sum, err := s.GetSummary("nobody")
	if err != nil {
		t.Fatal(err)
	}
	if sum.HasProfile || sum.MemoryCount != 0 {
		t.Errorf("unexpected summary for unknown user: %+v", sum)
	}

	if _, err := s.AppendMemory("u1", types.MemoryEntry{Content: "a", MemoryType: "conversation"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.AppendMemory("u1", types.MemoryEntry{Content: "b", MemoryType: "fact"}); err != nil {
		t.Fatal(err)
	}

	sum, err = s.GetSummary("u1")
	if err != nil {
		t.Fatal(err)
	}
	if !sum.HasProfile || sum.MemoryCount != 2 || len(sum.MemoryTypes) != 2 {
		t.Errorf("summary = %+v", sum)
	}
}
