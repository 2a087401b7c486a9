package history

import (
	"testing"
	"time"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	h, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func TestAppendAndRecent(t *testing.T) {
	h := newTestDB(t)

	base := time.Now().Add(-time.Minute)
	for i, state := range []string{"done", "failed", "done"} {
		err := h.Append(Record{
			RequestID:    "r" + string(rune('1'+i)),
			UserID:       "u1",
			State:        state,
			TotalSeconds: float64(i + 1),
			CompletedAt:  base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	recs, err := h.Recent(10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want 3", len(recs))
	}
	if recs[0].RequestID != "r3" {
		t.Errorf("newest first: got %s", recs[0].RequestID)
	}
}

func TestAppend_SameIDReplaces(t *testing.T) {
	h := newTestDB(t)

	h.Append(Record{RequestID: "r1", UserID: "u1", State: "failed"})
	h.Append(Record{RequestID: "r1", UserID: "u1", State: "done"})

	recs, err := h.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].State != "done" {
		t.Errorf("records = %+v", recs)
	}
}

func TestAppend_RoundTripsCPUUtilization(t *testing.T) {
	h := newTestDB(t)
	if err := h.Append(Record{RequestID: "r1", UserID: "u", State: "done", CPUUtilization: 42.5}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	recs, err := h.Recent(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].CPUUtilization != 42.5 {
		t.Errorf("records = %+v", recs)
	}
}

func TestRecentForUser(t *testing.T) {
	h := newTestDB(t)
	h.Append(Record{RequestID: "a1", UserID: "alice", State: "done"})
	h.Append(Record{RequestID: "b1", UserID: "bob", State: "done"})

	recs, err := h.RecentForUser("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].UserID != "alice" {
		t.Errorf("records = %+v", recs)
	}
}

func TestGetStats(t *testing.T) {
	h := newTestDB(t)

	stats, err := h.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 0 {
		t.Errorf("empty db total = %d", stats.Total)
	}

	h.Append(Record{RequestID: "r1", UserID: "u", State: "done", TotalSeconds: 2})
	h.Append(Record{RequestID: "r2", UserID: "u", State: "done", TotalSeconds: 4, Degraded: true})
	h.Append(Record{RequestID: "r3", UserID: "u", State: "failed", TotalSeconds: 6})

	stats, err = h.GetStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.Successful != 2 || stats.Degraded != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.AvgTotalSeconds < 3.9 || stats.AvgTotalSeconds > 4.1 {
		t.Errorf("avg = %f, want 4", stats.AvgTotalSeconds)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	h, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	h.Append(Record{RequestID: "r1", UserID: "u", State: "done"})
	h.Close()

	h2, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer h2.Close()
	recs, err := h2.Recent(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Errorf("after reopen got %d records", len(recs))
	}
}
