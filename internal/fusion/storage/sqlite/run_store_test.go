package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/deepsky-data/starfuse/internal/fusion"
)

func setupTestRunDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := NewRunStore(db)
	if err := store.Init(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return db
}

func sampleRun() *FusionRun {
	return &FusionRun{
		Strategy:              "mle",
		Backend:               "host",
		Width:                 1024,
		Height:                768,
		FrameCount:            50,
		MeanConfidence:        0.82,
		MinConfidence:         0.11,
		LowConfidenceFraction: 0.03,
		ReliableFraction:      0.91,
		ArtifactFraction:      0.02,
		ClassCountsJSON:       json.RawMessage(`{"gaussian":700000,"poisson":80000}`),
		FusedMin:              12.5,
		FusedMax:              60012.25,
		WallTimeMS:            1830,
	}
}

func TestRunStoreInsertAndGet(t *testing.T) {
	db := setupTestRunDB(t)
	store := NewRunStore(db)

	run := sampleRun()
	if err := store.Insert(run); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if run.RunID == "" {
		t.Fatalf("insert must assign a run id")
	}
	if run.CreatedAt == 0 {
		t.Fatalf("insert must assign a creation timestamp")
	}

	got, err := store.Get(run.RunID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Strategy != "mle" || got.Backend != "host" {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Width != 1024 || got.Height != 768 || got.FrameCount != 50 {
		t.Fatalf("unexpected dimensions: %+v", got)
	}
	if got.MeanConfidence != 0.82 || got.WallTimeMS != 1830 {
		t.Fatalf("unexpected summary values: %+v", got)
	}

	var counts map[string]int
	if err := json.Unmarshal(got.ClassCountsJSON, &counts); err != nil {
		t.Fatalf("unmarshal class counts: %v", err)
	}
	if counts["gaussian"] != 700000 {
		t.Fatalf("class counts did not round-trip: %v", counts)
	}
}

func TestRunStoreGetMissing(t *testing.T) {
	db := setupTestRunDB(t)
	store := NewRunStore(db)
	if _, err := store.Get("no-such-run"); err == nil {
		t.Fatalf("missing run must error")
	}
}

func TestRunStoreListRecent(t *testing.T) {
	db := setupTestRunDB(t)
	store := NewRunStore(db)

	for i := 0; i < 3; i++ {
		run := sampleRun()
		run.FrameCount = 10 + i
		run.CreatedAt = int64(1000 + i)
		if err := store.Insert(run); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	runs, err := store.ListRecent(2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].FrameCount != 12 || runs[1].FrameCount != 11 {
		t.Fatalf("runs not ordered newest first: %d, %d", runs[0].FrameCount, runs[1].FrameCount)
	}
}

func TestRunStoreDelete(t *testing.T) {
	db := setupTestRunDB(t)
	store := NewRunStore(db)

	run := sampleRun()
	if err := store.Insert(run); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.Delete(run.RunID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := store.Delete(run.RunID); err == nil {
		t.Fatalf("double delete must error")
	}
}

func TestRecordFromStatistics(t *testing.T) {
	stats := &fusion.RunStatistics{
		MeanConfidence:        0.7,
		MinConfidence:         0.2,
		LowConfidenceFraction: 0.1,
		ClassCounts:           map[string]int{"gaussian": 90, "uniform": 10},
		ReliableFraction:      0.9,
		ArtifactFraction:      0.1,
		FusedMin:              0,
		FusedMax:              4096,
		PixelCount:            100,
		FrameCount:            25,
	}
	cfg := fusion.DefaultConfig()
	cfg.Strategy = fusion.StrategyConfidenceWeighted
	result := fusion.NewFusionResult(10, 10, false)

	run, err := RecordFromStatistics(result, stats, cfg, "host", 2500*time.Millisecond)
	if err != nil {
		t.Fatalf("RecordFromStatistics: %v", err)
	}
	if run.Strategy != "confidence_weighted" {
		t.Fatalf("strategy = %q", run.Strategy)
	}
	if run.Width != 10 || run.Height != 10 {
		t.Fatalf("dimensions = %dx%d, want 10x10", run.Width, run.Height)
	}
	if run.WallTimeMS != 2500 || run.FrameCount != 25 {
		t.Fatalf("unexpected record: %+v", run)
	}
	var counts map[string]int
	if err := json.Unmarshal(run.ClassCountsJSON, &counts); err != nil {
		t.Fatalf("unmarshal counts: %v", err)
	}
	if counts["uniform"] != 10 {
		t.Fatalf("counts did not survive: %v", counts)
	}

	// The dimensions must survive persistence; a record that stores 0x0 is
	// useless for comparing runs across image sizes.
	store := NewRunStore(setupTestRunDB(t))
	if err := store.Insert(run); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	got, err := store.Get(run.RunID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Width == 0 || got.Height == 0 {
		t.Fatalf("persisted dimensions = %dx%d, want nonzero", got.Width, got.Height)
	}
}

func TestIsSQLiteBusy(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"database is locked", errors.New("database is locked (5) (SQLITE_BUSY)"), true},
		{"SQLITE_BUSY", errors.New("SQLITE_BUSY"), true},
		{"other error", errors.New("some other error"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSQLiteBusy(tt.err); got != tt.expected {
				t.Errorf("isSQLiteBusy(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestRetryOnBusy(t *testing.T) {
	t.Run("success on first try", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			return nil
		})
		if err != nil || calls != 1 {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("recovers after busy", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			if calls < 3 {
				return errors.New("database is locked")
			}
			return nil
		})
		if err != nil || calls != 3 {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("non-busy error returns immediately", func(t *testing.T) {
		calls := 0
		wantErr := errors.New("constraint failed")
		err := retryOnBusy(func() error {
			calls++
			return wantErr
		})
		if !errors.Is(err, wantErr) || calls != 1 {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		calls := 0
		err := retryOnBusy(func() error {
			calls++
			return errors.New("SQLITE_BUSY")
		})
		if err == nil || calls != busyMaxRetries {
			t.Fatalf("err=%v calls=%d", err, calls)
		}
	})
}
