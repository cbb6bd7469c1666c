package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/deepsky-data/starfuse/internal/fusion"
)

// FusionRun is a persisted summary of one completed fusion run.
type FusionRun struct {
	RunID                 string          `json:"run_id"`
	Strategy              string          `json:"strategy"`
	Backend               string          `json:"backend"`
	Width                 int             `json:"width"`
	Height                int             `json:"height"`
	FrameCount            int             `json:"frame_count"`
	MeanConfidence        float64         `json:"mean_confidence"`
	MinConfidence         float64         `json:"min_confidence"`
	LowConfidenceFraction float64         `json:"low_confidence_fraction"`
	ReliableFraction      float64         `json:"reliable_fraction"`
	ArtifactFraction      float64         `json:"artifact_fraction"`
	ClassCountsJSON       json.RawMessage `json:"class_counts_json,omitempty"`
	FusedMin              float64         `json:"fused_min"`
	FusedMax              float64         `json:"fused_max"`
	WallTimeMS            int64           `json:"wall_time_ms"`
	CreatedAt             int64           `json:"created_at"`
}

// RecordFromStatistics builds a FusionRun from a completed run's result and
// summary statistics. RunID and CreatedAt are filled on Insert if left empty.
func RecordFromStatistics(result *fusion.FusionResult, stats *fusion.RunStatistics, cfg fusion.ProcessingConfig, backend string, wall time.Duration) (*FusionRun, error) {
	counts, err := json.Marshal(stats.ClassCounts)
	if err != nil {
		return nil, fmt.Errorf("marshal class counts: %w", err)
	}
	run := &FusionRun{
		Strategy:              cfg.Strategy.String(),
		Backend:               backend,
		Width:                 result.Width,
		Height:                result.Height,
		FrameCount:            stats.FrameCount,
		MeanConfidence:        stats.MeanConfidence,
		MinConfidence:         stats.MinConfidence,
		LowConfidenceFraction: stats.LowConfidenceFraction,
		ReliableFraction:      stats.ReliableFraction,
		ArtifactFraction:      stats.ArtifactFraction,
		ClassCountsJSON:       counts,
		FusedMin:              stats.FusedMin,
		FusedMax:              stats.FusedMax,
		WallTimeMS:            wall.Milliseconds(),
	}
	return run, nil
}

// RunStore provides persistence for fusion run summaries.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a RunStore backed by the given database.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// Init creates the fusion_runs table if it does not exist.
func (s *RunStore) Init() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS fusion_runs (
			run_id                  TEXT PRIMARY KEY,
			strategy                TEXT NOT NULL,
			backend                 TEXT NOT NULL,
			width                   INTEGER NOT NULL,
			height                  INTEGER NOT NULL,
			frame_count             INTEGER NOT NULL,
			mean_confidence         REAL,
			min_confidence          REAL,
			low_confidence_fraction REAL,
			reliable_fraction       REAL,
			artifact_fraction       REAL,
			class_counts_json       TEXT,
			fused_min               REAL,
			fused_max               REAL,
			wall_time_ms            INTEGER,
			created_at              INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("create fusion_runs table: %w", err)
	}
	return nil
}

// Insert persists a run summary. If RunID is empty, a UUID is generated.
func (s *RunStore) Insert(run *FusionRun) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}

	var countsStr interface{}
	if len(run.ClassCountsJSON) > 0 {
		countsStr = string(run.ClassCountsJSON)
	}

	return retryOnBusy(func() error {
		_, err := s.db.Exec(`
			INSERT INTO fusion_runs (
				run_id, strategy, backend, width, height, frame_count,
				mean_confidence, min_confidence, low_confidence_fraction,
				reliable_fraction, artifact_fraction, class_counts_json,
				fused_min, fused_max, wall_time_ms, created_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.RunID, run.Strategy, run.Backend, run.Width, run.Height, run.FrameCount,
			run.MeanConfidence, run.MinConfidence, run.LowConfidenceFraction,
			run.ReliableFraction, run.ArtifactFraction, countsStr,
			run.FusedMin, run.FusedMax, run.WallTimeMS, run.CreatedAt,
		)
		return err
	})
}

// Get returns a single run summary by ID.
func (s *RunStore) Get(runID string) (*FusionRun, error) {
	row := s.db.QueryRow(`
		SELECT run_id, strategy, backend, width, height, frame_count,
		       mean_confidence, min_confidence, low_confidence_fraction,
		       reliable_fraction, artifact_fraction, class_counts_json,
		       fused_min, fused_max, wall_time_ms, created_at
		FROM fusion_runs
		WHERE run_id = ?`, runID)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("fusion run %s not found", runID)
	}
	return run, err
}

// ListRecent returns the most recent run summaries, newest first.
func (s *RunStore) ListRecent(limit int) ([]*FusionRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT run_id, strategy, backend, width, height, frame_count,
		       mean_confidence, min_confidence, low_confidence_fraction,
		       reliable_fraction, artifact_fraction, class_counts_json,
		       fused_min, fused_max, wall_time_ms, created_at
		FROM fusion_runs
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query fusion runs: %w", err)
	}
	defer rows.Close()

	var runs []*FusionRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Delete removes a run summary by ID.
func (s *RunStore) Delete(runID string) error {
	return retryOnBusy(func() error {
		result, err := s.db.Exec(`DELETE FROM fusion_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete fusion run: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return fmt.Errorf("fusion run %s not found", runID)
		}
		return nil
	})
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*FusionRun, error) {
	var run FusionRun
	var countsStr sql.NullString
	err := row.Scan(
		&run.RunID, &run.Strategy, &run.Backend, &run.Width, &run.Height, &run.FrameCount,
		&run.MeanConfidence, &run.MinConfidence, &run.LowConfidenceFraction,
		&run.ReliableFraction, &run.ArtifactFraction, &countsStr,
		&run.FusedMin, &run.FusedMax, &run.WallTimeMS, &run.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan fusion run: %w", err)
	}
	if countsStr.Valid {
		run.ClassCountsJSON = json.RawMessage(countsStr.String)
	}
	return &run, nil
}
