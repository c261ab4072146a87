// Package refinedb persists run and per-tile statistics for the
// refinement pipeline in a SQLite database. The schema is managed with
// embedded golang-migrate migrations so the binary is self-contained.
package refinedb

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type DB struct {
	*sql.DB
}

// Open opens (or creates) the stats database at path and applies any
// pending migrations.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stats database: %w", err)
	}

	rdb := &DB{db}
	if err := rdb.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return rdb, nil
}

func (db *DB) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Note: we don't close m because it would close the underlying DB
	// connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Run describes one refinement run.
type Run struct {
	RunID          string     `json:"run_id"`
	RefView        string     `json:"ref_view"`
	Scale          int        `json:"scale"`
	StepXY         int        `json:"step_xy"`
	HalfNbDepths   int        `json:"half_nb_depths"`
	PaddedMemoryMB float64    `json:"padded_memory_mb"`
	Status         string     `json:"status"`
	Notes          string     `json:"notes"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

// TileStats holds the per-tile measurements recorded after each tile
// finishes.
type TileStats struct {
	TileIndex     int           `json:"tile_index"`
	TileCount     int           `json:"tile_count"`
	ROIX          int           `json:"roi_x"`
	ROIY          int           `json:"roi_y"`
	ROIWidth      int           `json:"roi_width"`
	ROIHeight     int           `json:"roi_height"`
	TargetViews   int           `json:"target_views"`
	ValidPixels   int           `json:"valid_pixels"`
	InvalidPixels int           `json:"invalid_pixels"`
	Duration      time.Duration `json:"duration"`
}

// BeginRun inserts a new run row and returns its generated ID.
func (db *DB) BeginRun(refView string, scale, stepXY, halfNbDepths int, paddedMemoryMB float64, notes string) (string, error) {
	runID := uuid.New().String()

	query := `
		INSERT INTO refine_runs (run_id, ref_view, scale, step_xy, half_nb_depths, padded_memory_mb, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query, runID, refView, scale, stepXY, halfNbDepths, paddedMemoryMB, notes)
	if err != nil {
		return "", fmt.Errorf("failed to begin run: %w", err)
	}
	return runID, nil
}

// FinishRun marks a run as completed or failed.
func (db *DB) FinishRun(runID, status string) error {
	query := `
		UPDATE refine_runs
		SET status = ?, finished_at = CURRENT_TIMESTAMP
		WHERE run_id = ?
	`
	res, err := db.Exec(query, status, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check run update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("run %q not found", runID)
	}
	return nil
}

// RecordTileStats stores the measurements for one finished tile.
func (db *DB) RecordTileStats(runID string, s TileStats) error {
	query := `
		INSERT INTO refine_tile_stats (run_id, tile_index, tile_count, roi_x, roi_y, roi_width, roi_height, target_views, valid_pixels, invalid_pixels, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.Exec(query, runID, s.TileIndex, s.TileCount,
		s.ROIX, s.ROIY, s.ROIWidth, s.ROIHeight,
		s.TargetViews, s.ValidPixels, s.InvalidPixels,
		s.Duration.Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record tile stats: %w", err)
	}
	return nil
}

// GetRun fetches a single run by ID.
func (db *DB) GetRun(runID string) (*Run, error) {
	query := `
		SELECT run_id, ref_view, scale, step_xy, half_nb_depths,
		       COALESCE(padded_memory_mb, 0), status, COALESCE(notes, ''),
		       started_at, finished_at
		FROM refine_runs
		WHERE run_id = ?
	`
	var r Run
	var finished sql.NullTime
	err := db.QueryRow(query, runID).Scan(
		&r.RunID, &r.RefView, &r.Scale, &r.StepXY, &r.HalfNbDepths,
		&r.PaddedMemoryMB, &r.Status, &r.Notes,
		&r.StartedAt, &finished,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %q not found", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}
	if finished.Valid {
		r.FinishedAt = &finished.Time
	}
	return &r, nil
}

// RunTileStats returns the tile rows for a run ordered by tile index.
func (db *DB) RunTileStats(runID string) ([]TileStats, error) {
	query := `
		SELECT tile_index, tile_count, roi_x, roi_y, roi_width, roi_height,
		       target_views, valid_pixels, invalid_pixels, duration_ms
		FROM refine_tile_stats
		WHERE run_id = ?
		ORDER BY tile_index
	`
	rows, err := db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tile stats: %w", err)
	}
	defer rows.Close()

	var stats []TileStats
	for rows.Next() {
		var s TileStats
		var durationMs int64
		err := rows.Scan(&s.TileIndex, &s.TileCount,
			&s.ROIX, &s.ROIY, &s.ROIWidth, &s.ROIHeight,
			&s.TargetViews, &s.ValidPixels, &s.InvalidPixels, &durationMs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tile stats row: %w", err)
		}
		s.Duration = time.Duration(durationMs) * time.Millisecond
		stats = append(stats, s)
	}
	return stats, rows.Err()
}
