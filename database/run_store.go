// database/run_store.go
package database

import (
	"database/sql"
	"fmt"
	"log"

	"github.com/dwdown/dwdown/models"
)

// RunStore records pipeline runs in the pipeline_runs table so past
// acquisitions can be audited without digging through log files.
//
// Schema:
//
//	CREATE TABLE pipeline_runs (
//	    id          BIGINT AUTO_INCREMENT PRIMARY KEY,
//	    component   VARCHAR(64)  NOT NULL,
//	    started_at  DATETIME     NOT NULL,
//	    finished_at DATETIME     NOT NULL,
//	    succeeded   INT          NOT NULL,
//	    failed      INT          NOT NULL,
//	    corrupted   INT          NOT NULL,
//	    notes       TEXT,
//	    created_at  TIMESTAMP    DEFAULT CURRENT_TIMESTAMP
//	);
type RunStore struct {
	DB *sql.DB
}

// SaveRunSummary inserts one finished run.
func (s *RunStore) SaveRunSummary(run models.RunSummary) error {
	if s == nil || s.DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}

	query := `
		INSERT INTO pipeline_runs (
			component, started_at, finished_at, succeeded, failed, corrupted, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	result, err := s.DB.Exec(query,
		run.Component, run.StartedAt, run.FinishedAt,
		run.Succeeded, run.Failed, run.Corrupted, run.Notes,
	)
	if err != nil {
		return fmt.Errorf("failed to save run summary for %s: %w", run.Component, err)
	}
	if id, err := result.LastInsertId(); err == nil {
		log.Printf("Database: recorded run %d for component %q.", id, run.Component)
	}
	return nil
}

// GetRecentRuns returns the newest runs first, at most limit of them.
func (s *RunStore) GetRecentRuns(limit int) ([]models.RunSummary, error) {
	if s == nil || s.DB == nil {
		return nil, fmt.Errorf("database connection is not initialized")
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.DB.Query(`
		SELECT id, component, started_at, finished_at, succeeded, failed, corrupted, notes
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline_runs: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		var run models.RunSummary
		var notes sql.NullString
		err := rows.Scan(
			&run.ID, &run.Component, &run.StartedAt, &run.FinishedAt,
			&run.Succeeded, &run.Failed, &run.Corrupted, &notes,
		)
		if err != nil {
			log.Printf("Database: failed to scan pipeline_runs row: %v", err)
			continue
		}
		if notes.Valid {
			run.Notes = notes.String
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipeline_runs rows: %w", err)
	}
	return runs, nil
}
