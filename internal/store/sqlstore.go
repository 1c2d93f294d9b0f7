package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"rltcp/internal/fault"

	_ "modernc.org/sqlite"
)

// timeFormat is a fixed-width ISO 8601 layout so stored times sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeFormat) }

// nullStr converts a sql.NullString to a plain string (empty if null).
func nullStr(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

func parseTime(ns sql.NullString) (time.Time, error) {
	if !ns.Valid || ns.String == "" {
		return time.Time{}, nil
	}
	return time.Parse(timeFormat, ns.String)
}

// SqlStore implements Store with SQLite.
type SqlStore struct {
	db *sql.DB
}

// Open opens or creates a SQLite DB at path and runs migrations.
// Creates the parent directory (e.g. .rltcp) if it does not exist.
func Open(path string) (*SqlStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// One writer at a time; parallel runs share the file.
	db.SetMaxOpenConns(1)
	s := &SqlStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SqlStore) migrate() error {
	var tableCount int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableCount)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableCount == 0 {
		return s.freshInstall()
	}

	var v int
	err = s.db.QueryRow("SELECT version FROM schema_version LIMIT 1").Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return s.freshInstall()
	}
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v != schemaVersionV1 {
		return fmt.Errorf("unknown schema version %d", v)
	}
	return nil
}

func (s *SqlStore) freshInstall() error {
	if _, err := s.db.Exec(schemaV1); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := s.db.Exec("INSERT INTO schema_version(version) VALUES(?)", schemaVersionV1); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SqlStore) Close() error {
	return s.db.Close()
}

func (s *SqlStore) CreateRun(run *Run) error {
	if run == nil {
		return errors.New("run is nil")
	}
	if run.ID == "" {
		run.ID = NewRunID()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO runs(id, mode, algo, dataset, episodes, window_size, notes, config, started_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Mode, run.Algo, run.Dataset, run.Episodes, run.WindowSize, run.Notes, run.Config,
		formatTime(run.StartedAt),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (s *SqlStore) FinishRun(id string, at time.Time) error {
	res, err := s.db.Exec("UPDATE runs SET finished_at = ? WHERE id = ?", formatTime(at), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.Wrap(fault.Input, "run "+id, ErrNotFound)
	}
	return nil
}

const runColumns = `id, mode, algo, dataset, episodes, window_size, notes, config, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var notes, cfg, started, finished sql.NullString
	if err := row.Scan(&r.ID, &r.Mode, &r.Algo, &r.Dataset, &r.Episodes, &r.WindowSize,
		&notes, &cfg, &started, &finished); err != nil {
		return nil, err
	}
	r.Notes, r.Config = nullStr(notes), nullStr(cfg)
	var err error
	if r.StartedAt, err = parseTime(started); err != nil {
		return nil, fmt.Errorf("parse started_at: %w", err)
	}
	if r.FinishedAt, err = parseTime(finished); err != nil {
		return nil, fmt.Errorf("parse finished_at: %w", err)
	}
	return &r, nil
}

func (s *SqlStore) GetRun(id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fault.Wrap(fault.Input, "run "+id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	return r, nil
}

func (s *SqlStore) ListRuns() ([]*Run, error) {
	rows, err := s.db.Query("SELECT " + runColumns + " FROM runs ORDER BY started_at DESC, id")
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()
	var out []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SqlStore) SaveResult(res *Result) error {
	if res == nil {
		return errors.New("result is nil")
	}
	verdicts, _ := json.Marshal(orEmpty(res.Verdicts))
	selected, _ := json.Marshal(orEmpty(res.Selected))
	optimal, _ := json.Marshal(orEmpty(res.OptimalIDs))
	_, err := s.db.Exec(
		`INSERT INTO cycle_results(run_id, cycle_index, cycle_id, trained_on, model_name, steps,
		   training_ms, testing_ms, test_cases, failed, time, time_optimal,
		   napfd, napfd_optimal, dc, dc_optimal, verdicts, selected, optimal_ids)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, res.CycleIndex, res.CycleID, res.TrainedOn, res.ModelName, res.Steps,
		res.TrainingMS, res.TestingMS, res.TestCases, res.Failed, res.Time, res.OptimalTime,
		res.NAPFD, res.NAPFDOptimal, res.DC, res.DCOptimal, string(verdicts), string(selected), string(optimal),
	)
	if err != nil {
		return fmt.Errorf("insert cycle result: %w", err)
	}
	return nil
}

func (s *SqlStore) ListResults(runID string) ([]*Result, error) {
	rows, err := s.db.Query(
		`SELECT run_id, cycle_index, cycle_id, trained_on, model_name, steps,
		        training_ms, testing_ms, test_cases, failed, time, time_optimal,
		        napfd, napfd_optimal, dc, dc_optimal, verdicts, selected, optimal_ids
		 FROM cycle_results WHERE run_id = ? ORDER BY cycle_index`, runID)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()
	var out []*Result
	for rows.Next() {
		var r Result
		var verdicts, selected, optimal string
		if err := rows.Scan(&r.RunID, &r.CycleIndex, &r.CycleID, &r.TrainedOn, &r.ModelName, &r.Steps,
			&r.TrainingMS, &r.TestingMS, &r.TestCases, &r.Failed, &r.Time, &r.OptimalTime,
			&r.NAPFD, &r.NAPFDOptimal, &r.DC, &r.DCOptimal, &verdicts, &selected, &optimal); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal([]byte(verdicts), &r.Verdicts); err != nil {
			return nil, fmt.Errorf("decode verdicts: %w", err)
		}
		if err := json.Unmarshal([]byte(selected), &r.Selected); err != nil {
			return nil, fmt.Errorf("decode selected: %w", err)
		}
		if err := json.Unmarshal([]byte(optimal), &r.OptimalIDs); err != nil {
			return nil, fmt.Errorf("decode optimal ids: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func orEmpty[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
