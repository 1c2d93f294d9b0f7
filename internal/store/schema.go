package store

// schemaVersionV1 is the only schema so far.
const schemaVersionV1 = 1

var schemaV1 = `
CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL);

CREATE TABLE IF NOT EXISTS runs (
	id          TEXT PRIMARY KEY,
	mode        TEXT NOT NULL,
	algo        TEXT NOT NULL,
	dataset     TEXT NOT NULL,
	episodes    INTEGER NOT NULL,
	window_size INTEGER NOT NULL,
	notes       TEXT,
	config      TEXT,
	started_at  TEXT NOT NULL,
	finished_at TEXT
);

CREATE TABLE IF NOT EXISTS cycle_results (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        TEXT NOT NULL REFERENCES runs(id),
	cycle_index   INTEGER NOT NULL,
	cycle_id      INTEGER NOT NULL,
	trained_on    INTEGER NOT NULL,
	model_name    TEXT NOT NULL,
	steps         INTEGER NOT NULL,
	training_ms   REAL NOT NULL,
	testing_ms    REAL NOT NULL,
	test_cases    INTEGER NOT NULL,
	failed        INTEGER NOT NULL,
	time          REAL NOT NULL,
	time_optimal  REAL NOT NULL,
	napfd         REAL NOT NULL,
	napfd_optimal REAL NOT NULL,
	dc            REAL NOT NULL,
	dc_optimal    REAL NOT NULL,
	verdicts      TEXT NOT NULL,
	selected      TEXT NOT NULL,
	optimal_ids   TEXT NOT NULL,
	UNIQUE(run_id, cycle_index)
);

CREATE INDEX IF NOT EXISTS idx_cycle_results_run ON cycle_results(run_id);
`
