package store

import (
	"time"

	"github.com/google/uuid"

	"rltcp/internal/fault"
)

// DefaultDBPath is the default relative path for the SQLite DB.
// Open() creates the parent dir (.rltcp) if it does not exist.
const DefaultDBPath = ".rltcp/results.db"

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = fault.New(fault.Input, "not found")

// Run is one experiment run: a mode/algorithm pair over one dataset.
type Run struct {
	ID         string `json:"id"`
	Mode       string `json:"mode"`
	Algo       string `json:"algo"`
	Dataset    string `json:"dataset"`
	Episodes   int    `json:"episodes"`
	WindowSize int    `json:"window_size"`
	Notes      string `json:"notes"`
	// Config is the run's settings encoded as JSON.
	Config     string    `json:"config"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"` // zero while running
}

// Result is one predicted cycle of a run.
type Result struct {
	RunID        string   `json:"run_id"`
	CycleIndex   int      `json:"cycle_index"`
	CycleID      int      `json:"cycle_id"`
	TrainedOn    int      `json:"trained_on"`
	ModelName    string   `json:"model_name"`
	Steps        int      `json:"steps"`
	TrainingMS   float64  `json:"training_ms"`
	TestingMS    float64  `json:"testing_ms"`
	TestCases    int      `json:"test_cases"`
	Failed       int      `json:"failed"`
	Time         float64  `json:"time"`
	OptimalTime  float64  `json:"time_optimal"`
	NAPFD        float64  `json:"napfd"`
	NAPFDOptimal float64  `json:"napfd_optimal"`
	DC           float64  `json:"dc"`
	DCOptimal    float64  `json:"dc_optimal"`
	Verdicts     []int    `json:"verdicts"`
	Selected     []string `json:"selected"`
	OptimalIDs   []string `json:"selected_optimal"`
}

// Store is the persistence facade for runs and their cycle results.
// Implementation is SQLite or in-memory.
type Store interface {
	// CreateRun stores run, assigning an ID when it has none.
	CreateRun(run *Run) error
	FinishRun(id string, at time.Time) error
	GetRun(id string) (*Run, error)
	// ListRuns returns runs newest first.
	ListRuns() ([]*Run, error)
	SaveResult(res *Result) error
	// ListResults returns a run's results by cycle index.
	ListResults(runID string) ([]*Result, error)
	Close() error
}

// NewRunID returns a fresh run identifier.
func NewRunID() string { return uuid.NewString() }
