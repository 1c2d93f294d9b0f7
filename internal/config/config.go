// Package config holds experiment settings, their defaults and file loading.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"rltcp/internal/agent"
	"rltcp/internal/dataset"
	"rltcp/internal/env"
	"rltcp/internal/fault"
	"rltcp/internal/selection"
)

// Config is one experiment: dataset, vectorization, training and selection.
type Config struct {
	DatasetPath string `yaml:"dataset" json:"dataset"`
	DatasetType string `yaml:"dataset_type" json:"dataset_type"`
	// DataName names output files; derived from DatasetPath when empty.
	DataName string `yaml:"data_name" json:"data_name"`

	WindowSize int     `yaml:"window_size" json:"window_size"`
	Pad        float64 `yaml:"pad" json:"pad"`
	// MaxTestCases caps the feature matrix; 0 sizes it from the dataset.
	MaxTestCases int `yaml:"max_test_cases" json:"max_test_cases"`

	StartCycle   int `yaml:"start_cycle" json:"start_cycle"`
	CycleCount   int `yaml:"cycle_count" json:"cycle_count"`
	MinCycleSize int `yaml:"min_cycle_size" json:"min_cycle_size"`

	Mode         string  `yaml:"mode" json:"mode"`
	Algo         string  `yaml:"algo" json:"algo"`
	Episodes     int     `yaml:"episodes" json:"episodes"`
	Seed         uint64  `yaml:"seed" json:"seed"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	Sigma        float64 `yaml:"sigma" json:"sigma"`

	Selection selection.Config `yaml:"selection" json:"selection"`

	OutputDir  string `yaml:"output_dir" json:"output_dir"`
	SaveModels bool   `yaml:"save_models" json:"save_models"`
	Notes      string `yaml:"notes" json:"notes"`
}

// Default returns the stock experiment settings.
func Default() Config {
	a := agent.DefaultOptions()
	return Config{
		DatasetType:  string(dataset.Simple),
		WindowSize:   10,
		Pad:          -1,
		CycleCount:   100,
		MinCycleSize: 6,
		Mode:         env.Pointwise.String(),
		Algo:         "linear",
		Episodes:     100,
		Seed:         a.Seed,
		LearningRate: a.LearningRate,
		Sigma:        a.Sigma,
		Selection:    selection.DefaultConfig(),
		OutputDir:    "experiments",
	}
}

// LoadFromPath reads a YAML or JSON file over Default(). Format is chosen
// by extension, falling back to content detection.
func LoadFromPath(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fault.Wrap(fault.Config, "read config", err)
	}
	return Load(data, filepath.Ext(path))
}

// Load parses data over Default(). ext is a format hint (".yaml", ".json").
func Load(data []byte, ext string) (Config, error) {
	c := Default()
	ext = strings.ToLower(ext)
	if ext == "" && strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
		ext = ".json"
	}
	var err error
	if ext == ".json" {
		err = json.Unmarshal(data, &c)
	} else {
		err = yaml.Unmarshal(data, &c)
	}
	if err != nil {
		return Config{}, fault.Wrap(fault.Config, "parse config", err)
	}
	return c, nil
}

// Validate checks every field that can be checked without the dataset.
func (c Config) Validate() error {
	if c.DatasetPath == "" {
		return fault.New(fault.Config, "dataset path is required")
	}
	if _, err := dataset.ParseType(c.DatasetType); err != nil {
		return err
	}
	if _, err := env.ParseMode(c.Mode); err != nil {
		return err
	}
	if _, err := agent.New(c.Algo, agent.Options{}); err != nil {
		return err
	}
	if _, err := selection.ParseStrategy(string(c.Selection.Strategy)); err != nil {
		return err
	}
	switch {
	case c.WindowSize <= 0:
		return fault.Newf(fault.Config, "window size must be positive, got %d", c.WindowSize)
	case c.Episodes <= 0:
		return fault.Newf(fault.Config, "episodes must be positive, got %d", c.Episodes)
	case c.CycleCount < 2:
		return fault.Newf(fault.Config, "cycle count must be at least 2, got %d", c.CycleCount)
	case c.StartCycle < 0:
		return fault.Newf(fault.Config, "start cycle must not be negative, got %d", c.StartCycle)
	case c.MaxTestCases < 0:
		return fault.Newf(fault.Config, "max test cases must not be negative, got %d", c.MaxTestCases)
	case c.Selection.TimeRatio < 0 || c.Selection.TimeRatio > 1:
		return fault.Newf(fault.Config, "time ratio must be within [0,1], got %v", c.Selection.TimeRatio)
	case c.Pad > 0 && strings.EqualFold(strings.TrimSpace(c.Algo), "history"):
		// History reads positive history slots as failures.
		return fault.Newf(fault.Config, "history agent needs pad <= 0, got %v", c.Pad)
	}
	return nil
}

// Name returns DataName, or the dataset file name without extension.
func (c Config) Name() string {
	if c.DataName != "" {
		return c.DataName
	}
	base := filepath.Base(c.DatasetPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LogDir is <output>/<mode>/<algo>/<data>_<window>.
func (c Config) LogDir() string {
	return filepath.Join(c.OutputDir, c.Mode, c.Algo, fmt.Sprintf("%s_%d", c.Name(), c.WindowSize))
}

// LogFilename is the per-experiment text log name.
func (c Config) LogFilename() string {
	return fmt.Sprintf("%s_%s_%s_%d_%d_log.txt", c.Mode, c.Algo, c.Name(), c.Episodes, c.WindowSize)
}

// ModelName names the model trained on cycle index i.
func (c Config) ModelName(i int) string {
	return fmt.Sprintf("%s_%s_%s_%d_%d", c.Mode, c.Algo, c.Name(), c.StartCycle, i)
}

// EndCycle is start + cycle_count - 1, clamped to the number of cycles.
func (c Config) EndCycle(cycles int) int {
	return min(c.StartCycle+c.CycleCount-1, cycles)
}
