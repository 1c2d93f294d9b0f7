package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"rltcp/internal/fault"
	"rltcp/internal/selection"
)

func TestDefault(t *testing.T) {
	c := Default()
	if c.WindowSize != 10 || c.Pad != -1 || c.CycleCount != 100 || c.Episodes != 100 {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.Mode != "pointwise" || c.Algo != "linear" || c.MinCycleSize != 6 {
		t.Errorf("unexpected defaults: %+v", c)
	}
	if c.Selection != selection.DefaultConfig() {
		t.Errorf("Selection = %+v", c.Selection)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	yml := filepath.Join(dir, "exp.yaml")
	os.WriteFile(yml, []byte(`
dataset: data/paintcontrol.csv
mode: listwise
episodes: 20
selection:
  strategy: time-budget
  time_ratio: 0.5
`), 0o644)
	js := filepath.Join(dir, "exp.json")
	os.WriteFile(js, []byte(`{"dataset":"data/paintcontrol.csv","mode":"listwise","episodes":20,
"selection":{"strategy":"time-budget","time_ratio":0.5}}`), 0o644)

	for _, path := range []string{yml, js} {
		t.Run(filepath.Ext(path), func(t *testing.T) {
			c, err := LoadFromPath(path)
			if err != nil {
				t.Fatalf("LoadFromPath: %v", err)
			}
			want := Default()
			want.DatasetPath = "data/paintcontrol.csv"
			want.Mode = "listwise"
			want.Episodes = 20
			want.Selection = selection.Config{Strategy: selection.TimeBudget, TimeRatio: 0.5}
			if diff := cmp.Diff(want, c); diff != "" {
				t.Errorf("config (-want +got):\n%s", diff)
			}
			if err := c.Validate(); err != nil {
				t.Errorf("Validate: %v", err)
			}
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	if _, err := Load([]byte("mode: ["), ".yaml"); fault.KindOf(err) != fault.Config {
		t.Errorf("bad yaml err = %v", err)
	}
	if _, err := LoadFromPath(filepath.Join(t.TempDir(), "missing.yaml")); fault.KindOf(err) != fault.Config {
		t.Errorf("missing file err = %v", err)
	}
}

func TestValidate(t *testing.T) {
	valid := Default()
	valid.DatasetPath = "x.csv"
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no dataset", func(c *Config) { c.DatasetPath = "" }},
		{"bad mode", func(c *Config) { c.Mode = "treewise" }},
		{"bad algo", func(c *Config) { c.Algo = "dqn" }},
		{"bad type", func(c *Config) { c.DatasetType = "complex" }},
		{"bad strategy", func(c *Config) { c.Selection.Strategy = "top-k" }},
		{"zero window", func(c *Config) { c.WindowSize = 0 }},
		{"zero episodes", func(c *Config) { c.Episodes = 0 }},
		{"one cycle", func(c *Config) { c.CycleCount = 1 }},
		{"ratio above one", func(c *Config) { c.Selection.TimeRatio = 1.5 }},
		{"history with positive pad", func(c *Config) { c.Algo = "history"; c.Pad = 9 }},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid config: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			if err := c.Validate(); fault.KindOf(err) != fault.Config {
				t.Errorf("err = %v, want config error", err)
			}
		})
	}
}

func TestValidate_PadForLearnedAgents(t *testing.T) {
	c := Default()
	c.DatasetPath = "x.csv"
	c.Pad = 9
	if err := c.Validate(); err != nil {
		t.Errorf("linear with pad 9: %v", err)
	}
	c.Algo = "history"
	c.Pad = 0
	if err := c.Validate(); err != nil {
		t.Errorf("history with pad 0: %v", err)
	}
}

func TestNaming(t *testing.T) {
	c := Default()
	c.DatasetPath = "/data/tc_data_paintcontrol.csv"
	c.StartCycle = 2
	if got := c.Name(); got != "tc_data_paintcontrol" {
		t.Errorf("Name = %q", got)
	}
	if got, want := c.LogDir(), filepath.Join("experiments", "pointwise", "linear", "tc_data_paintcontrol_10"); got != want {
		t.Errorf("LogDir = %q, want %q", got, want)
	}
	if got := c.LogFilename(); got != "pointwise_linear_tc_data_paintcontrol_100_10_log.txt" {
		t.Errorf("LogFilename = %q", got)
	}
	if got := c.ModelName(7); got != "pointwise_linear_tc_data_paintcontrol_2_7" {
		t.Errorf("ModelName = %q", got)
	}
	if got := c.EndCycle(500); got != 101 {
		t.Errorf("EndCycle(500) = %d, want 101", got)
	}
	if got := c.EndCycle(40); got != 40 {
		t.Errorf("EndCycle(40) = %d, want 40", got)
	}
}
