// Package dataset loads CI history CSV files and groups their rows into
// cycle records.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"rltcp/internal/cycle"
	"rltcp/internal/fault"
)

// Type is the dataset flavour.
type Type string

const (
	// Simple datasets carry history, duration and grouping columns only.
	Simple Type = "simple"
	// Enriched datasets add ComplexityMetrics and OtherMetrics list columns.
	Enriched Type = "enriched"
)

// ParseType parses a dataset type name.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case Simple:
		return Simple, nil
	case Enriched:
		return Enriched, nil
	default:
		return "", fault.Newf(fault.Config, "invalid dataset type %q (available: simple, enriched)", s)
	}
}

var simpleColumns = []string{"Id", "Name", "Duration", "Verdict", "Cycle", "LastResults", "DurationGroup", "TimeGroup"}

var enrichedColumns = []string{"ComplexityMetrics", "OtherMetrics"}

// Row is one parsed CSV line.
type Row struct {
	Line     int
	Cycle    int
	TestCase cycle.TestCase
}

// Load reads the CSV file at path.
func Load(path string, typ Type) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(fault.Input, "open dataset", err)
	}
	defer f.Close()
	rows, err := Read(f, typ)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// Read parses CSV from r. Columns are located by header name; extra columns
// are ignored.
func Read(r io.Reader, typ Type) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fault.New(fault.Input, "dataset is empty")
		}
		return nil, fault.Wrap(fault.Input, "read header", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
	}
	want := simpleColumns
	if typ == Enriched {
		want = append(append([]string{}, simpleColumns...), enrichedColumns...)
	}
	for _, c := range want {
		if _, ok := col[c]; !ok {
			return nil, fault.Newf(fault.Input, "missing column %q", c)
		}
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fault.Wrap(fault.Input, fmt.Sprintf("line %d", line), err)
		}
		row, err := parseRow(rec, col, typ)
		if err != nil {
			return nil, fault.Wrap(fault.Input, fmt.Sprintf("line %d", line), err)
		}
		row.Line = line
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(rec []string, col map[string]int, typ Type) (Row, error) {
	get := func(name string) string {
		i := col[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	var (
		row Row
		err error
	)
	tc := &row.TestCase
	tc.TestID = get("Id")
	tc.TestSuite = get("Name")
	if tc.AvgExecTime, err = strconv.ParseFloat(get("Duration"), 64); err != nil {
		return row, fmt.Errorf("Duration: %w", err)
	}
	tc.LastExecTime = tc.AvgExecTime
	if tc.Verdict, err = parseInt(get("Verdict")); err != nil {
		return row, fmt.Errorf("Verdict: %w", err)
	}
	if err := cycle.CheckVerdict(tc.Verdict); err != nil {
		return row, fmt.Errorf("Verdict: %w", err)
	}
	if row.Cycle, err = parseInt(get("Cycle")); err != nil {
		return row, fmt.Errorf("Cycle: %w", err)
	}
	if tc.FailureHistory, err = ParseHistory(get("LastResults")); err != nil {
		return row, fmt.Errorf("LastResults: %w", err)
	}
	if tc.DurationGroup, err = parseInt(get("DurationGroup")); err != nil {
		return row, fmt.Errorf("DurationGroup: %w", err)
	}
	if tc.TimeGroup, err = parseInt(get("TimeGroup")); err != nil {
		return row, fmt.Errorf("TimeGroup: %w", err)
	}
	if typ == Enriched {
		if tc.ComplexityMetrics, err = ParseFloats(get("ComplexityMetrics")); err != nil {
			return row, fmt.Errorf("ComplexityMetrics: %w", err)
		}
		if tc.OtherMetrics, err = ParseFloats(get("OtherMetrics")); err != nil {
			return row, fmt.Errorf("OtherMetrics: %w", err)
		}
	}
	tc.CycleID = row.Cycle
	return row, nil
}

// parseInt accepts integers written as floats ("3.0").
func parseInt(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// ParseHistory parses a bracketed verdict list such as "[1,0,0]". Empty input
// and "[]" yield an empty history; entries other than 0 and 1 are rejected.
func ParseHistory(s string) ([]int, error) {
	parts := splitList(s)
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fault.Wrap(fault.Input, fmt.Sprintf("history %q", s), err)
		}
		if err := cycle.CheckVerdict(n); err != nil {
			return nil, fmt.Errorf("history %q: %w", s, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// ParseFloats parses a bracketed number list such as "[0.5, 3]".
func ParseFloats(s string) ([]float64, error) {
	parts := splitList(s)
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fault.Wrap(fault.Input, fmt.Sprintf("list %q", s), err)
		}
		out = append(out, f)
	}
	return out, nil
}
