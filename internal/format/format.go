// Package format renders result tables for the terminal, Markdown or CSV.
package format

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"rltcp/internal/fault"
)

// Mode controls the output format.
type Mode int

const (
	ASCII    Mode = iota // Fixed-width terminal tables
	Markdown             // GitHub-flavoured Markdown tables
	CSV                  // Comma-separated, for spreadsheets
)

// ParseMode maps a flag value to a Mode: "table" (or empty), "markdown", "csv".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "table", "ascii":
		return ASCII, nil
	case "markdown", "md":
		return Markdown, nil
	case "csv":
		return CSV, nil
	default:
		return ASCII, fault.Newf(fault.Config, "unknown output format %q (available: table, markdown, csv)", s)
	}
}

// ColumnAlign specifies the horizontal alignment for a column.
type ColumnAlign int

const (
	AlignDefault ColumnAlign = iota
	AlignLeft
	AlignCenter
	AlignRight
)

// ColumnConfig controls per-column formatting.
type ColumnConfig struct {
	Number   int         // 1-based column index
	Align    ColumnAlign // horizontal alignment
	MaxWidth int         // truncate or wrap content beyond this width (0 = unlimited)
}

// TableBuilder is the project-owned table abstraction.
type TableBuilder interface {
	Header(cols ...string)
	// Row appends a data row. Values are converted to strings via fmt Sprint.
	Row(vals ...any)
	// Footer appends a footer row (e.g. means).
	Footer(vals ...any)
	// Columns adds per-column settings; later calls for the same column win.
	Columns(cfgs ...ColumnConfig)
	// Title sets a line printed above the table. CSV output omits it.
	Title(s string)
	// String renders the table in the configured Mode.
	String() string
}

// NewTable returns a TableBuilder that renders in the given Mode.
func NewTable(m Mode) TableBuilder {
	w := table.NewWriter()
	if m == ASCII {
		w.SetStyle(table.StyleLight)
	}
	return &prettyAdapter{writer: w, mode: m}
}

// prettyAdapter wraps go-pretty/v6/table.Writer behind the TableBuilder interface.
type prettyAdapter struct {
	writer table.Writer
	mode   Mode
	title  string
	cols   []table.ColumnConfig
}

func (a *prettyAdapter) Header(cols ...string) {
	row := make(table.Row, len(cols))
	for i, c := range cols {
		row[i] = c
	}
	a.writer.AppendHeader(row)
}

func (a *prettyAdapter) Row(vals ...any) {
	a.writer.AppendRow(table.Row(append([]any{}, vals...)))
}

func (a *prettyAdapter) Footer(vals ...any) {
	a.writer.AppendFooter(table.Row(append([]any{}, vals...)))
}

// Columns accumulates configs: go-pretty's SetColumnConfigs replaces the
// whole set on every call.
func (a *prettyAdapter) Columns(cfgs ...ColumnConfig) {
	for _, c := range cfgs {
		a.cols = append(a.cols, table.ColumnConfig{
			Number:   c.Number,
			Align:    toTextAlign(c.Align),
			WidthMax: c.MaxWidth,
		})
	}
	a.writer.SetColumnConfigs(a.cols)
}

func (a *prettyAdapter) Title(s string) { a.title = s }

func (a *prettyAdapter) String() string {
	var body string
	switch a.mode {
	case Markdown:
		body = a.writer.RenderMarkdown()
	case CSV:
		return a.writer.RenderCSV()
	default:
		body = a.writer.Render()
	}
	if a.title == "" {
		return body
	}
	return a.title + "\n" + body
}

func toTextAlign(a ColumnAlign) text.Align {
	switch a {
	case AlignLeft:
		return text.AlignLeft
	case AlignRight:
		return text.AlignRight
	case AlignCenter:
		return text.AlignCenter
	default:
		return text.AlignDefault
	}
}
