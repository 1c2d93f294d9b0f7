package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FmtScore formats a metric in [0,1] with four decimals.
func FmtScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// FmtPercent formats a ratio as a percentage with one decimal.
func FmtPercent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}

// FmtDuration formats a duration as "Xm Ys", "Ys" or, below a second, "Nms".
func FmtDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	s := int(d.Seconds())
	if s >= 60 {
		return fmt.Sprintf("%dm %ds", s/60, s%60)
	}
	return fmt.Sprintf("%ds", s)
}

// Millis converts d to fractional milliseconds.
func Millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// JoinIDs joins test ids with "|", the separator used in the log files.
func JoinIDs(ids []string) string { return strings.Join(ids, "|") }

// JoinVerdicts joins verdicts with "|".
func JoinVerdicts(v []int) string {
	parts := make([]string, len(v))
	for i, x := range v {
		parts[i] = strconv.Itoa(x)
	}
	return strings.Join(parts, "|")
}

// Truncate shortens s to maxLen characters, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
