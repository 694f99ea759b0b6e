// Package format provides the terminal color palette shared by directctl's
// subcommands: green/yellow/red traffic-light coloring for latency, block
// lag, and success-rate columns, plus plain bold/dim emphasis.
package format

import (
	"fmt"

	"github.com/fatih/color"
)

var (
	Green  = color.New(color.FgGreen).SprintFunc()  // Fast / healthy
	Red    = color.New(color.FgRed).SprintFunc()    // Slow / failing
	Yellow = color.New(color.FgYellow).SprintFunc() // Warning / moderate
	Bold   = color.New(color.Bold).SprintFunc()     // Labels and emphasis
	Dim    = color.New(color.Faint).SprintFunc()    // Secondary info
)

// ColorLatency applies traffic-light coloring to a latency value in
// milliseconds: green under 100ms, yellow under 300ms, red otherwise.
func ColorLatency(ms int64) string {
	switch {
	case ms < 100:
		return Green(fmt.Sprintf("%dms", ms))
	case ms < 300:
		return Yellow(fmt.Sprintf("%dms", ms))
	default:
		return Red(fmt.Sprintf("%dms", ms))
	}
}

// ColorLag colors how many blocks behind the network leader a provider is:
// a dim dash at the tip, yellow for one block, red for two or more.
func ColorLag(lag uint64) string {
	if lag == 0 {
		return Dim("—")
	}
	if lag <= 1 {
		return Yellow(fmt.Sprintf("-%d", lag))
	}
	return Red(fmt.Sprintf("-%d", lag))
}

// ColorSuccess colors a success-rate percentage: green at 100%, yellow from
// 80-99%, red below that.
func ColorSuccess(success, total int) string {
	pct := float64(success) / float64(total) * 100
	str := fmt.Sprintf("%.0f%%", pct)
	switch {
	case pct >= 100:
		return Green(str)
	case pct >= 80:
		return Yellow(str)
	default:
		return Red(str)
	}
}
