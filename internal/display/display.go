// Package display contains terminal helpers for CLI commands: the
// screen-clear sequence that directctl watch writes between polls. Colouring
// lives in internal/format.
package display

import "io"

const ClearScreen = "\033[2J\033[H"

// Clear writes ANSI clear screen sequence to w.
func Clear(w io.Writer) {
	_, _ = io.WriteString(w, ClearScreen)
}
