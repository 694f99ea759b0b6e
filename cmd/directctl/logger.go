package main

import (
	"fmt"
	"os"

	"github.com/directdev/directclient/internal/format"
)

// logLevel mirrors spec §6's recognized log_level values; the accelerator
// library itself ships no logger (internal/engine.Logger is an interface
// the embedding application supplies), so this is that application.
type logLevel int

const (
	levelDebug logLevel = iota
	levelInfo
	levelWarn
	levelError
)

func parseLogLevel(s string) logLevel {
	switch s {
	case "debug":
		return levelDebug
	case "warn":
		return levelWarn
	case "error":
		return levelError
	default:
		return levelInfo
	}
}

// cliLogger is a leveled, color-coded implementation of engine.Logger for
// terminal use, the CLI's analogue of the teacher's format.colors
// traffic-light output.
type cliLogger struct {
	min logLevel
}

func newCLILogger(configuredLevel string) *cliLogger {
	return &cliLogger{min: parseLogLevel(configuredLevel)}
}

func (l *cliLogger) Debugf(format_ string, args ...any) { l.emit(levelDebug, format_, args...) }
func (l *cliLogger) Infof(format_ string, args ...any)  { l.emit(levelInfo, format_, args...) }
func (l *cliLogger) Warnf(format_ string, args ...any)  { l.emit(levelWarn, format_, args...) }
func (l *cliLogger) Errorf(format_ string, args ...any) { l.emit(levelError, format_, args...) }

func (l *cliLogger) emit(level logLevel, f string, args ...any) {
	if level < l.min {
		return
	}
	msg := fmt.Sprintf(f, args...)
	switch level {
	case levelDebug:
		fmt.Fprintln(os.Stderr, format.Dim(msg))
	case levelInfo:
		fmt.Fprintln(os.Stderr, msg)
	case levelWarn:
		fmt.Fprintln(os.Stderr, format.Yellow(msg))
	case levelError:
		fmt.Fprintln(os.Stderr, format.Red(msg))
	}
}
