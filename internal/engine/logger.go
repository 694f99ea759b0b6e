package engine

// Logger is the minimal structured-logging surface the engine needs; embed
// or wrap whatever logging library an application already uses. The only
// implementation the library ships is NopLogger below (cmd/directctl has
// its own stderr logger) — the teacher repo has no logging
// abstraction of its own to generalize, and a client library shouldn't force
// a specific logging stack on its caller (spec's own framing: "a logger
// implementation is supplied by the embedding application").
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// NopLogger discards everything; used when the caller doesn't supply one.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any) {}
func (NopLogger) Infof(string, ...any)  {}
func (NopLogger) Warnf(string, ...any)  {}
func (NopLogger) Errorf(string, ...any) {}
