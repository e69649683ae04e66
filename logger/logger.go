package logger

// Logger is the structured logging surface used by the evaluator and the
// stores. keyvals alternate between a key and its value.
type Logger interface {
	Error(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}

// TraceIDFunc generates a correlation ID for one check or remote call.
type TraceIDFunc func() string // safe for concurrent calls
