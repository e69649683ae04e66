package permit

import "github.com/oarkflow/permit/logger"

// Logger is re-exported so callers need not import the logger package.
type Logger = logger.Logger

// WithLogger installs a Logger on the Evaluator.
func WithLogger(l logger.Logger) Option {
	return func(e *Evaluator) error {
		if l == nil {
			l = logger.NewNullLogger()
		}
		e.logger = l
		return nil
	}
}

// WithTraceIDFunc installs a custom trace ID generator; each check and
// remote call is logged under a fresh ID.
func WithTraceIDFunc(f logger.TraceIDFunc) Option {
	return func(e *Evaluator) error {
		if f != nil {
			e.traceIDFunc = f
		}
		return nil
	}
}
