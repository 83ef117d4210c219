// Package trace supplies the explicit tracing context that DESIGN NOTES §9
// substitutes for the original source's process-wide debug task stack: "a
// tracing context passed or implicit via thread-local; it carries no
// correctness weight." Phylum attaches a *Context explicitly through the
// WithTrace methods of the types that want to log (Volume, chain.Chain,
// tree.Tree) rather than reaching for a global, and never lets tracing
// state influence a
// returned value or an on-flash byte.
package trace

import (
	"os"

	"github.com/rs/zerolog"
)

// Context wraps a zerolog.Logger scoped to one subsystem.
type Context struct {
	log zerolog.Logger
}

var background = New(zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
	With().Timestamp().Logger())

// Background returns the package-default tracing context, used when a
// caller has no opinion about where logs go.
func Background() *Context { return background }

// New wraps an already-configured zerolog.Logger.
func New(l zerolog.Logger) *Context {
	return &Context{log: l}
}

// With returns a child context tagging every subsequent log line with the
// given component name, mirroring the nested task names the original
// task_stack pushed and popped around each call.
func (c *Context) With(component string) *Context {
	if c == nil {
		return Background().With(component)
	}
	return &Context{log: c.log.With().Str("component", component).Logger()}
}

// Debugf logs at debug level. Never called from a hot path that matters
// for correctness — see the package doc.
func (c *Context) Debugf(format string, args ...any) {
	if c == nil {
		c = Background()
	}
	c.log.Debug().Msgf(format, args...)
}

// Errorf logs at error level, typically just before an operation returns
// a *phylumerr.Error to its caller.
func (c *Context) Errorf(err error, format string, args ...any) {
	if c == nil {
		c = Background()
	}
	c.log.Error().Err(err).Msgf(format, args...)
}

// Logger exposes the underlying zerolog.Logger for callers that want the
// full builder API.
func (c *Context) Logger() zerolog.Logger {
	if c == nil {
		return Background().log
	}
	return c.log
}
