// Package xlog provides a log.Info/Warn/Error/Crit call convention
// ("msg", "k1", v1, "k2", v2, ...) on top of github.com/go-logr/logr, so
// the rest of this module can log with plain keyed pairs instead of
// building structured fields at every call site.
package xlog

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
)

var root logr.Logger = stdr.New(nil)

// SetLogger replaces the backing logr.Logger, e.g. to route into an
// application's own logging pipeline.
func SetLogger(l logr.Logger) {
	root = l
}

func kv(pairs []interface{}) []interface{} {
	return pairs
}

// Debug logs at verbose level.
func Debug(msg string, ctx ...interface{}) {
	root.V(1).Info(msg, kv(ctx)...)
}

// Info logs a routine, user-relevant event.
func Info(msg string, ctx ...interface{}) {
	root.Info(msg, kv(ctx)...)
}

// Warn logs a recoverable but noteworthy condition.
func Warn(msg string, ctx ...interface{}) {
	root.Info("WARN: "+msg, kv(ctx)...)
}

// Error logs a surfaced failure that the caller will also see returned.
func Error(msg string, ctx ...interface{}) {
	root.Error(fmt.Errorf("%s", msg), msg, kv(ctx)...)
}

// Crit logs an invariant violation and panics. No code in this module
// calls it: the cache reports invariant violations (a dependency cycle,
// for one) to the caller as KindInvariant errors instead.
func Crit(msg string, ctx ...interface{}) {
	root.Error(fmt.Errorf("%s", msg), "FATAL: "+msg, kv(ctx)...)
	panic(fmt.Sprintf("fatal invariant violation: %s %v", msg, ctx))
}
