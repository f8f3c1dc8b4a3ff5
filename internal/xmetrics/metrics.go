// Package xmetrics provides NewRegisteredMeter / NewRegisteredResettingTimer
// helpers on top of github.com/rcrowley/go-metrics for tracking per-operation
// rates and latencies throughout this module.
package xmetrics

import "github.com/rcrowley/go-metrics"

// Registry is the process-wide registry every meter/timer in this module
// registers itself into.
var Registry = metrics.NewRegistry()

// NewRegisteredMeter creates and registers a new metrics.Meter.
func NewRegisteredMeter(name string) metrics.Meter {
	m := metrics.NewMeter()
	_ = Registry.Register(name, m)
	return m
}

// NewRegisteredResettingTimer creates and registers a new metrics.Timer
// whose snapshot is expected to be drained and reset by the caller once
// per reporting cycle.
func NewRegisteredResettingTimer(name string) metrics.Timer {
	t := metrics.NewTimer()
	_ = Registry.Register(name, t)
	return t
}

// NewRegisteredCounter creates and registers a new metrics.Counter.
func NewRegisteredCounter(name string) metrics.Counter {
	c := metrics.NewCounter()
	_ = Registry.Register(name, c)
	return c
}
