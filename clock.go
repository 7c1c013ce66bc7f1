package main

import "time"

// clock abstracts wall time and one-shot timers so the collection cycle and
// the monitor ticks can be driven by a virtual clock in tests.
type clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) stopper
}

// stopper is the cancellable handle returned by AfterFunc. Stop reports
// whether the call prevented f from running.
type stopper interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) stopper {
	return time.AfterFunc(d, f)
}
