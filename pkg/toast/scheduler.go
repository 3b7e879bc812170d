package toast

import "time"

// Timer is a pending deferred call.
type Timer interface {
	Stop() bool
}

// Scheduler runs fn once after d. The default uses time.AfterFunc; tests
// substitute a manual clock.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) Timer
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, fn)
}
