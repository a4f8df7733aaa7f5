package compositor

import "time"

// Timer is a pending scheduled call that can be cancelled.
type Timer interface {
	Stop() bool
}

// Clock abstracts time so layer expiry can be driven deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock returns a Clock backed by the time package.
func SystemClock() Clock {
	return realClock{}
}
