package clock

import (
	"sync"
	"time"
)

// Clock is a pluggable time source so window and period math stays testable.
type Clock interface {
	Now() time.Time
}

var RealClockProvider = sync.OnceValue(func() Clock {
	return &RealClock{}
})

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}
