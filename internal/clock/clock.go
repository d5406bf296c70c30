package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock supplies the current time. Billing code never calls time.Now directly.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

// New returns a clock backed by the wall clock, always in UTC.
func New() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Module("clock",
	fx.Provide(New),
)
