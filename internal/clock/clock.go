package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock abstracts wall-clock time. Quota windows are calendar aligned and
// audit events carry ingest timestamps, so anything time-sensitive reads
// through this interface instead of calling time.Now directly.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the real clock in UTC, the timezone window boundaries
// and retention cutoffs are computed in.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}

var Module = fx.Provide(func() Clock {
	return SystemClock{}
})
