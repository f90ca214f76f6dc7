package bridge

import (
	"time"

	"github.com/mkarlsen/tesla2mqtt/core/model"
)

// Timing groups the poll cadence and retry knobs. None of the values are
// contractual, they all come from configuration.
type Timing struct {
	// ActiveInterval is the poll interval while the vehicle is driving or
	// charging, and the base for the failure backoff.
	ActiveInterval time.Duration
	// ParkedMultiplier stretches the active interval when the car is parked
	// but still charging.
	ParkedMultiplier int
	// IdleGrowth is the factor the interval drifts up by while nothing
	// happens, until MaxInterval.
	IdleGrowth float64
	// MaxInterval caps the poll interval so a sleeping car is still probed
	// occasionally without waking it.
	MaxInterval time.Duration
	// FailureGrowth is the multiplicative backoff factor after consecutive
	// poll failures.
	FailureGrowth float64
	// MaxFailureBackoff caps the failure backoff.
	MaxFailureBackoff time.Duration
	// CommandAttempts bounds retries of a transiently failing command.
	CommandAttempts int
	// CommandRetryDelay is the base delay between command attempts, scaled
	// linearly by the attempt number.
	CommandRetryDelay time.Duration
}

// NextInterval returns the delay before the next poll as a pure function of
// the fetched state. hadCommand forces the short interval so the effect of a
// just-executed command is observed quickly.
func NextInterval(s model.VehicleState, hadCommand bool, prev time.Duration, t Timing) time.Duration {
	if hadCommand || s.Active() {
		d := t.ActiveInterval
		if s.ShiftState == model.ShiftParked && t.ParkedMultiplier > 1 {
			d *= time.Duration(t.ParkedMultiplier)
		}
		return d
	}
	if prev < t.ActiveInterval {
		prev = t.ActiveInterval
	}
	d := time.Duration(float64(prev) * t.IdleGrowth)
	if d > t.MaxInterval {
		d = t.MaxInterval
	}
	return d
}

// FailureBackoff returns the delay before retrying after the given number of
// consecutive poll failures. Strictly increasing until the cap.
func FailureBackoff(consecutive int, t Timing) time.Duration {
	if consecutive < 1 {
		consecutive = 1
	}
	d := float64(t.ActiveInterval)
	for i := 1; i < consecutive; i++ {
		d *= t.FailureGrowth
		if time.Duration(d) >= t.MaxFailureBackoff {
			return t.MaxFailureBackoff
		}
	}
	return time.Duration(d)
}
