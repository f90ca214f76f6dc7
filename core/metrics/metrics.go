package metrics

import (
	"time"

	"github.com/mkarlsen/tesla2mqtt/core/model"
)

// Sink records bridge events for observability purposes.
type Sink interface {
	// RecordPoll records the outcome and duration of one poll attempt.
	RecordPoll(success bool, d time.Duration)
	// RecordState records a successfully fetched vehicle snapshot.
	RecordState(s model.VehicleState) error
	// RecordCommand records the outcome of an inbound command.
	RecordCommand(name string, success bool)
	// RecordInterval records the delay chosen before the next poll.
	RecordInterval(d time.Duration)
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordPoll(bool, time.Duration)       {}
func (NopSink) RecordState(model.VehicleState) error { return nil }
func (NopSink) RecordCommand(string, bool)           {}
func (NopSink) RecordInterval(time.Duration)         {}
