package metrics

import (
	"errors"
	"time"

	"github.com/mkarlsen/tesla2mqtt/core/model"
)

// MultiSink fans events out to several sinks.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink creates a sink forwarding to all the given sinks.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) RecordPoll(success bool, d time.Duration) {
	for _, s := range m.sinks {
		s.RecordPoll(success, d)
	}
}

func (m *MultiSink) RecordState(st model.VehicleState) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.RecordState(st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiSink) RecordCommand(name string, success bool) {
	for _, s := range m.sinks {
		s.RecordCommand(name, success)
	}
}

func (m *MultiSink) RecordInterval(d time.Duration) {
	for _, s := range m.sinks {
		s.RecordInterval(d)
	}
}
