package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/mkarlsen/tesla2mqtt/core/metrics"
	"github.com/mkarlsen/tesla2mqtt/core/model"
)

// PromSink records bridge events in Prometheus metrics.
type PromSink struct {
	polls    *prometheus.CounterVec
	pollDur  prometheus.Histogram
	commands *prometheus.CounterVec
	interval prometheus.Gauge
	battery  prometheus.Gauge
	limit    prometheus.Gauge
	odometer prometheus.Gauge
}

// NewPromSink registers bridge metrics on the default Prometheus registerer.
// The metrics server is started separately.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_polls_total",
			Help: "Total number of vehicle poll attempts",
		}, []string{"success"}),
		pollDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_poll_duration_seconds",
			Help:    "Duration of vehicle poll attempts",
			Buckets: prometheus.DefBuckets,
		}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_commands_total",
			Help: "Total number of inbound commands by outcome",
		}, []string{"command", "success"}),
		interval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_poll_interval_seconds",
			Help: "Delay chosen before the next poll",
		}),
		battery: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vehicle_battery_level_percent",
			Help: "Last reported battery level",
		}),
		limit: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vehicle_charge_limit_percent",
			Help: "Last reported charge limit",
		}),
		odometer: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vehicle_odometer_miles",
			Help: "Last reported odometer reading",
		}),
	}
	var err error
	if s.polls, err = register(reg, s.polls); err != nil {
		return nil, err
	}
	if s.pollDur, err = register(reg, s.pollDur); err != nil {
		return nil, err
	}
	if s.commands, err = register(reg, s.commands); err != nil {
		return nil, err
	}
	if s.interval, err = register(reg, s.interval); err != nil {
		return nil, err
	}
	if s.battery, err = register(reg, s.battery); err != nil {
		return nil, err
	}
	if s.limit, err = register(reg, s.limit); err != nil {
		return nil, err
	}
	if s.odometer, err = register(reg, s.odometer); err != nil {
		return nil, err
	}
	return s, nil
}

// register keeps the already-registered collector when two sinks share a
// registry.
func register[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return are.ExistingCollector.(T), nil
		}
		var zero T
		return zero, err
	}
	return c, nil
}

var _ coremetrics.Sink = (*PromSink)(nil)

// RecordPoll increments the poll counter and observes the duration.
func (s *PromSink) RecordPoll(success bool, d time.Duration) {
	s.polls.WithLabelValues(strconv.FormatBool(success)).Inc()
	s.pollDur.Observe(d.Seconds())
}

// RecordState updates the vehicle gauges.
func (s *PromSink) RecordState(st model.VehicleState) error {
	s.battery.Set(float64(st.BatteryLevel))
	s.limit.Set(float64(st.ChargeLimit))
	s.odometer.Set(st.Odometer)
	return nil
}

// RecordCommand increments the command counter.
func (s *PromSink) RecordCommand(name string, success bool) {
	s.commands.WithLabelValues(name, strconv.FormatBool(success)).Inc()
}

// RecordInterval sets the next-poll gauge.
func (s *PromSink) RecordInterval(d time.Duration) {
	s.interval.Set(d.Seconds())
}
