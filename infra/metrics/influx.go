package metrics

import (
	"context"
	"net/http"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/mkarlsen/tesla2mqtt/core/metrics"
	"github.com/mkarlsen/tesla2mqtt/core/model"
	"github.com/mkarlsen/tesla2mqtt/infra/logger"
)

// InfluxSink writes vehicle state samples to an InfluxDB instance using the
// official client. Poll and command counters stay in Prometheus; Influx only
// carries the time series worth graphing.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx_sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails, so a down Influx never blocks the
// bridge.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.Sink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

var _ coremetrics.Sink = (*InfluxSink)(nil)

func (s *InfluxSink) RecordPoll(bool, time.Duration) {}

// RecordState writes one vehicle_state point per successful poll.
func (s *InfluxSink) RecordState(st model.VehicleState) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("vehicle_state").
		AddTag("charging_state", st.Charging).
		AddField("battery_level", st.BatteryLevel).
		AddField("charge_limit", st.ChargeLimit).
		AddField("time_to_full", st.TimeToFullCharge).
		AddField("odometer", st.Odometer).
		AddField("speed", st.Speed).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

func (s *InfluxSink) RecordCommand(string, bool) {}

func (s *InfluxSink) RecordInterval(time.Duration) {}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }
