// Package app wires the bridge together from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/mkarlsen/tesla2mqtt/config"
	"github.com/mkarlsen/tesla2mqtt/core/bridge"
	coremetrics "github.com/mkarlsen/tesla2mqtt/core/metrics"
	"github.com/mkarlsen/tesla2mqtt/core/topics"
	"github.com/mkarlsen/tesla2mqtt/infra/logger"
	"github.com/mkarlsen/tesla2mqtt/infra/metrics"
	"github.com/mkarlsen/tesla2mqtt/infra/mqtt"
	"github.com/mkarlsen/tesla2mqtt/infra/tesla"
)

// Service owns the bridge loop and its collaborators.
type Service struct {
	Loop *bridge.Loop

	cfg    *config.Config
	mapper *topics.Mapper
	client *mqtt.PahoClient
	source *tesla.Client
	log    logger.Logger
	closer []func()
}

// New creates a Service from the configuration.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	logg := logger.New("service")

	home, err := cfg.Bridge.HomeLatLng()
	if err != nil {
		return nil, err
	}
	mapper := topics.New(topics.Config{
		BaseTopic:      cfg.Bridge.BaseTopic,
		Home:           home,
		ChargeLimitMin: cfg.Bridge.ChargeLimitMin,
		ChargeLimitMax: cfg.Bridge.ChargeLimitMax,
	})

	mqttCfg := cfg.MQTT
	if mqttCfg.LWTTopic == "" {
		// Let the broker retract liveness if the bridge dies.
		mqttCfg.LWTTopic = mapper.StatusTopic()
		mqttCfg.LWTPayload = topics.StatusOffline
	}
	client, err := mqtt.NewPahoClient(mqttCfg)
	if err != nil {
		return nil, fmt.Errorf("mqtt client: %w", err)
	}

	source, err := tesla.New(ctx, cfg.Vehicle)
	if err != nil {
		client.Disconnect()
		return nil, fmt.Errorf("tesla client: %w", err)
	}

	svc := &Service{cfg: cfg, mapper: mapper, client: client, source: source, log: logg}

	var sinks []coremetrics.Sink
	if cfg.Metrics.PrometheusEnabled {
		sink, err := metrics.NewPromSink()
		if err != nil {
			client.Disconnect()
			return nil, fmt.Errorf("prom sink: %w", err)
		}
		sinks = append(sinks, sink)
	}
	if cfg.Metrics.InfluxEnabled {
		sink := metrics.NewInfluxSinkWithFallback(
			cfg.Metrics.InfluxURL, cfg.Metrics.InfluxToken, cfg.Metrics.InfluxOrg, cfg.Metrics.InfluxBucket)
		if is, ok := sink.(*metrics.InfluxSink); ok {
			svc.closer = append(svc.closer, is.Close)
		}
		sinks = append(sinks, sink)
	}
	var sink coremetrics.Sink
	if len(sinks) == 1 {
		sink = sinks[0]
	} else if len(sinks) > 1 {
		sink = coremetrics.NewMultiSink(sinks...)
	}

	svc.Loop = bridge.New(source, mapper, client, cfg.Bridge.Timing(), sink, logger.New("bridge"))
	return svc, nil
}

// Run starts the service and blocks until the context is cancelled or the
// loop hits a fatal error.
func (s *Service) Run(ctx context.Context) error {
	if err := s.client.Subscribe(s.mapper.CommandFilter(), s.Loop.HandleMessage); err != nil {
		return fmt.Errorf("subscribe commands: %w", err)
	}
	if !s.cfg.Bridge.DiscoveryDisabled {
		go s.announce(ctx)
	}
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}
	return s.Loop.Run(ctx)
}

// announce publishes Home Assistant discovery configs once the vehicle
// identity is known. Best effort, the bridge works without it.
func (s *Service) announce(ctx context.Context) {
	info, err := s.source.VehicleInfo(ctx)
	if err != nil {
		s.log.Warnf("discovery skipped, vehicle info unavailable: %v", err)
		return
	}
	disc := mqtt.NewDiscovery(mqtt.DiscoveryConfig{
		Prefix:         s.cfg.Bridge.DiscoveryPrefix,
		BaseTopic:      s.cfg.Bridge.BaseTopic,
		ChargeLimitMin: s.cfg.Bridge.ChargeLimitMin,
		ChargeLimitMax: s.cfg.Bridge.ChargeLimitMax,
	}, s.client)
	if err := disc.Announce(mqtt.VehicleInfo{VIN: info.VIN, Name: info.Name, Model: info.Model}); err != nil {
		s.log.Warnf("discovery announce: %v", err)
	}
}

// Close releases resources held by the service. The command subscription is
// dropped before the connection so no handler fires into a closed loop.
func (s *Service) Close() error {
	s.Loop.Close()
	if err := s.client.Unsubscribe(s.mapper.CommandFilter()); err != nil {
		s.log.Warnf("unsubscribe: %v", err)
	}
	s.client.Disconnect()
	for _, c := range s.closer {
		c()
	}
	return nil
}
