package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mkarlsen/tesla2mqtt/core/bridge"
	"github.com/mkarlsen/tesla2mqtt/core/model"
)

// BridgeConfig defines the topic layout and the poll/retry cadence. The
// interval values are deliberately configuration, not constants: no
// authoritative source fixes them.
type BridgeConfig struct {
	// BaseTopic prefixes every published topic, no trailing slash.
	BaseTopic string `json:"base_topic"`
	// Home is the "lat,lng" of the home zone for the gps state. Empty means
	// the vehicle is always reported home.
	Home string `json:"home"`
	// ChargeLimitMin and ChargeLimitMax bound the charge_limit command.
	ChargeLimitMin int `json:"charge_limit_min"`
	ChargeLimitMax int `json:"charge_limit_max"`
	// ActiveIntervalS is the poll interval while driving or charging.
	ActiveIntervalS int `json:"active_interval_s"`
	// ParkedMultiplier stretches the active interval while parked.
	ParkedMultiplier int `json:"parked_multiplier"`
	// IdleGrowth lets the interval drift up while nothing happens.
	IdleGrowth float64 `json:"idle_growth"`
	// MaxIntervalS caps the poll interval.
	MaxIntervalS int `json:"max_interval_s"`
	// FailureGrowth is the backoff factor after consecutive poll failures.
	FailureGrowth float64 `json:"failure_growth"`
	// MaxFailureBackoffS caps the failure backoff.
	MaxFailureBackoffS int `json:"max_failure_backoff_s"`
	// CommandAttempts bounds retries of transiently failing commands.
	CommandAttempts int `json:"command_attempts"`
	// CommandRetryDelayS is the base delay between command attempts.
	CommandRetryDelayS int `json:"command_retry_delay_s"`
	// DiscoveryDisabled turns off Home Assistant discovery announcements.
	DiscoveryDisabled bool `json:"discovery_disabled"`
	// DiscoveryPrefix is the Home Assistant discovery topic prefix.
	DiscoveryPrefix string `json:"discovery_prefix"`
}

// SetDefaults applies sane defaults.
func (c *BridgeConfig) SetDefaults() {
	if c.BaseTopic == "" {
		c.BaseTopic = "tesla/car"
	}
	if c.ChargeLimitMin == 0 {
		c.ChargeLimitMin = 50
	}
	if c.ChargeLimitMax == 0 {
		c.ChargeLimitMax = 100
	}
	if c.ActiveIntervalS == 0 {
		c.ActiveIntervalS = 15
	}
	if c.ParkedMultiplier == 0 {
		c.ParkedMultiplier = 4
	}
	if c.IdleGrowth == 0 {
		c.IdleGrowth = 1.2
	}
	if c.MaxIntervalS == 0 {
		c.MaxIntervalS = 11 * 60
	}
	if c.FailureGrowth == 0 {
		c.FailureGrowth = 1.5
	}
	if c.MaxFailureBackoffS == 0 {
		c.MaxFailureBackoffS = 3600
	}
	if c.CommandAttempts == 0 {
		c.CommandAttempts = 3
	}
	if c.CommandRetryDelayS == 0 {
		c.CommandRetryDelayS = 5
	}
	if c.DiscoveryPrefix == "" {
		c.DiscoveryPrefix = "homeassistant"
	}
}

// Validate checks field consistency.
func (c BridgeConfig) Validate() error {
	if strings.HasSuffix(c.BaseTopic, "/") {
		return fmt.Errorf("base_topic must not end with /")
	}
	if c.ChargeLimitMin < 0 || c.ChargeLimitMax > 100 || c.ChargeLimitMin >= c.ChargeLimitMax {
		return fmt.Errorf("charge limit bounds [%d,%d] invalid", c.ChargeLimitMin, c.ChargeLimitMax)
	}
	if c.IdleGrowth < 1 || c.FailureGrowth < 1 {
		return fmt.Errorf("growth factors must be >= 1")
	}
	if c.MaxIntervalS < c.ActiveIntervalS {
		return fmt.Errorf("max_interval_s must be >= active_interval_s")
	}
	if c.CommandAttempts < 1 {
		return fmt.Errorf("command_attempts must be >= 1")
	}
	if _, err := c.HomeLatLng(); err != nil {
		return err
	}
	return nil
}

// Timing converts the config into the loop's timing parameters.
func (c BridgeConfig) Timing() bridge.Timing {
	return bridge.Timing{
		ActiveInterval:    time.Duration(c.ActiveIntervalS) * time.Second,
		ParkedMultiplier:  c.ParkedMultiplier,
		IdleGrowth:        c.IdleGrowth,
		MaxInterval:       time.Duration(c.MaxIntervalS) * time.Second,
		FailureGrowth:     c.FailureGrowth,
		MaxFailureBackoff: time.Duration(c.MaxFailureBackoffS) * time.Second,
		CommandAttempts:   c.CommandAttempts,
		CommandRetryDelay: time.Duration(c.CommandRetryDelayS) * time.Second,
	}
}

// HomeLatLng parses the Home field. Nil with no error when unset.
func (c BridgeConfig) HomeLatLng() (*model.LatLng, error) {
	if c.Home == "" {
		return nil, nil
	}
	parts := strings.Split(c.Home, ",")
	if len(parts) != 2 {
		return nil, fmt.Errorf("home must be \"lat,lng\", got %q", c.Home)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, fmt.Errorf("home latitude: %w", err)
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, fmt.Errorf("home longitude: %w", err)
	}
	return &model.LatLng{Lat: lat, Lng: lng}, nil
}
