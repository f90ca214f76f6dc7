package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const minimalYAML = `
mqtt:
  broker: tcp://localhost:1883
vehicle:
  token_file: /tmp/token.json
`

func TestLoadYAMLDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.yaml", minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, "tcp://localhost:1883", cfg.MQTT.Broker)
	assert.Equal(t, "tesla2mqtt", cfg.MQTT.ClientID)
	assert.Equal(t, "tesla/car", cfg.Bridge.BaseTopic)
	assert.Equal(t, 50, cfg.Bridge.ChargeLimitMin)
	assert.Equal(t, 100, cfg.Bridge.ChargeLimitMax)
	assert.Equal(t, 15, cfg.Bridge.ActiveIntervalS)
	assert.Equal(t, 11*60, cfg.Bridge.MaxIntervalS)
	assert.Equal(t, "homeassistant", cfg.Bridge.DiscoveryPrefix)
	assert.Equal(t, "https://owner-api.teslamotors.com", cfg.Vehicle.APIBase)
	assert.Equal(t, ":9090", cfg.Metrics.PrometheusPort)
}

func TestLoadJSON(t *testing.T) {
	cfg, err := Load(writeConfig(t, "config.json",
		`{"mqtt":{"broker":"tcp://b:1883"},"vehicle":{"token_file":"/tmp/t.json"},"bridge":{"base_topic":"home/tesla"}}`))
	require.NoError(t, err)
	assert.Equal(t, "home/tesla", cfg.Bridge.BaseTopic)
}

func TestLoadUnsupportedFormat(t *testing.T) {
	_, err := Load(writeConfig(t, "config.toml", "broker = 1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config format")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TESLA_MQTT__BROKER", "tcp://override:1883")
	t.Setenv("TESLA_BRIDGE__BASE_TOPIC", "env/tesla")
	t.Setenv("TESLA_VEHICLE__VIN", "5YJ3E1EA1NF000000")

	cfg, err := Load(writeConfig(t, "config.yaml", minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "tcp://override:1883", cfg.MQTT.Broker)
	assert.Equal(t, "env/tesla", cfg.Bridge.BaseTopic)
	assert.Equal(t, "5YJ3E1EA1NF000000", cfg.Vehicle.VIN)
}

func TestLoadMissingBroker(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", "vehicle:\n  token_file: /tmp/t.json\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker")
}

func TestLoadMissingTokenFile(t *testing.T) {
	_, err := Load(writeConfig(t, "config.yaml", "mqtt:\n  broker: tcp://localhost:1883\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token_file")
}

func TestBridgeValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*BridgeConfig)
	}{
		{"trailing slash", func(c *BridgeConfig) { c.BaseTopic = "tesla/car/" }},
		{"inverted limits", func(c *BridgeConfig) { c.ChargeLimitMin = 90; c.ChargeLimitMax = 80 }},
		{"growth below one", func(c *BridgeConfig) { c.IdleGrowth = 0.5 }},
		{"cap below active", func(c *BridgeConfig) { c.MaxIntervalS = 5 }},
		{"bad home", func(c *BridgeConfig) { c.Home = "48.85" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var c BridgeConfig
			c.SetDefaults()
			tc.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestBridgeTiming(t *testing.T) {
	var c BridgeConfig
	c.SetDefaults()
	tm := c.Timing()
	assert.Equal(t, 15*time.Second, tm.ActiveInterval)
	assert.Equal(t, 4, tm.ParkedMultiplier)
	assert.Equal(t, 11*time.Minute, tm.MaxInterval)
	assert.Equal(t, time.Hour, tm.MaxFailureBackoff)
	assert.Equal(t, 3, tm.CommandAttempts)
}

func TestHomeLatLng(t *testing.T) {
	c := BridgeConfig{Home: "48.8566, 2.3522"}
	ll, err := c.HomeLatLng()
	require.NoError(t, err)
	require.NotNil(t, ll)
	assert.Equal(t, 48.8566, ll.Lat)
	assert.Equal(t, 2.3522, ll.Lng)

	c.Home = ""
	ll, err = c.HomeLatLng()
	require.NoError(t, err)
	assert.Nil(t, ll)

	c.Home = "north,south"
	_, err = c.HomeLatLng()
	assert.Error(t, err)
}
