package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/mkarlsen/tesla2mqtt/core/bridge"
	"github.com/mkarlsen/tesla2mqtt/infra/logger"
)

// DiscoveryConfig declares where Home Assistant discovery messages go and
// which bounds the charge limit entity advertises.
type DiscoveryConfig struct {
	// Prefix is the Home Assistant discovery prefix, usually "homeassistant".
	Prefix string
	// BaseTopic is the bridge's state topic base.
	BaseTopic string
	// ChargeLimitMin and ChargeLimitMax mirror the command bounds.
	ChargeLimitMin int
	ChargeLimitMax int
}

// VehicleInfo identifies the vehicle in the Home Assistant device registry.
type VehicleInfo struct {
	VIN   string
	Name  string
	Model string
}

// Discovery publishes retained Home Assistant discovery configs so the
// bridge's topics appear as entities without manual YAML.
type Discovery struct {
	cfg DiscoveryConfig
	bus bridge.Bus
	log logger.Logger
}

// NewDiscovery creates a Discovery publisher.
func NewDiscovery(cfg DiscoveryConfig, bus bridge.Bus) *Discovery {
	if cfg.Prefix == "" {
		cfg.Prefix = "homeassistant"
	}
	return &Discovery{cfg: cfg, bus: bus, log: logger.New("ha_discovery")}
}

type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
}

type haEntity struct {
	Name                string   `json:"name"`
	StateTopic          string   `json:"state_topic"`
	CommandTopic        string   `json:"command_topic,omitempty"`
	UniqueID            string   `json:"unique_id"`
	UnitOfMeasurement   string   `json:"unit_of_measurement,omitempty"`
	DeviceClass         string   `json:"device_class,omitempty"`
	Icon                string   `json:"icon,omitempty"`
	Min                 *int     `json:"min,omitempty"`
	Max                 *int     `json:"max,omitempty"`
	JSONAttributesTopic string   `json:"json_attributes_topic,omitempty"`
	ValueTemplate       string   `json:"value_template,omitempty"`
	SourceType          string   `json:"source_type,omitempty"`
	AvailabilityTopic   string   `json:"availability_topic,omitempty"`
	Device              haDevice `json:"device"`
}

// Announce publishes the discovery config for every entity the bridge
// exposes. Failures are logged per entity, the first one is returned.
func (d *Discovery) Announce(info VehicleInfo) error {
	device := haDevice{
		Identifiers:  []string{info.VIN + "_device"},
		Name:         info.Name + " Vehicle",
		Manufacturer: "Tesla",
		Model:        info.Model,
	}
	status := d.cfg.BaseTopic + "/status"

	entities := []struct {
		component string
		object    string
		entity    haEntity
	}{
		{"sensor", "charging", haEntity{
			Name:       info.Name + " Charging State",
			StateTopic: d.cfg.BaseTopic + "/charging",
			UniqueID:   info.VIN + "_charging",
			Icon:       "mdi:ev-station",
		}},
		{"sensor", "battery", haEntity{
			Name:              info.Name + " Battery Level",
			StateTopic:        d.cfg.BaseTopic + "/battery_level",
			UniqueID:          info.VIN + "_battery_level",
			UnitOfMeasurement: "%",
			DeviceClass:       "battery",
		}},
		{"sensor", "timetofull", haEntity{
			Name:              info.Name + " Time to Full",
			StateTopic:        d.cfg.BaseTopic + "/time_to_full",
			UniqueID:          info.VIN + "_time_to_full",
			UnitOfMeasurement: "h",
			Icon:              "hass:clock-fast",
		}},
		{"sensor", "odometer", haEntity{
			Name:              info.Name + " Odometer",
			StateTopic:        d.cfg.BaseTopic + "/odometer",
			UniqueID:          info.VIN + "_odometer",
			UnitOfMeasurement: "mi",
			Icon:              "mdi:counter",
		}},
		{"number", "chargelimit", haEntity{
			Name:         info.Name + " Charge Limit",
			StateTopic:   d.cfg.BaseTopic + "/charge_limit",
			CommandTopic: d.cfg.BaseTopic + "/charge_limit/set",
			UniqueID:     info.VIN + "_charge_limit",
			Min:          &d.cfg.ChargeLimitMin,
			Max:          &d.cfg.ChargeLimitMax,
			Icon:         "hass:battery-alert",
		}},
		{"switch", "charging", haEntity{
			Name:          info.Name + " Charging",
			StateTopic:    d.cfg.BaseTopic + "/charging",
			CommandTopic:  d.cfg.BaseTopic + "/charging/set",
			UniqueID:      info.VIN + "_charging_switch",
			ValueTemplate: "{{ 'true' if value == 'Charging' else 'false' }}",
			Icon:          "mdi:battery-charging",
		}},
		{"device_tracker", "gps", haEntity{
			Name:                info.Name + " Location",
			StateTopic:          d.cfg.BaseTopic + "/gps",
			JSONAttributesTopic: d.cfg.BaseTopic + "/gps",
			ValueTemplate:       "{{value_json.state}}",
			UniqueID:            info.VIN + "_gps",
			SourceType:          "gps",
			Icon:                "mdi:crosshairs-gps",
		}},
	}

	var firstErr error
	for _, e := range entities {
		e.entity.Device = device
		e.entity.AvailabilityTopic = status
		payload, err := json.Marshal(e.entity)
		if err != nil {
			return err
		}
		topic := fmt.Sprintf("%s/%s/%s/%s/config", d.cfg.Prefix, e.component, info.VIN, e.object)
		if err := d.bus.Publish(topic, payload, true); err != nil {
			d.log.Errorf("announce %s: %v", topic, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr == nil {
		d.log.Infof("announced %d entities for %s", len(entities), info.VIN)
	}
	return firstErr
}
