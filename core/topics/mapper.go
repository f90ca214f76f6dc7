// Package topics implements the pure translation between vehicle state and
// MQTT topic/payload pairs, and between inbound command messages and
// CommandRequests. The binding table is built once and read-only afterwards.
package topics

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/mkarlsen/tesla2mqtt/core/model"
)

// Status topic payloads.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// homeRadiusMeters is how far from the configured home coordinate the
// vehicle may be while still reported as "home".
const homeRadiusMeters = 100

// Message is one outbound topic/payload pair.
type Message struct {
	Topic   string
	Payload string
}

// ParseError describes a rejected inbound message. FromMessage is total:
// every malformed input yields a ParseError, never a panic. Command carries
// the command name when the topic itself was valid, so a failure result can
// still be published.
type ParseError struct {
	Topic   string
	Command string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %s", e.Topic, e.Reason)
}

// Config declares the topic layout and command argument bounds.
type Config struct {
	// BaseTopic prefixes every topic, no trailing slash.
	BaseTopic string
	// Home is the home coordinate for the gps home/not_home zone. Nil means
	// the vehicle is always reported as home.
	Home *model.LatLng
	// ChargeLimitMin and ChargeLimitMax bound the charge_limit command.
	ChargeLimitMin int
	ChargeLimitMax int
}

// binding maps one state field to its topic suffix. The declaration order of
// the binding table is the publication order.
type binding struct {
	field   string
	encode  func(m *Mapper, s model.VehicleState) string
	changed func(cur, prev model.VehicleState) bool
}

// Mapper holds the immutable binding table. All methods are safe for
// concurrent use.
type Mapper struct {
	cfg      Config
	bindings []binding
}

// New builds the binding table from cfg.
func New(cfg Config) *Mapper {
	m := &Mapper{cfg: cfg}
	m.bindings = []binding{
		{
			field:   "charging",
			encode:  func(_ *Mapper, s model.VehicleState) string { return s.Charging },
			changed: func(c, p model.VehicleState) bool { return c.Charging != p.Charging },
		},
		{
			field:   "time_to_full",
			encode:  func(_ *Mapper, s model.VehicleState) string { return formatFloat(s.TimeToFullCharge) },
			changed: func(c, p model.VehicleState) bool { return c.TimeToFullCharge != p.TimeToFullCharge },
		},
		{
			field:   "battery_level",
			encode:  func(_ *Mapper, s model.VehicleState) string { return strconv.Itoa(s.BatteryLevel) },
			changed: func(c, p model.VehicleState) bool { return c.BatteryLevel != p.BatteryLevel },
		},
		{
			field:   "charge_limit",
			encode:  func(_ *Mapper, s model.VehicleState) string { return strconv.Itoa(s.ChargeLimit) },
			changed: func(c, p model.VehicleState) bool { return c.ChargeLimit != p.ChargeLimit },
		},
		{
			field:   "odometer",
			encode:  func(_ *Mapper, s model.VehicleState) string { return formatFloat(s.Odometer) },
			changed: func(c, p model.VehicleState) bool { return c.Odometer != p.Odometer },
		},
		{
			field:  "gps",
			encode: (*Mapper).encodeGPS,
			changed: func(c, p model.VehicleState) bool {
				return c.Latitude != p.Latitude || c.Longitude != p.Longitude ||
					c.Heading != p.Heading || c.Speed != p.Speed
			},
		},
		{
			field:   "shift_state",
			encode:  func(_ *Mapper, s model.VehicleState) string { return s.ShiftState },
			changed: func(c, p model.VehicleState) bool { return c.ShiftState != p.ShiftState },
		},
	}
	return m
}

// ToMessages yields one message per field of cur that differs from prev, in
// binding table order. A nil prev yields every field.
func (m *Mapper) ToMessages(cur model.VehicleState, prev *model.VehicleState) []Message {
	var msgs []Message
	for _, b := range m.bindings {
		if prev != nil && !b.changed(cur, *prev) {
			continue
		}
		msgs = append(msgs, Message{
			Topic:   m.FieldTopic(b.field),
			Payload: b.encode(m, cur),
		})
	}
	return msgs
}

// FromMessage translates an inbound command message into a CommandRequest.
// Validation happens here, before the vehicle is ever contacted.
func (m *Mapper) FromMessage(topic string, payload []byte) (model.CommandRequest, *ParseError) {
	name, ok := m.commandName(topic)
	if !ok {
		return model.CommandRequest{}, &ParseError{Topic: topic, Reason: "not a command topic"}
	}
	value := string(payload)
	switch name {
	case model.CmdChargeLimit:
		pct, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return model.CommandRequest{}, &ParseError{Topic: topic, Command: name, Reason: fmt.Sprintf("charge limit %q is not an integer", value)}
		}
		if pct < m.cfg.ChargeLimitMin || pct > m.cfg.ChargeLimitMax {
			return model.CommandRequest{}, &ParseError{
				Topic:   topic,
				Command: name,
				Reason:  fmt.Sprintf("charge limit %d out of range [%d,%d]", pct, m.cfg.ChargeLimitMin, m.cfg.ChargeLimitMax),
			}
		}
		return model.CommandRequest{Name: model.CmdChargeLimit, Int: pct}, nil
	case model.CmdCharging:
		switch value {
		case "true":
			return model.CommandRequest{Name: model.CmdCharging, Bool: true}, nil
		case "false":
			return model.CommandRequest{Name: model.CmdCharging, Bool: false}, nil
		default:
			return model.CommandRequest{}, &ParseError{Topic: topic, Command: name, Reason: fmt.Sprintf("charging payload %q is not true/false", value)}
		}
	default:
		return model.CommandRequest{}, &ParseError{Topic: topic, Reason: fmt.Sprintf("unknown command %q", name)}
	}
}

// FieldTopic returns the topic a state field is published on.
func (m *Mapper) FieldTopic(field string) string {
	return m.cfg.BaseTopic + "/" + field
}

// StatusTopic returns the liveness topic.
func (m *Mapper) StatusTopic() string { return m.cfg.BaseTopic + "/status" }

// CommandFilter returns the subscription filter matching all command topics.
func (m *Mapper) CommandFilter() string { return m.cfg.BaseTopic + "/+/set" }

// CommandTopic returns the command topic for a command name.
func (m *Mapper) CommandTopic(name string) string {
	return m.cfg.BaseTopic + "/" + name + "/set"
}

// ResultTopic returns the topic command outcomes are published on.
func (m *Mapper) ResultTopic(name string) string {
	return m.cfg.BaseTopic + "/" + name + "/result"
}

// commandName extracts the command segment from "<base>/<name>/set".
func (m *Mapper) commandName(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, m.cfg.BaseTopic+"/")
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, "/set")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// gpsPayload matches the attribute shape Home Assistant device trackers
// expect.
type gpsPayload struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Heading     float64 `json:"heading"`
	Speed       float64 `json:"speed"`
	State       string  `json:"state"`
	GPSAccuracy int     `json:"gps_accuracy"`
}

func (m *Mapper) encodeGPS(s model.VehicleState) string {
	state := "home"
	if m.cfg.Home != nil {
		pos := model.LatLng{Lat: s.Latitude, Lng: s.Longitude}
		if m.cfg.Home.DistanceMeters(pos) > homeRadiusMeters {
			state = "not_home"
		}
	}
	b, _ := json.Marshal(gpsPayload{
		Latitude:    s.Latitude,
		Longitude:   s.Longitude,
		Heading:     s.Heading,
		Speed:       s.Speed,
		State:       state,
		GPSAccuracy: 1,
	})
	return string(b)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
