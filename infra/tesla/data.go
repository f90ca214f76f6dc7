package tesla

import (
	"strings"

	"github.com/mkarlsen/tesla2mqtt/core/model"
)

// Owner API response envelopes. Only the fields the bridge reads are
// declared.

type apiVehicle struct {
	ID          int64  `json:"id"`
	VIN         string `json:"vin"`
	DisplayName string `json:"display_name"`
	State       string `json:"state"`
}

type vehiclesResponse struct {
	Response []apiVehicle `json:"response"`
}

type vehicleData struct {
	ChargeState   chargeState   `json:"charge_state"`
	DriveState    driveState    `json:"drive_state"`
	VehicleState  vehicleStatus `json:"vehicle_state"`
	VehicleConfig vehicleConfig `json:"vehicle_config"`
}

type dataResponse struct {
	Response *vehicleData `json:"response"`
}

type chargeState struct {
	ChargingState    string  `json:"charging_state"`
	BatteryLevel     int     `json:"battery_level"`
	ChargeLimitSoc   int     `json:"charge_limit_soc"`
	TimeToFullCharge float64 `json:"time_to_full_charge"`
}

// Speed and ShiftState are null while the car is parked.
type driveState struct {
	Latitude   float64  `json:"latitude"`
	Longitude  float64  `json:"longitude"`
	Heading    float64  `json:"heading"`
	Speed      *float64 `json:"speed"`
	ShiftState *string  `json:"shift_state"`
}

type vehicleStatus struct {
	Odometer    float64 `json:"odometer"`
	VehicleName string  `json:"vehicle_name"`
}

type vehicleConfig struct {
	CarType     string `json:"car_type"`
	TrimBadging string `json:"trim_badging"`
}

type commandResponse struct {
	Response struct {
		Result bool   `json:"result"`
		Reason string `json:"reason"`
	} `json:"response"`
}

func (d vehicleData) toModel() model.VehicleState {
	s := model.VehicleState{
		Charging:         d.ChargeState.ChargingState,
		TimeToFullCharge: d.ChargeState.TimeToFullCharge,
		BatteryLevel:     d.ChargeState.BatteryLevel,
		ChargeLimit:      d.ChargeState.ChargeLimitSoc,
		Odometer:         d.VehicleState.Odometer,
		Latitude:         d.DriveState.Latitude,
		Longitude:        d.DriveState.Longitude,
		Heading:          d.DriveState.Heading,
	}
	if d.DriveState.Speed != nil {
		s.Speed = *d.DriveState.Speed
	}
	if d.DriveState.ShiftState != nil {
		s.ShiftState = *d.DriveState.ShiftState
	}
	return s
}

// formatModel turns the API's "model3" + "74d" into "Model 3 74D".
func formatModel(carType, trim string) string {
	if carType == "" {
		return ""
	}
	parts := strings.Fields(carType[:len(carType)-1] + " " + carType[len(carType)-1:])
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	name := strings.Join(parts, " ")
	if trim != "" {
		name += " " + strings.ToUpper(trim)
	}
	return name
}
