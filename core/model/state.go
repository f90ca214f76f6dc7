package model

// Charging states reported by the vehicle API.
const (
	ChargingStateCharging     = "Charging"
	ChargingStateStopped      = "Stopped"
	ChargingStateComplete     = "Complete"
	ChargingStateDisconnected = "Disconnected"
)

// ShiftParked is the shift state of a parked vehicle. The API reports an
// empty value when the car is parked, Normalized maps it to this constant.
const ShiftParked = "P"

// VehicleState is a single poll's snapshot of the vehicle. A fresh instance
// is produced on every successful poll; the previous one is kept only as the
// diff baseline.
type VehicleState struct {
	Charging         string  // charging state enum, see ChargingState constants
	TimeToFullCharge float64 // hours until the charge limit is reached
	BatteryLevel     int     // percent
	ChargeLimit      int     // percent
	Odometer         float64 // miles
	ShiftState       string  // P, R, N or D
	Latitude         float64
	Longitude        float64
	Heading          float64
	Speed            float64
}

// IsCharging reports whether the vehicle is actively charging.
func (s VehicleState) IsCharging() bool { return s.Charging == ChargingStateCharging }

// Active reports whether the vehicle warrants the short poll interval:
// driving or charging.
func (s VehicleState) Active() bool {
	return s.IsCharging() || (s.ShiftState != "" && s.ShiftState != ShiftParked)
}

// Normalized returns a copy with API quirks smoothed out. The only quirk so
// far is the empty shift state of a parked car.
func (s VehicleState) Normalized() VehicleState {
	if s.ShiftState == "" {
		s.ShiftState = ShiftParked
	}
	return s
}
