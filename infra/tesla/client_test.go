package tesla

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkarlsen/tesla2mqtt/core/model"
	"github.com/mkarlsen/tesla2mqtt/core/vehicle"
)

func writeTokenFile(t *testing.T) string {
	t.Helper()
	tok := map[string]any{
		"access_token":  "atoken",
		"token_type":    "Bearer",
		"refresh_token": "rtoken",
		"expiry":        time.Now().Add(time.Hour).Format(time.RFC3339),
	}
	b, err := json.Marshal(tok)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "token.json")
	require.NoError(t, os.WriteFile(path, b, 0600))
	return path
}

func newTestClient(t *testing.T, handler http.Handler, vin string) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := Config{
		TokenFile: writeTokenFile(t),
		VIN:       vin,
		APIBase:   srv.URL,
		AuthURL:   srv.URL + "/oauth2/v3/token",
	}
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	return c
}

func vehicleList(vehicles ...apiVehicle) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(vehiclesResponse{Response: vehicles})
	}
}

func onlineVehicle() apiVehicle {
	return apiVehicle{ID: 42, VIN: "5YJ3E1EA1NF000000", DisplayName: "Kitt", State: "online"}
}

func sampleData() dataResponse {
	speed := 0.0
	shift := "P"
	return dataResponse{Response: &vehicleData{
		ChargeState: chargeState{
			ChargingState:    "Charging",
			BatteryLevel:     73,
			ChargeLimitSoc:   80,
			TimeToFullCharge: 1.5,
		},
		DriveState: driveState{
			Latitude:   48.8566,
			Longitude:  2.3522,
			Heading:    180,
			Speed:      &speed,
			ShiftState: &shift,
		},
		VehicleState:  vehicleStatus{Odometer: 12345.6, VehicleName: "Kitt"},
		VehicleConfig: vehicleConfig{CarType: "model3", TrimBadging: "74d"},
	}}
}

func TestFetchStateOnline(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1/vehicles", vehicleList(onlineVehicle()))
	mux.HandleFunc("/api/1/vehicles/42/vehicle_data", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer atoken", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(sampleData())
	})
	c := newTestClient(t, mux, "")

	st, err := c.FetchState(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Charging", st.Charging)
	assert.Equal(t, 73, st.BatteryLevel)
	assert.Equal(t, 80, st.ChargeLimit)
	assert.Equal(t, 1.5, st.TimeToFullCharge)
	assert.Equal(t, 12345.6, st.Odometer)
	assert.Equal(t, "P", st.ShiftState)
	assert.Equal(t, 48.8566, st.Latitude)

	info, err := c.VehicleInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5YJ3E1EA1NF000000", info.VIN)
	assert.Equal(t, "Kitt", info.Name)
	assert.Equal(t, "Model 3 74D", info.Model)
}

func TestFetchStateAsleepSkipsDataCall(t *testing.T) {
	asleep := onlineVehicle()
	asleep.State = "asleep"
	dataCalled := false
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1/vehicles", vehicleList(asleep))
	mux.HandleFunc("/api/1/vehicles/42/vehicle_data", func(http.ResponseWriter, *http.Request) {
		dataCalled = true
	})
	c := newTestClient(t, mux, "")

	_, err := c.FetchState(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, vehicle.ErrAsleep)
	assert.False(t, dataCalled, "a sleeping car must not receive a data call")
}

func TestFetchStateUnauthorized(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}), "")
	_, err := c.FetchState(context.Background())
	assert.ErrorIs(t, err, vehicle.ErrUnauthorized)
}

func TestFetchStateTimeoutMapsToAsleep(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1/vehicles", vehicleList(onlineVehicle()))
	mux.HandleFunc("/api/1/vehicles/42/vehicle_data", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusRequestTimeout)
	})
	c := newTestClient(t, mux, "")
	_, err := c.FetchState(context.Background())
	assert.ErrorIs(t, err, vehicle.ErrAsleep)
}

func TestFetchStateServerErrorIsTransient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1/vehicles", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	c := newTestClient(t, mux, "")
	_, err := c.FetchState(context.Background())
	assert.ErrorIs(t, err, vehicle.ErrUnreachable)
	assert.True(t, vehicle.Transient(err))
}

func TestSendCommandChargeLimit(t *testing.T) {
	var gotBody map[string]int
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1/vehicles", vehicleList(onlineVehicle()))
	mux.HandleFunc("/api/1/vehicles/42/command/set_charge_limit", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		var res commandResponse
		res.Response.Result = true
		json.NewEncoder(w).Encode(res)
	})
	c := newTestClient(t, mux, "")

	err := c.SendCommand(context.Background(), model.CommandRequest{Name: model.CmdChargeLimit, Int: 80})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"percent": 80}, gotBody)
}

func TestSendCommandChargingStartStop(t *testing.T) {
	var endpoints []string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1/vehicles", vehicleList(onlineVehicle()))
	mux.HandleFunc("/api/1/vehicles/42/command/", func(w http.ResponseWriter, r *http.Request) {
		endpoints = append(endpoints, filepath.Base(r.URL.Path))
		var res commandResponse
		res.Response.Result = true
		json.NewEncoder(w).Encode(res)
	})
	c := newTestClient(t, mux, "")

	require.NoError(t, c.SendCommand(context.Background(), model.CommandRequest{Name: model.CmdCharging, Bool: true}))
	require.NoError(t, c.SendCommand(context.Background(), model.CommandRequest{Name: model.CmdCharging, Bool: false}))
	assert.Equal(t, []string{"charge_start", "charge_stop"}, endpoints)
}

func TestSendCommandAlreadySetIsSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1/vehicles", vehicleList(onlineVehicle()))
	mux.HandleFunc("/api/1/vehicles/42/command/set_charge_limit", func(w http.ResponseWriter, _ *http.Request) {
		var res commandResponse
		res.Response.Result = false
		res.Response.Reason = "already_set"
		json.NewEncoder(w).Encode(res)
	})
	c := newTestClient(t, mux, "")
	assert.NoError(t, c.SendCommand(context.Background(), model.CommandRequest{Name: model.CmdChargeLimit, Int: 80}))
}

func TestSendCommandRejected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1/vehicles", vehicleList(onlineVehicle()))
	mux.HandleFunc("/api/1/vehicles/42/command/charge_start", func(w http.ResponseWriter, _ *http.Request) {
		var res commandResponse
		res.Response.Result = false
		res.Response.Reason = "charging_cable_disconnected"
		json.NewEncoder(w).Encode(res)
	})
	c := newTestClient(t, mux, "")
	err := c.SendCommand(context.Background(), model.CommandRequest{Name: model.CmdCharging, Bool: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, vehicle.ErrRejected)
	assert.Contains(t, err.Error(), "charging_cable_disconnected")
}

func TestVINSelection(t *testing.T) {
	other := apiVehicle{ID: 7, VIN: "OTHERVIN", DisplayName: "Other", State: "online"}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1/vehicles", vehicleList(other, onlineVehicle()))
	mux.HandleFunc("/api/1/vehicles/42/vehicle_data", func(w http.ResponseWriter, _ *http.Request) {
		json.NewEncoder(w).Encode(sampleData())
	})
	c := newTestClient(t, mux, "5YJ3E1EA1NF000000")

	_, err := c.FetchState(context.Background())
	require.NoError(t, err)
	info, err := c.VehicleInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5YJ3E1EA1NF000000", info.VIN)
}

func TestVINNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1/vehicles", vehicleList(onlineVehicle()))
	c := newTestClient(t, mux, "MISSINGVIN")
	_, err := c.FetchState(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, vehicle.ErrRejected)
}

func TestEmptyAccount(t *testing.T) {
	c := newTestClient(t, vehicleList(), "")
	_, err := c.FetchState(context.Background())
	assert.ErrorIs(t, err, vehicle.ErrRejected)
}

func TestWake(t *testing.T) {
	woke := false
	mux := http.NewServeMux()
	mux.HandleFunc("/api/1/vehicles", vehicleList(onlineVehicle()))
	mux.HandleFunc("/api/1/vehicles/42/wake_up", func(w http.ResponseWriter, r *http.Request) {
		woke = r.Method == http.MethodPost
		json.NewEncoder(w).Encode(dataResponse{})
	})
	c := newTestClient(t, mux, "")
	require.NoError(t, c.Wake(context.Background()))
	assert.True(t, woke)
}

func TestLoadTokenErrors(t *testing.T) {
	_, err := loadToken(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(empty, []byte("{}"), 0600))
	_, err = loadToken(empty)
	assert.Error(t, err)
}

func TestFormatModel(t *testing.T) {
	assert.Equal(t, "Model 3 74D", formatModel("model3", "74d"))
	assert.Equal(t, "Model S", formatModel("models", ""))
	assert.Equal(t, "", formatModel("", "74d"))
}
