// Package tesla adapts the Tesla Owner API to the vehicle.Source interface.
// Authentication rides on a pre-provisioned oauth2 token cache file produced
// by an external flow; the bridge only reads it and lets the token source
// refresh transparently.
package tesla

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/mkarlsen/tesla2mqtt/core/model"
	"github.com/mkarlsen/tesla2mqtt/core/vehicle"
	"github.com/mkarlsen/tesla2mqtt/infra/logger"
)

// Config defines the Owner API connection parameters.
type Config struct {
	// TokenFile is the JSON oauth2 token cache, read-only input. The bridge
	// never regenerates it.
	TokenFile string `json:"token_file"`
	// VIN selects the vehicle when the account has several. Empty picks the
	// first one.
	VIN      string `json:"vin"`
	APIBase  string `json:"api_base"`
	AuthURL  string `json:"auth_url"`
	TimeoutS int    `json:"timeout_s"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.APIBase == "" {
		c.APIBase = "https://owner-api.teslamotors.com"
	}
	if c.AuthURL == "" {
		c.AuthURL = "https://auth.tesla.com/oauth2/v3/token"
	}
	if c.TimeoutS == 0 {
		c.TimeoutS = 30
	}
}

// Validate checks mandatory fields.
func (c Config) Validate() error {
	if c.TokenFile == "" {
		return fmt.Errorf("vehicle token_file is required")
	}
	return nil
}

// Info identifies the selected vehicle.
type Info struct {
	VIN   string
	Name  string
	Model string
}

// Client implements vehicle.Source against the Owner API.
type Client struct {
	cfg  Config
	http *http.Client
	log  logger.Logger

	mu   sync.Mutex
	id   int64
	info Info
}

// New builds a Client from the token cache file. The HTTP client refreshes
// the token as needed; a refresh rejection surfaces as ErrUnauthorized on
// the next call.
func New(ctx context.Context, cfg Config) (*Client, error) {
	tok, err := loadToken(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("load token cache: %w", err)
	}
	conf := &oauth2.Config{
		ClientID: "ownerapi",
		Endpoint: oauth2.Endpoint{TokenURL: cfg.AuthURL},
	}
	src := oauth2.ReuseTokenSource(tok, conf.TokenSource(ctx, tok))
	httpClient := oauth2.NewClient(ctx, src)
	httpClient.Timeout = time.Duration(cfg.TimeoutS) * time.Second
	return &Client{cfg: cfg, http: httpClient, log: logger.New("tesla_api")}, nil
}

func loadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("%s holds no usable token", path)
	}
	return &tok, nil
}

// FetchState polls the vehicle list for the wake state first, so a sleeping
// car is reported as ErrAsleep without a data call that would wake it.
func (c *Client) FetchState(ctx context.Context) (model.VehicleState, error) {
	id, state, err := c.resolve(ctx)
	if err != nil {
		return model.VehicleState{}, err
	}
	if state != "online" {
		return model.VehicleState{}, fmt.Errorf("vehicle state %q: %w", state, vehicle.ErrAsleep)
	}
	var data dataResponse
	if err := c.get(ctx, fmt.Sprintf("/api/1/vehicles/%d/vehicle_data", id), &data); err != nil {
		return model.VehicleState{}, err
	}
	if data.Response == nil {
		return model.VehicleState{}, fmt.Errorf("empty vehicle_data response: %w", vehicle.ErrUnreachable)
	}
	c.cacheInfo(*data.Response)
	return data.Response.toModel(), nil
}

// SendCommand executes a validated command. A "could not change" answer with
// reason already_set is treated as success, matching the idempotent intent
// of the command topics.
func (c *Client) SendCommand(ctx context.Context, req model.CommandRequest) error {
	id, _, err := c.resolve(ctx)
	if err != nil {
		return err
	}
	var (
		endpoint string
		body     any
	)
	switch req.Name {
	case model.CmdChargeLimit:
		endpoint = "set_charge_limit"
		body = map[string]int{"percent": req.Int}
	case model.CmdCharging:
		endpoint = "charge_stop"
		if req.Bool {
			endpoint = "charge_start"
		}
	default:
		return fmt.Errorf("unknown command %q: %w", req.Name, vehicle.ErrRejected)
	}
	var res commandResponse
	if err := c.post(ctx, fmt.Sprintf("/api/1/vehicles/%d/command/%s", id, endpoint), body, &res); err != nil {
		return err
	}
	if !res.Response.Result && res.Response.Reason != "already_set" {
		return fmt.Errorf("%s: %s: %w", endpoint, res.Response.Reason, vehicle.ErrRejected)
	}
	return nil
}

// Wake requests a wake cycle. The vehicle comes online some time later.
func (c *Client) Wake(ctx context.Context) error {
	id, _, err := c.resolve(ctx)
	if err != nil {
		return err
	}
	var res dataResponse
	return c.post(ctx, fmt.Sprintf("/api/1/vehicles/%d/wake_up", id), nil, &res)
}

// VehicleInfo returns the identity of the selected vehicle. Name and model
// fill in once the first full data poll has succeeded.
func (c *Client) VehicleInfo(ctx context.Context) (Info, error) {
	if _, _, err := c.resolve(ctx); err != nil {
		return Info{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.info, nil
}

// resolve returns the numeric vehicle id and current wake state, selecting
// the vehicle by VIN on first use.
func (c *Client) resolve(ctx context.Context) (int64, string, error) {
	var list vehiclesResponse
	if err := c.get(ctx, "/api/1/vehicles", &list); err != nil {
		return 0, "", err
	}
	if len(list.Response) == 0 {
		return 0, "", fmt.Errorf("account has no vehicles: %w", vehicle.ErrRejected)
	}
	picked := list.Response[0]
	if c.cfg.VIN != "" {
		found := false
		for _, v := range list.Response {
			if v.VIN == c.cfg.VIN {
				picked = v
				found = true
				break
			}
		}
		if !found {
			return 0, "", fmt.Errorf("vin %s not in account: %w", c.cfg.VIN, vehicle.ErrRejected)
		}
	}
	c.mu.Lock()
	if c.id == 0 {
		c.log.Infof("selected vehicle %s (%s)", picked.VIN, picked.DisplayName)
	}
	c.id = picked.ID
	c.info.VIN = picked.VIN
	if c.info.Name == "" {
		c.info.Name = picked.DisplayName
	}
	c.mu.Unlock()
	return picked.ID, picked.State, nil
}

func (c *Client) cacheInfo(d vehicleData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d.VehicleState.VehicleName != "" {
		c.info.Name = d.VehicleState.VehicleName
	}
	if m := formatModel(d.VehicleConfig.CarType, d.VehicleConfig.TrimBadging); m != "" {
		c.info.Model = m
	}
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.APIBase+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransport(err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if err := classifyStatus(resp.StatusCode); err != nil {
		return fmt.Errorf("%s %s: http %d: %w", method, path, resp.StatusCode, err)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %v: %w", path, err, vehicle.ErrUnreachable)
	}
	return nil
}

// classifyTransport maps transport-level failures into the error taxonomy.
// A failed token refresh shows up here as an oauth2.RetrieveError.
func classifyTransport(err error) error {
	var rerr *oauth2.RetrieveError
	if errors.As(err, &rerr) {
		return fmt.Errorf("token refresh rejected: %w", vehicle.ErrUnauthorized)
	}
	return fmt.Errorf("%v: %w", err, vehicle.ErrUnreachable)
}

func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return vehicle.ErrUnauthorized
	case code == http.StatusRequestTimeout:
		// The Owner API answers 408 when the vehicle itself is unavailable.
		return vehicle.ErrAsleep
	case code == http.StatusBadRequest || code == http.StatusUnprocessableEntity:
		return vehicle.ErrRejected
	default:
		return vehicle.ErrUnreachable
	}
}
