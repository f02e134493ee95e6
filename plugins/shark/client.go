package shark

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joshp123/sharkd/internal/rate"
)

var ErrUnknownCommand = errors.New("unknown command")

// commandValues maps user-facing commands to SET_Operating_Mode values.
var commandValues = map[string]string{
	"start": "start",
	"stop":  "stop",
	"pause": "pause",
	"dock":  "return",
}

// Commands lists the accepted SendCommand values.
func Commands() []string {
	return []string{"start", "stop", "pause", "dock"}
}

// TokenSource supplies bearer tokens and can be nudged to refresh.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	TriggerRefresh(ctx context.Context)
}

type HTTPStatusError struct {
	Status int
	Body   string
}

func (e HTTPStatusError) Error() string {
	return fmt.Sprintf("shark api error %d: %s", e.Status, strings.TrimSpace(e.Body))
}

// ClientConfig configures the REST client.
type ClientConfig struct {
	BaseURL       string
	RatePerMinute int
	Timeout       time.Duration
}

// Client talks to the Ayla device REST API.
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
}

func NewClient(cfg ClientConfig, tokens TokenSource) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token source is required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("api base is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	policy := rate.Policy{
		Provider:  "shark",
		PerMinute: cfg.RatePerMinute,
		StaleFor:  time.Minute,
	}
	return &Client{
		baseURL:    baseURL,
		tokens:     tokens,
		httpClient: rate.WrapHTTP(policy, &http.Client{Timeout: timeout}),
	}, nil
}

func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	data, err := c.get(ctx, "/v1/devices")
	if err != nil {
		return nil, err
	}
	items, err := decodeList(data, "devices")
	if err != nil {
		return nil, err
	}

	type deviceJSON struct {
		DSN              string `json:"dsn"`
		SerialNumber     string `json:"serial_number"`
		ProductName      string `json:"product_name"`
		Name             string `json:"name"`
		OEMModel         string `json:"oem_model"`
		Model            string `json:"model"`
		ConnectionStatus string `json:"connection_status"`
		Connected        bool   `json:"connected"`
	}
	type deviceItem struct {
		deviceJSON
		Wrapped *deviceJSON `json:"device"`
	}

	devices := make([]Device, 0, len(items))
	for _, raw := range items {
		var item deviceItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("decode device: %w", err)
		}
		d := item.deviceJSON
		if item.Wrapped != nil {
			d = *item.Wrapped
		}
		devices = append(devices, Device{
			DSN:         firstNonEmpty(d.DSN, d.SerialNumber),
			ProductName: firstNonEmpty(d.ProductName, d.Name, defaultProductName),
			Model:       firstNonEmpty(d.OEMModel, d.Model),
			Connected:   strings.EqualFold(d.ConnectionStatus, "Online") || d.Connected,
		})
	}
	return devices, nil
}

func (c *Client) Status(ctx context.Context, dsn string) (RobotStatus, error) {
	data, err := c.get(ctx, devicePath(dsn, "properties"))
	if err != nil {
		return RobotStatus{}, err
	}
	props, err := decodeProperties(data)
	if err != nil {
		return RobotStatus{}, err
	}
	return parseStatus(props), nil
}

func (c *Client) SendCommand(ctx context.Context, dsn, command string) error {
	value, ok := commandValues[strings.ToLower(strings.TrimSpace(command))]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, command)
	}
	return c.postDatapoint(ctx, dsn, setOperatingMode, value)
}

func (c *Client) SetPowerMode(ctx context.Context, dsn, mode string) error {
	mode = strings.TrimSpace(mode)
	if mode == "" {
		return fmt.Errorf("power mode is required")
	}
	return c.postDatapoint(ctx, dsn, setPowerMode, mode)
}

// FetchMapProperties reads the three map properties in one request. Absent
// or null properties are left nil.
func (c *Client) FetchMapProperties(ctx context.Context, dsn string) (MapProperties, error) {
	query := url.Values{}
	for _, name := range []string{propMapData, propRobotPosition, propChargerPosition} {
		query.Add("names[]", name)
	}
	data, err := c.get(ctx, devicePath(dsn, "properties")+"?"+query.Encode())
	if err != nil {
		return MapProperties{}, err
	}
	props, err := decodeProperties(data)
	if err != nil {
		return MapProperties{}, err
	}

	out := MapProperties{FetchedAt: time.Now()}
	for _, p := range props {
		switch p.Name {
		case propMapData:
			out.Raw.Grid = optionalValue(p.Value)
		case propRobotPosition:
			out.Raw.Robot = optionalValue(p.Value)
		case propChargerPosition:
			out.Raw.Charger = optionalValue(p.Value)
		}
	}
	return out, nil
}

func devicePath(dsn string, parts ...string) string {
	segments := append([]string{"/v1/devices", url.PathEscape(dsn)}, parts...)
	return strings.Join(segments, "/")
}

func (c *Client) postDatapoint(ctx context.Context, dsn, propertyName string, value any) error {
	payload := map[string]any{"datapoint": map[string]any{"value": value}}
	return c.postJSON(ctx, devicePath(dsn, "properties", propertyName, "datapoints"), payload)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return nil, HTTPStatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := c.doRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return HTTPStatusError{Status: resp.StatusCode, Body: string(data)}
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	accessToken, err := c.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	c.tokens.TriggerRefresh(context.WithoutCancel(ctx))
	return nil, HTTPStatusError{Status: http.StatusUnauthorized, Body: string(data)}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
