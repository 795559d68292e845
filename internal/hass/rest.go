package hass

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultURL is the Core API as seen from inside a supervised add-on.
	DefaultURL = "http://supervisor/core/api"

	defaultRequestTimeout = 10 * time.Second

	// maxErrorBody bounds how much of an error response is kept.
	maxErrorBody = 512
)

// Sentinel errors for hub requests.
var (
	// ErrRequestFailed wraps every non-2xx response.
	ErrRequestFailed = errors.New("hass: request failed")

	// ErrUnauthorized is returned for 401/403 responses.
	ErrUnauthorized = errors.New("hass: unauthorized")
)

// StatusError carries the status and a bounded body of a failed response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hass: status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden {
		return ErrUnauthorized
	}
	return ErrRequestFailed
}

// attributes are the entity attributes sent with every state write.
type attributes struct {
	FriendlyName string `json:"friendly_name,omitempty"`
	DeviceClass  string `json:"device_class,omitempty"`
	Type         *int   `json:"type,omitempty"`
}

type stateRequest struct {
	State      string     `json:"state"`
	Attributes attributes `json:"attributes"`
}

// RESTConfig configures a RESTClient.
type RESTConfig struct {
	// URL is the Core API base, e.g. "http://supervisor/core/api".
	URL string

	// Token is sent as a bearer token (SUPERVISOR_TOKEN inside an add-on).
	Token string

	// Timeout bounds each request. Default: 10s.
	Timeout time.Duration

	// DeviceType optionally resolves the controller device class reported
	// in the "type" attribute.
	DeviceType func(externalID string) (int, bool)

	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

// RESTClient writes entity states through the Home Assistant REST API.
//
// Attributes given when a sensor is created are remembered and resent on
// every update, since a state write replaces all attributes.
//
// Thread Safety: All methods are safe for concurrent use.
type RESTClient struct {
	baseURL    string
	token      string
	http       *http.Client
	deviceType func(string) (int, bool)

	mu    sync.RWMutex
	attrs map[string]attributes
}

// NewRESTClient creates a REST client.
func NewRESTClient(cfg RESTConfig) (*RESTClient, error) {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		base = DefaultURL
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return nil, fmt.Errorf("hass: url must be http(s): %q", cfg.URL)
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRequestTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	return &RESTClient{
		baseURL:    base,
		token:      cfg.Token,
		http:       client,
		deviceType: cfg.DeviceType,
		attrs:      make(map[string]attributes),
	}, nil
}

// CreateBinarySensor writes binary_sensor.<externalID> with its attributes.
func (c *RESTClient) CreateBinarySensor(ctx context.Context, externalID, label, deviceClass string, on bool) error {
	attrs := attributes{FriendlyName: label, DeviceClass: deviceClass}
	if c.deviceType != nil {
		if t, ok := c.deviceType(externalID); ok {
			attrs.Type = &t
		}
	}

	c.mu.Lock()
	c.attrs[externalID] = attrs
	c.mu.Unlock()

	return c.postState(ctx, "binary_sensor."+externalID, onOff(on), attrs)
}

// UpdateBinarySensor writes a new state for binary_sensor.<externalID>,
// reusing the attributes from creation.
func (c *RESTClient) UpdateBinarySensor(ctx context.Context, externalID string, on bool) error {
	c.mu.RLock()
	attrs, ok := c.attrs[externalID]
	c.mu.RUnlock()
	if !ok {
		attrs = attributes{FriendlyName: externalID}
	}

	return c.postState(ctx, "binary_sensor."+externalID, onOff(on), attrs)
}

// PublishSwitchState mirrors a light as a read-only switch.<uniqueID> state.
// Used when no MQTT broker is configured.
func (c *RESTClient) PublishSwitchState(ctx context.Context, uniqueID string, on bool) error {
	return c.postState(ctx, "switch."+uniqueID, onOff(on), attributes{FriendlyName: uniqueID})
}

// Ping checks the API answers on its root endpoint.
func (c *RESTClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	return c.do(req)
}

func (c *RESTClient) postState(ctx context.Context, entityID, state string, attrs attributes) error {
	body, err := json.Marshal(stateRequest{State: state, Attributes: attrs})
	if err != nil {
		return fmt.Errorf("encoding state: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/states/"+entityID, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := c.do(req); err != nil {
		return fmt.Errorf("post %s: %w", entityID, err)
	}
	return nil
}

func (c *RESTClient) do(req *http.Request) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		//nolint:errcheck // Drain so the connection can be reused
		io.Copy(io.Discard, resp.Body)
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // Best-effort detail
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
