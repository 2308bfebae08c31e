package scheduling

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

	contractx "github.com/velaline/booking-agent/agent/contract"
)

const maxResponseSizeBytes = 2 << 20

type Config struct {
	BaseURL string        `envconfig:"BASE_URL" split_words:"true" required:"true"`
	APIKey  string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Timeout time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Client talks to the scheduling/calendar backend over HTTP JSON. The
// backend's slot computation is its own business; this client only moves
// payloads and maps a 409 into a ConflictError with the backend's
// suggested alternatives.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ contractx.SchedulingClient = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("scheduling base url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid scheduling base url: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("scheduling api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(cfg.APIKey),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func MustNew(cfg Config) *Client {
	client, err := NewClient(cfg)
	if err != nil {
		panic(err)
	}
	return client
}

func (c *Client) ListServices(ctx context.Context) ([]contractx.Service, error) {
	var services []contractx.Service
	if err := c.do(ctx, http.MethodGet, "/services", nil, &services); err != nil {
		return nil, err
	}
	return services, nil
}

func (c *Client) CheckAvailability(ctx context.Context, date string, serviceIDs []string) ([]contractx.Slot, error) {
	body := map[string]any{
		"date":        date,
		"service_ids": serviceIDs,
	}
	var slots []contractx.Slot
	if err := c.do(ctx, http.MethodPost, "/availability", body, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

func (c *Client) CreateAppointment(ctx context.Context, req contractx.AppointmentRequest) (*contractx.Appointment, error) {
	var appt contractx.Appointment
	if err := c.do(ctx, http.MethodPost, "/appointments", req, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

func (c *Client) UpdateAppointment(ctx context.Context, appointmentID string, req contractx.AppointmentRequest) (*contractx.Appointment, error) {
	if strings.TrimSpace(appointmentID) == "" {
		return nil, errors.New("appointment id is required")
	}
	var appt contractx.Appointment
	path := "/appointments/" + url.PathEscape(appointmentID)
	if err := c.do(ctx, http.MethodPatch, path, req, &appt); err != nil {
		return nil, err
	}
	return &appt, nil
}

func (c *Client) CancelAppointment(ctx context.Context, appointmentID string) error {
	if strings.TrimSpace(appointmentID) == "" {
		return errors.New("appointment id is required")
	}
	path := "/appointments/" + url.PathEscape(appointmentID)
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

type conflictBody struct {
	Message      string           `json:"message"`
	Date         string           `json:"date"`
	Time         string           `json:"time"`
	Alternatives []contractx.Slot `json:"alternatives"`
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal scheduling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build scheduling request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute scheduling request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read scheduling response: %w", err)
	}

	if resp.StatusCode == http.StatusConflict {
		var conflict conflictBody
		if err := json.Unmarshal(raw, &conflict); err != nil {
			return &contractx.ConflictError{}
		}
		return &contractx.ConflictError{
			Date:         conflict.Date,
			Time:         conflict.Time,
			Alternatives: conflict.Alternatives,
		}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("scheduling http status=%d body=%s", resp.StatusCode, string(raw))
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode scheduling response: %w", err)
	}
	return nil
}
