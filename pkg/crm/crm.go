package crm

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
	Endpoint string        `envconfig:"ENDPOINT" split_words:"true" required:"true"`
	APIKey   string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Timeout  time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"10s"`
}

// Client talks to the contact/CRM backend's GraphQL endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

var _ contractx.CRMClient = (*Client)(nil)

const (
	lookupByPhoneQuery = `query LookupByPhone($phone: String!) {
  contactByPhone(phone: $phone) {
    id
    displayName
    mobile
    lastAppointmentId
  }
}`

	createContactMutation = `mutation CreateContact($firstName: String!, $lastName: String!, $phone: String!) {
  createContact(input: {firstName: $firstName, lastName: $lastName, phone: $phone}) {
    id
    displayName
    mobile
  }
}`
)

func NewClient(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("crm endpoint is required")
	}
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("invalid crm endpoint: %w", err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("crm api key is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		endpoint: endpoint,
		apiKey:   strings.TrimSpace(cfg.APIKey),
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

type contactPayload struct {
	ID                string `json:"id"`
	DisplayName       string `json:"displayName"`
	Mobile            string `json:"mobile"`
	LastAppointmentID string `json:"lastAppointmentId"`
}

func (c *Client) LookupByPhone(ctx context.Context, phone string) (*contractx.Contact, error) {
	if strings.TrimSpace(phone) == "" {
		return nil, errors.New("phone is required")
	}

	var data struct {
		ContactByPhone *contactPayload `json:"contactByPhone"`
	}
	err := c.query(ctx, lookupByPhoneQuery, map[string]any{"phone": phone}, &data)
	if err != nil {
		return nil, err
	}
	if data.ContactByPhone == nil {
		return nil, fmt.Errorf("%w: phone=%s", contractx.ErrContactNotFound, phone)
	}

	return toContact(data.ContactByPhone), nil
}

func (c *Client) CreateContact(ctx context.Context, firstName, lastName, phone string) (*contractx.Contact, error) {
	if strings.TrimSpace(firstName) == "" || strings.TrimSpace(phone) == "" {
		return nil, errors.New("first name and phone are required")
	}

	var data struct {
		CreateContact *contactPayload `json:"createContact"`
	}
	err := c.query(ctx, createContactMutation, map[string]any{
		"firstName": firstName,
		"lastName":  lastName,
		"phone":     phone,
	}, &data)
	if err != nil {
		return nil, err
	}
	if data.CreateContact == nil {
		return nil, errors.New("crm returned no contact for createContact")
	}

	return toContact(data.CreateContact), nil
}

func toContact(p *contactPayload) *contractx.Contact {
	return &contractx.Contact{
		ExternalID:        p.ID,
		DisplayName:       p.DisplayName,
		Mobile:            p.Mobile,
		LastAppointmentID: p.LastAppointmentID,
	}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type graphqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphqlError  `json:"errors"`
}

func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	payload, err := json.Marshal(graphqlRequest{Query: query, Variables: variables})
	if err != nil {
		return fmt.Errorf("marshal crm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build crm request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute crm request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return fmt.Errorf("read crm response: %w", err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("crm http status=%d body=%s", resp.StatusCode, string(raw))
	}

	var parsed graphqlResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("decode crm response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return fmt.Errorf("crm graphql error: %s", parsed.Errors[0].Message)
	}
	if out != nil && len(parsed.Data) > 0 {
		if err := json.Unmarshal(parsed.Data, out); err != nil {
			return fmt.Errorf("decode crm data: %w", err)
		}
	}
	return nil
}
