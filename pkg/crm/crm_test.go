package crm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	contractx "github.com/velaline/booking-agent/agent/contract"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{Endpoint: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestLookupByPhone(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req graphqlRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("body is not JSON: %v", err)
		}
		if !strings.Contains(req.Query, "contactByPhone") {
			t.Errorf("query = %q", req.Query)
		}
		if req.Variables["phone"] != "+66812345678" {
			t.Errorf("phone variable = %v", req.Variables["phone"])
		}
		fmt.Fprint(w, `{"data":{"contactByPhone":{"id":"c1","displayName":"May","mobile":"+66812345678","lastAppointmentId":"appt:prev"}}}`)
	})

	contact, err := client.LookupByPhone(context.Background(), "+66812345678")
	if err != nil {
		t.Fatalf("LookupByPhone: %v", err)
	}
	if contact.ExternalID != "c1" || contact.LastAppointmentID != "appt:prev" {
		t.Fatalf("LookupByPhone = %+v", contact)
	}
}

func TestLookupByPhoneNotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"data":{"contactByPhone":null}}`)
	})

	_, err := client.LookupByPhone(context.Background(), "+66999999999")
	if !errors.Is(err, contractx.ErrContactNotFound) {
		t.Fatalf("err = %v, want ErrContactNotFound", err)
	}
}

func TestLookupByPhoneGraphQLError(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"errors":[{"message":"rate limited"}]}`)
	})

	_, err := client.LookupByPhone(context.Background(), "+66812345678")
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("err = %v, want the graphql error surfaced", err)
	}
}

func TestCreateContact(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req graphqlRequest
		_ = json.Unmarshal(body, &req)
		if !strings.Contains(req.Query, "createContact") {
			t.Errorf("query = %q", req.Query)
		}
		if req.Variables["firstName"] != "May" || req.Variables["phone"] != "+66812345678" {
			t.Errorf("variables = %v", req.Variables)
		}
		fmt.Fprint(w, `{"data":{"createContact":{"id":"c-new","displayName":"May","mobile":"+66812345678"}}}`)
	})

	contact, err := client.CreateContact(context.Background(), "May", "", "+66812345678")
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	if contact.ExternalID != "c-new" {
		t.Fatalf("CreateContact = %+v", contact)
	}
}

func TestCreateContactRequiresNameAndPhone(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	if _, err := client.CreateContact(context.Background(), "", "", "+66812345678"); err == nil {
		t.Fatalf("want error for missing first name")
	}
	if _, err := client.CreateContact(context.Background(), "May", "", " "); err == nil {
		t.Fatalf("want error for missing phone")
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{Endpoint: "", APIKey: "k"}); err == nil {
		t.Fatalf("want error for empty endpoint")
	}
	if _, err := NewClient(Config{Endpoint: "https://crm.example.com/graphql", APIKey: ""}); err == nil {
		t.Fatalf("want error for empty api key")
	}
}
