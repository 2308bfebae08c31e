package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	contractx "github.com/velaline/booking-agent/agent/contract"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestListServices(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/services" {
			t.Errorf("got %s %s, want GET /services", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		fmt.Fprint(w, `[{"id":"svc-1","name":"Gel Manicure","price":45,"duration_minutes":60}]`)
	})

	services, err := client.ListServices(context.Background())
	if err != nil {
		t.Fatalf("ListServices: %v", err)
	}
	if len(services) != 1 || services[0].ID != "svc-1" {
		t.Fatalf("ListServices = %+v", services)
	}
}

func TestCheckAvailability(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/availability" {
			t.Errorf("got %s %s, want POST /availability", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("body is not JSON: %v", err)
		}
		if req["date"] != "2026-09-01" {
			t.Errorf("date = %v", req["date"])
		}
		fmt.Fprint(w, `[{"date":"2026-09-01","time":"14:00"},{"date":"2026-09-01","time":"16:00"}]`)
	})

	slots, err := client.CheckAvailability(context.Background(), "2026-09-01", []string{"svc-1"})
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if len(slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2", len(slots))
	}
}

func TestCreateAppointmentConflict(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"message":"slot taken","date":"2026-09-01","time":"14:00","alternatives":[{"date":"2026-09-01","time":"16:00"}]}`)
	})

	_, err := client.CreateAppointment(context.Background(), contractx.AppointmentRequest{
		CustomerID: "c1", Date: "2026-09-01", Time: "14:00", ServiceIDs: []string{"svc-1"},
	})
	conflict, ok := contractx.AsConflict(err)
	if !ok {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if conflict.Date != "2026-09-01" || conflict.Time != "14:00" {
		t.Fatalf("conflict slot = %s %s", conflict.Date, conflict.Time)
	}
	if len(conflict.Alternatives) != 1 || conflict.Alternatives[0].Time != "16:00" {
		t.Fatalf("alternatives = %+v", conflict.Alternatives)
	}
}

func TestUpdateAppointmentRoute(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/appointments/appt:77" {
			t.Errorf("got %s %s, want PATCH /appointments/appt:77", r.Method, r.URL.Path)
		}
		fmt.Fprint(w, `{"id":"appt:77","date":"2026-09-02","time":"15:00"}`)
	})

	appt, err := client.UpdateAppointment(context.Background(), "appt:77", contractx.AppointmentRequest{
		CustomerID: "c1", Date: "2026-09-02", Time: "15:00",
	})
	if err != nil {
		t.Fatalf("UpdateAppointment: %v", err)
	}
	if appt.ID != "appt:77" || appt.Date != "2026-09-02" {
		t.Fatalf("UpdateAppointment = %+v", appt)
	}
}

func TestCancelAppointmentRoute(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/appointments/appt:77" {
			t.Errorf("got %s %s, want DELETE /appointments/appt:77", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.CancelAppointment(context.Background(), "appt:77"); err != nil {
		t.Fatalf("CancelAppointment: %v", err)
	}
}

func TestServerErrorSurfacesStatus(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		fmt.Fprint(w, "upstream down")
	})

	if _, err := client.ListServices(context.Background()); err == nil {
		t.Fatalf("want error on 502")
	}
}

func TestNewClientValidation(t *testing.T) {
	t.Parallel()

	if _, err := NewClient(Config{BaseURL: "", APIKey: "k"}); err == nil {
		t.Fatalf("want error for empty base url")
	}
	if _, err := NewClient(Config{BaseURL: "https://sched.example.com", APIKey: " "}); err == nil {
		t.Fatalf("want error for empty api key")
	}
}
