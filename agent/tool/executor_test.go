package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	catalogx "github.com/velaline/booking-agent/agent/catalog"
	contractx "github.com/velaline/booking-agent/agent/contract"
	statex "github.com/velaline/booking-agent/agent/state"
)

type fakeScheduling struct {
	services []contractx.Service

	availability    []contractx.Slot
	availabilityErr error

	createErr   error
	updateErr   error
	cancelErr   error
	created     []contractx.AppointmentRequest
	updated     []contractx.AppointmentRequest
	updatedIDs  []string
	cancelledID string
	nextApptID  string
}

func (f *fakeScheduling) ListServices(ctx context.Context) ([]contractx.Service, error) {
	return f.services, nil
}

func (f *fakeScheduling) CheckAvailability(ctx context.Context, date string, serviceIDs []string) ([]contractx.Slot, error) {
	if f.availabilityErr != nil {
		return nil, f.availabilityErr
	}
	return f.availability, nil
}

func (f *fakeScheduling) CreateAppointment(ctx context.Context, req contractx.AppointmentRequest) (*contractx.Appointment, error) {
	f.created = append(f.created, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	id := f.nextApptID
	if id == "" {
		id = "appt:new"
	}
	return &contractx.Appointment{ID: id, Date: req.Date, Time: req.Time, ServiceIDs: req.ServiceIDs}, nil
}

func (f *fakeScheduling) UpdateAppointment(ctx context.Context, appointmentID string, req contractx.AppointmentRequest) (*contractx.Appointment, error) {
	f.updated = append(f.updated, req)
	f.updatedIDs = append(f.updatedIDs, appointmentID)
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &contractx.Appointment{ID: appointmentID, Date: req.Date, Time: req.Time, ServiceIDs: req.ServiceIDs}, nil
}

func (f *fakeScheduling) CancelAppointment(ctx context.Context, appointmentID string) error {
	if f.cancelErr != nil {
		return f.cancelErr
	}
	f.cancelledID = appointmentID
	return nil
}

type fakeCRM struct {
	contacts    map[string]*contractx.Contact
	createdName string
	lookupErr   error
}

func (f *fakeCRM) LookupByPhone(ctx context.Context, phone string) (*contractx.Contact, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	if c, ok := f.contacts[phone]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("%w: phone=%s", contractx.ErrContactNotFound, phone)
}

func (f *fakeCRM) CreateContact(ctx context.Context, firstName, lastName, phone string) (*contractx.Contact, error) {
	f.createdName = strings.TrimSpace(firstName + " " + lastName)
	return &contractx.Contact{ExternalID: "c-new", DisplayName: f.createdName, Mobile: phone}, nil
}

func newTestExecutor(t *testing.T, scheduling *fakeScheduling, crm *fakeCRM) *Executor {
	t.Helper()
	if scheduling.services == nil {
		scheduling.services = []contractx.Service{
			{ID: "svc-1", Name: "Lashes - Full Set - Classic", Price: 120, DurationMinutes: 90},
			{ID: "svc-2", Name: "Lashes - Full Set - Volume", Price: 150, DurationMinutes: 120},
			{ID: "svc-3", Name: "Gel Manicure", Price: 45, DurationMinutes: 60},
		}
	}
	resolver, err := catalogx.NewResolver(scheduling)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	exec, err := NewExecutor(resolver, scheduling, crm)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return exec
}

func newSession(t *testing.T) *statex.SessionContext {
	t.Helper()
	return statex.NewSessionContext("s1", contractx.RoleCustomer, time.Now())
}

func identified(t *testing.T) *statex.SessionContext {
	t.Helper()
	sctx := newSession(t)
	sctx.Identity = &statex.Identity{ExternalID: "c1", DisplayName: "May", Mobile: "+66812345678"}
	return sctx
}

func TestExecuteUnknownTool(t *testing.T) {
	t.Parallel()

	exec := newTestExecutor(t, &fakeScheduling{}, &fakeCRM{})
	res := exec.Execute(context.Background(), newSession(t), contractx.ToolRequest{CallID: "c1", Tool: "time.travel"})
	if res.Error == "" || !strings.Contains(res.Error, "unknown tool") {
		t.Fatalf("Execute = %+v, want unknown-tool error", res)
	}
	if res.CallID != "c1" {
		t.Fatalf("CallID = %q, want c1", res.CallID)
	}
}

func TestCustomerLookupSetsIdentity(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{contacts: map[string]*contractx.Contact{
		"+66812345678": {ExternalID: "c1", DisplayName: "May", Mobile: "+66812345678", LastAppointmentID: "appt:prev"},
	}}
	exec := newTestExecutor(t, &fakeScheduling{}, crm)
	sctx := newSession(t)

	res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{
		Tool: ToolCustomerLookup,
		Args: map[string]any{"phone": "+66 81-234-5678"},
	})
	if res.Error != "" {
		t.Fatalf("Execute: %v", res.Error)
	}
	if sctx.Identity == nil || sctx.Identity.ExternalID != "c1" {
		t.Fatalf("identity not set: %+v", sctx.Identity)
	}
	if sctx.Memory.ActiveAppointmentID != "appt:prev" {
		t.Fatalf("last appointment not carried: %q", sctx.Memory.ActiveAppointmentID)
	}
}

func TestCustomerLookupRecoversMisplacedPhone(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{contacts: map[string]*contractx.Contact{
		"+66812345678": {ExternalID: "c1", DisplayName: "May", Mobile: "+66812345678"},
	}}
	exec := newTestExecutor(t, &fakeScheduling{}, crm)
	sctx := newSession(t)

	res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{
		Tool: ToolCustomerLookup,
		Args: map[string]any{"query": "her number is +66 81 234 5678 I think"},
	})
	if res.Error != "" {
		t.Fatalf("Execute: %v", res.Error)
	}
	if sctx.Identity == nil {
		t.Fatalf("identity not set from recovered phone")
	}
}

func TestCustomerLookupNotFound(t *testing.T) {
	t.Parallel()

	exec := newTestExecutor(t, &fakeScheduling{}, &fakeCRM{})
	sctx := newSession(t)

	res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{
		Tool: ToolCustomerLookup,
		Args: map[string]any{"phone": "+66999999999"},
	})
	if !strings.Contains(res.Error, "no customer found") {
		t.Fatalf("Execute = %+v, want not-found guidance", res)
	}
	if sctx.Identity != nil {
		t.Fatalf("identity must not be fabricated on a miss")
	}
}

func TestServicesSelect(t *testing.T) {
	t.Parallel()

	exec := newTestExecutor(t, &fakeScheduling{}, &fakeCRM{})

	t.Run("unique match is stored", func(t *testing.T) {
		t.Parallel()
		sctx := newSession(t)
		res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{
			Tool: ToolServicesSelect,
			Args: map[string]any{"names": []any{"gel manicure"}},
		})
		if res.Error != "" {
			t.Fatalf("Execute: %v", res.Error)
		}
		if got := sctx.SelectedServiceIDs(); len(got) != 1 || got[0] != "svc-3" {
			t.Fatalf("SelectedServiceIDs = %v, want [svc-3]", got)
		}
	})

	t.Run("ambiguous reference lists candidates", func(t *testing.T) {
		t.Parallel()
		sctx := newSession(t)
		res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{
			Tool: ToolServicesSelect,
			Args: map[string]any{"names": []any{"lashes"}},
		})
		if !strings.Contains(res.Error, "ambiguous") || !strings.Contains(res.Error, "Classic") || !strings.Contains(res.Error, "Volume") {
			t.Fatalf("Execute = %+v, want candidate listing", res)
		}
		if len(sctx.SelectedServiceIDs()) != 0 {
			t.Fatalf("ambiguity must not select anything")
		}
	})

	t.Run("no match", func(t *testing.T) {
		t.Parallel()
		sctx := newSession(t)
		res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{
			Tool: ToolServicesSelect,
			Args: map[string]any{"names": []any{"haircut"}},
		})
		if !strings.Contains(res.Error, "no service matches") {
			t.Fatalf("Execute = %+v, want no-match error", res)
		}
	})

	t.Run("one bad name commits nothing", func(t *testing.T) {
		t.Parallel()
		sctx := newSession(t)
		res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{
			Tool: ToolServicesSelect,
			Args: map[string]any{"names": []any{"gel manicure", "lashes"}},
		})
		if !strings.Contains(res.Error, "ambiguous") {
			t.Fatalf("Execute = %+v, want ambiguity error", res)
		}
		if got := sctx.SelectedServiceIDs(); len(got) != 0 {
			t.Fatalf("SelectedServiceIDs = %v, a failed batch must not select anything", got)
		}
	})
}

func TestAvailabilityCheckRequiresSelection(t *testing.T) {
	t.Parallel()

	exec := newTestExecutor(t, &fakeScheduling{}, &fakeCRM{})
	sctx := newSession(t)

	res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{
		Tool: ToolAvailabilityCheck,
		Args: map[string]any{"date": "2026-09-01"},
	})
	if !strings.Contains(res.Error, "no services selected") {
		t.Fatalf("Execute = %+v, want selection guidance", res)
	}
}

func TestAvailabilityCheckStoresDate(t *testing.T) {
	t.Parallel()

	scheduling := &fakeScheduling{availability: []contractx.Slot{{Date: "2026-09-01", Time: "14:00"}}}
	exec := newTestExecutor(t, scheduling, &fakeCRM{})
	sctx := newSession(t)
	sctx.SelectService(contractx.Service{ID: "svc-3", Name: "Gel Manicure"})

	res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{
		Tool: ToolAvailabilityCheck,
		Args: map[string]any{"date": "2026-09-01"},
	})
	if res.Error != "" {
		t.Fatalf("Execute: %v", res.Error)
	}
	if sctx.Memory.PreferredDate != "2026-09-01" {
		t.Fatalf("PreferredDate = %q, want the checked date", sctx.Memory.PreferredDate)
	}
}

func TestAppointmentCreateConfirms(t *testing.T) {
	t.Parallel()

	scheduling := &fakeScheduling{nextApptID: "appt:77"}
	exec := newTestExecutor(t, scheduling, &fakeCRM{})
	sctx := identified(t)
	sctx.SelectService(contractx.Service{ID: "svc-3", Name: "Gel Manicure"})

	res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{
		Tool: ToolAppointmentCreate,
		Args: map[string]any{"date": "2026-09-01", "time": "14:00"},
	})
	if res.Error != "" {
		t.Fatalf("Execute: %v", res.Error)
	}
	if sctx.Memory.ActiveAppointmentID != "" {
		t.Fatalf("ActiveAppointmentID = %q, a fresh booking must not become the discussed appointment", sctx.Memory.ActiveAppointmentID)
	}
	if sctx.Memory.Booking.State != statex.BookingConfirmed {
		t.Fatalf("booking state = %q, want confirmed", sctx.Memory.Booking.State)
	}
	if sctx.Memory.Booking.AppointmentID != "appt:77" {
		t.Fatalf("Booking.AppointmentID = %q, want appt:77", sctx.Memory.Booking.AppointmentID)
	}
	if len(scheduling.created) != 1 || scheduling.created[0].Force {
		t.Fatalf("created = %+v, want one unforced request", scheduling.created)
	}
}

func TestAppointmentCreateRequiresIdentity(t *testing.T) {
	t.Parallel()

	exec := newTestExecutor(t, &fakeScheduling{}, &fakeCRM{})
	sctx := newSession(t)
	sctx.SelectService(contractx.Service{ID: "svc-3", Name: "Gel Manicure"})

	res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{
		Tool: ToolAppointmentCreate,
		Args: map[string]any{"date": "2026-09-01", "time": "14:00"},
	})
	if !strings.Contains(res.Error, "no customer identified") {
		t.Fatalf("Execute = %+v, want identity guidance", res)
	}
}

func TestAppointmentCreateConflictParksAttempt(t *testing.T) {
	t.Parallel()

	conflict := &contractx.ConflictError{
		Date: "2026-09-01", Time: "14:00",
		Alternatives: []contractx.Slot{{Date: "2026-09-01", Time: "16:00"}, {Date: "2026-09-02", Time: "10:00"}},
	}
	scheduling := &fakeScheduling{createErr: conflict}
	exec := newTestExecutor(t, scheduling, &fakeCRM{})
	sctx := identified(t)
	sctx.SelectService(contractx.Service{ID: "svc-3", Name: "Gel Manicure"})

	res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{
		Tool: ToolAppointmentCreate,
		Args: map[string]any{"date": "2026-09-01", "time": "14:00"},
	})
	if res.Error == "" {
		t.Fatalf("conflict must surface as an error result")
	}
	payload, ok := res.Result.(map[string]any)
	if !ok || payload["conflict"] != true {
		t.Fatalf("Result = %+v, want conflict marker", res.Result)
	}

	attempt := sctx.Memory.Booking
	if !attempt.AwaitingOverride() {
		t.Fatalf("booking state = %q, want awaiting_override", attempt.State)
	}
	if attempt.Date != "2026-09-01" || attempt.Time != "14:00" {
		t.Fatalf("attempt slot = %s %s, want the conflicted slot", attempt.Date, attempt.Time)
	}
	if len(attempt.ServiceIDs) != 1 || attempt.ServiceIDs[0] != "svc-3" {
		t.Fatalf("attempt services = %v", attempt.ServiceIDs)
	}
	if len(attempt.Alternatives) != 2 {
		t.Fatalf("attempt alternatives = %v", attempt.Alternatives)
	}
}

func TestAppointmentUpdateFallsBackToActiveAppointment(t *testing.T) {
	t.Parallel()

	scheduling := &fakeScheduling{}
	exec := newTestExecutor(t, scheduling, &fakeCRM{})
	sctx := identified(t)
	sctx.Memory.ActiveAppointmentID = "appt:prev"

	res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{
		Tool: ToolAppointmentUpdate,
		Args: map[string]any{"date": "2026-09-02", "time": "15:00"},
	})
	if res.Error != "" {
		t.Fatalf("Execute: %v", res.Error)
	}
	if len(scheduling.updatedIDs) != 1 || scheduling.updatedIDs[0] != "appt:prev" {
		t.Fatalf("updatedIDs = %v, want the active appointment", scheduling.updatedIDs)
	}
}

func TestAppointmentUpdateFallsBackToConfirmedBooking(t *testing.T) {
	t.Parallel()

	scheduling := &fakeScheduling{}
	exec := newTestExecutor(t, scheduling, &fakeCRM{})
	sctx := identified(t)
	sctx.Memory.Booking = statex.BookingAttempt{
		State:         statex.BookingConfirmed,
		AppointmentID: "appt:77",
		Date:          "2026-09-01",
		Time:          "14:00",
	}

	res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{
		Tool: ToolAppointmentUpdate,
		Args: map[string]any{"date": "2026-09-02", "time": "15:00"},
	})
	if res.Error != "" {
		t.Fatalf("Execute: %v", res.Error)
	}
	if len(scheduling.updatedIDs) != 1 || scheduling.updatedIDs[0] != "appt:77" {
		t.Fatalf("updatedIDs = %v, want the confirmed booking", scheduling.updatedIDs)
	}
	if sctx.Memory.ActiveAppointmentID != "appt:77" {
		t.Fatalf("ActiveAppointmentID = %q, an update should focus the edited appointment", sctx.Memory.ActiveAppointmentID)
	}
}

func TestAppointmentCancelClearsFocus(t *testing.T) {
	t.Parallel()

	scheduling := &fakeScheduling{}
	exec := newTestExecutor(t, scheduling, &fakeCRM{})
	sctx := identified(t)
	sctx.Memory.ActiveAppointmentID = "appt:prev"
	sctx.SelectService(contractx.Service{ID: "svc-3", Name: "Gel Manicure"})

	res := exec.Execute(context.Background(), sctx, contractx.ToolRequest{Tool: ToolAppointmentCancel, Args: map[string]any{}})
	if res.Error != "" {
		t.Fatalf("Execute: %v", res.Error)
	}
	if scheduling.cancelledID != "appt:prev" {
		t.Fatalf("cancelledID = %q", scheduling.cancelledID)
	}
	if sctx.Memory.ActiveAppointmentID != "" || len(sctx.Memory.SelectedServices) != 0 {
		t.Fatalf("focus not cleared: %+v", sctx.Memory)
	}
	if sctx.Identity == nil {
		t.Fatalf("identity must survive a cancellation")
	}
}

func TestReissueForcedRepeatsSnapshotWithForce(t *testing.T) {
	t.Parallel()

	scheduling := &fakeScheduling{nextApptID: "appt:forced"}
	exec := newTestExecutor(t, scheduling, &fakeCRM{})
	sctx := identified(t)
	sctx.Memory.Booking = statex.BookingAttempt{
		State:      statex.BookingAwaitingOverride,
		Date:       "2026-09-01",
		Time:       "14:00",
		ServiceIDs: []string{"svc-3"},
	}

	res := exec.ReissueForced(context.Background(), sctx)
	if res.Error != "" {
		t.Fatalf("ReissueForced: %v", res.Error)
	}
	if len(scheduling.created) != 1 {
		t.Fatalf("created %d appointments, want exactly 1", len(scheduling.created))
	}
	got := scheduling.created[0]
	if !got.Force {
		t.Fatalf("reissued request must carry Force")
	}
	if got.Date != "2026-09-01" || got.Time != "14:00" || len(got.ServiceIDs) != 1 || got.ServiceIDs[0] != "svc-3" {
		t.Fatalf("reissued payload = %+v, want the parked snapshot", got)
	}
	if sctx.Memory.Booking.State != statex.BookingConfirmed || sctx.Memory.ActiveAppointmentID != "appt:forced" {
		t.Fatalf("booking not confirmed after force: %+v", sctx.Memory)
	}
}

func TestReissueForcedUsesUpdateWhenSnapshotHasAppointment(t *testing.T) {
	t.Parallel()

	scheduling := &fakeScheduling{}
	exec := newTestExecutor(t, scheduling, &fakeCRM{})
	sctx := identified(t)
	sctx.Memory.Booking = statex.BookingAttempt{
		State:         statex.BookingAwaitingOverride,
		AppointmentID: "appt:prev",
		Date:          "2026-09-02",
		Time:          "15:00",
	}

	res := exec.ReissueForced(context.Background(), sctx)
	if res.Error != "" {
		t.Fatalf("ReissueForced: %v", res.Error)
	}
	if len(scheduling.updatedIDs) != 1 || scheduling.updatedIDs[0] != "appt:prev" {
		t.Fatalf("updatedIDs = %v, want the snapshot appointment", scheduling.updatedIDs)
	}
	if !scheduling.updated[0].Force {
		t.Fatalf("reissued update must carry Force")
	}
}

func TestReissueForcedWithoutPendingConflict(t *testing.T) {
	t.Parallel()

	exec := newTestExecutor(t, &fakeScheduling{}, &fakeCRM{})
	res := exec.ReissueForced(context.Background(), identified(t))
	if res.Error == "" {
		t.Fatalf("want error when nothing awaits an override")
	}
}

func TestExecuteHonorsToolTimeout(t *testing.T) {
	t.Parallel()

	crm := &fakeCRM{lookupErr: context.DeadlineExceeded}
	resolver, err := catalogx.NewResolver(&fakeScheduling{services: studioServices()})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	exec, err := NewExecutor(resolver, &fakeScheduling{}, crm, WithToolTimeout(time.Nanosecond))
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}

	res := exec.Execute(context.Background(), newSession(t), contractx.ToolRequest{
		Tool: ToolCustomerLookup,
		Args: map[string]any{"phone": "+66812345678"},
	})
	if !strings.Contains(res.Error, "timed out") {
		t.Fatalf("Execute = %+v, want timeout guidance", res)
	}
}

func studioServices() []contractx.Service {
	return []contractx.Service{{ID: "svc-1", Name: "Gel Manicure", Price: 45, DurationMinutes: 60}}
}

func TestDecodeArgsRejectsWrongShape(t *testing.T) {
	t.Parallel()

	var into servicesSelectArgs
	err := decodeArgs(map[string]any{"names": "not a list"}, &into)
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("decodeArgs: err = %v, want ErrValidation", err)
	}
}

func TestRecoverPhone(t *testing.T) {
	t.Parallel()

	got := recoverPhone(map[string]any{"note": "call her at (081) 234-5678 tomorrow"})
	if got != "0812345678" {
		t.Fatalf("recoverPhone = %q, want 0812345678", got)
	}
	if recoverPhone(map[string]any{"note": "no number here"}) != "" {
		t.Fatalf("recoverPhone must return empty on no match")
	}
}
