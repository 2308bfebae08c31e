package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	catalogx "github.com/velaline/booking-agent/agent/catalog"
	contractx "github.com/velaline/booking-agent/agent/contract"
	statex "github.com/velaline/booking-agent/agent/state"
)

const defaultToolTimeout = 15 * time.Second

// Executor runs tool invocations against the scheduling and CRM backends
// and applies their side effects to the session context. It never returns
// a transport error upward: every failure becomes a ToolResult error the
// model can react to.
type Executor struct {
	catalog    *catalogx.Resolver
	scheduling contractx.SchedulingClient
	crm        contractx.CRMClient
	timeout    time.Duration
}

type ExecutorOption func(*Executor)

func WithToolTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		if timeout > 0 {
			e.timeout = timeout
		}
	}
}

func NewExecutor(
	catalog *catalogx.Resolver,
	scheduling contractx.SchedulingClient,
	crm contractx.CRMClient,
	opts ...ExecutorOption,
) (*Executor, error) {
	if catalog == nil {
		return nil, fmt.Errorf("%w: catalog resolver is required", contractx.ErrValidation)
	}
	if scheduling == nil {
		return nil, fmt.Errorf("%w: scheduling client is required", contractx.ErrValidation)
	}
	if crm == nil {
		return nil, fmt.Errorf("%w: crm client is required", contractx.ErrValidation)
	}
	e := &Executor{
		catalog:    catalog,
		scheduling: scheduling,
		crm:        crm,
		timeout:    defaultToolTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Execute runs one requested tool invocation. The session context is
// mutated in place (identity, selections, booking attempt); persistence is
// the caller's job.
func (e *Executor) Execute(ctx context.Context, sctx *statex.SessionContext, req contractx.ToolRequest) contractx.ToolResult {
	if !Known(req.Tool) {
		return errResult(req, fmt.Sprintf("unknown tool %q", req.Tool))
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	var res contractx.ToolResult
	switch req.Tool {
	case ToolCustomerLookup:
		res = e.customerLookup(callCtx, sctx, req)
	case ToolContactCreate:
		res = e.contactCreate(callCtx, sctx, req)
	case ToolServicesList:
		res = e.servicesList(callCtx, req)
	case ToolServicesSelect:
		res = e.servicesSelect(callCtx, sctx, req)
	case ToolAvailabilityCheck:
		res = e.availabilityCheck(callCtx, sctx, req)
	case ToolAppointmentCreate:
		res = e.appointmentCreate(callCtx, sctx, req)
	case ToolAppointmentUpdate:
		res = e.appointmentUpdate(callCtx, sctx, req)
	case ToolAppointmentCancel:
		res = e.appointmentCancel(callCtx, sctx, req)
	}

	if res.Error != "" {
		log.Debug().Str("tool", req.Tool).Str("error", res.Error).Msg("tool returned error result")
	}
	return res
}

/* ------------------------------ CRM tools ------------------------------- */

func (e *Executor) customerLookup(ctx context.Context, sctx *statex.SessionContext, req contractx.ToolRequest) contractx.ToolResult {
	var args customerLookupArgs
	if err := decodeArgs(req.Args, &args); err != nil {
		return errResult(req, err.Error())
	}
	if strings.TrimSpace(args.Phone) == "" {
		args.Phone = recoverPhone(req.Args)
	}
	if args.Phone == "" {
		return errResult(req, "phone is required; ask the caller for their mobile number")
	}

	contact, err := e.crm.LookupByPhone(ctx, normalizePhone(args.Phone))
	if err != nil {
		if ctx.Err() != nil {
			return errResult(req, "customer lookup timed out; try again")
		}
		if errors.Is(err, contractx.ErrContactNotFound) {
			return errResult(req, "no customer found for that number; offer to create a new contact")
		}
		return errResult(req, "customer lookup failed: "+err.Error())
	}

	sctx.Identity = &statex.Identity{
		ExternalID:  contact.ExternalID,
		DisplayName: contact.DisplayName,
		Mobile:      contact.Mobile,
	}
	// The contact's most recent appointment rides along so follow-up
	// questions can reference it. A later create intent clears it.
	if contact.LastAppointmentID != "" {
		sctx.Memory.ActiveAppointmentID = contact.LastAppointmentID
	}

	return okResult(req, map[string]any{
		"display_name":         contact.DisplayName,
		"mobile":               contact.Mobile,
		"has_past_appointment": contact.LastAppointmentID != "",
	})
}

func (e *Executor) contactCreate(ctx context.Context, sctx *statex.SessionContext, req contractx.ToolRequest) contractx.ToolResult {
	var args contactCreateArgs
	if err := decodeArgs(req.Args, &args); err != nil {
		return errResult(req, err.Error())
	}
	if strings.TrimSpace(args.Phone) == "" {
		args.Phone = recoverPhone(req.Args)
	}
	if strings.TrimSpace(args.FirstName) == "" || strings.TrimSpace(args.Phone) == "" {
		return errResult(req, "first_name and phone are required to create a contact")
	}

	contact, err := e.crm.CreateContact(ctx, strings.TrimSpace(args.FirstName), strings.TrimSpace(args.LastName), normalizePhone(args.Phone))
	if err != nil {
		if ctx.Err() != nil {
			return errResult(req, "contact creation timed out; try again")
		}
		return errResult(req, "contact creation failed: "+err.Error())
	}

	sctx.Identity = &statex.Identity{
		ExternalID:  contact.ExternalID,
		DisplayName: contact.DisplayName,
		Mobile:      contact.Mobile,
	}

	return okResult(req, map[string]any{
		"display_name": contact.DisplayName,
		"mobile":       contact.Mobile,
	})
}

/* ----------------------------- Catalog tools ---------------------------- */

func (e *Executor) servicesList(ctx context.Context, req contractx.ToolRequest) contractx.ToolResult {
	services, err := e.catalog.ListAll(ctx, false)
	if err != nil {
		return errResult(req, "service catalog is unavailable right now")
	}
	return okResult(req, services)
}

func (e *Executor) servicesSelect(ctx context.Context, sctx *statex.SessionContext, req contractx.ToolRequest) contractx.ToolResult {
	var args servicesSelectArgs
	if err := decodeArgs(req.Args, &args); err != nil {
		return errResult(req, err.Error())
	}
	if len(args.Names) == 0 {
		return errResult(req, "names is required: which services does the caller want?")
	}

	// Resolve every name before committing any selection; one ambiguous
	// name must not leave a half-applied batch in the session.
	matches := make([]contractx.Service, 0, len(args.Names))
	for _, name := range args.Names {
		match, err := e.catalog.Resolve(ctx, name)
		if err != nil {
			return errResult(req, "service catalog is unavailable right now")
		}
		if match.Service == nil {
			if len(match.Candidates) == 0 {
				return errResult(req, fmt.Sprintf("no service matches %q; ask the caller to pick from the catalog", name))
			}
			candidates := make([]string, 0, len(match.Candidates))
			for _, c := range match.Candidates {
				candidates = append(candidates, c.Name)
			}
			return errResult(req, fmt.Sprintf("%q is ambiguous; ask the caller to choose between: %s", name, strings.Join(candidates, "; ")))
		}
		matches = append(matches, *match.Service)
	}

	resolved := make([]statex.SelectedService, 0, len(matches))
	for _, svc := range matches {
		sctx.SelectService(svc)
		resolved = append(resolved, statex.SelectedService{
			ID:              svc.ID,
			Name:            svc.Name,
			Price:           svc.Price,
			DurationMinutes: svc.DurationMinutes,
		})
	}

	return okResult(req, resolved)
}

/* ---------------------------- Scheduling tools -------------------------- */

func (e *Executor) availabilityCheck(ctx context.Context, sctx *statex.SessionContext, req contractx.ToolRequest) contractx.ToolResult {
	var args availabilityCheckArgs
	if err := decodeArgs(req.Args, &args); err != nil {
		return errResult(req, err.Error())
	}
	date := strings.TrimSpace(args.Date)
	if date == "" {
		date = sctx.Memory.PreferredDate
	}
	if date == "" {
		return errResult(req, "date is required: which day is the caller asking about?")
	}
	serviceIDs := sctx.SelectedServiceIDs()
	if len(serviceIDs) == 0 {
		return errResult(req, "no services selected yet; use services.select first")
	}

	slots, err := e.scheduling.CheckAvailability(ctx, date, serviceIDs)
	if err != nil {
		if ctx.Err() != nil {
			return errResult(req, "availability check timed out; try again")
		}
		return errResult(req, "availability check failed: "+err.Error())
	}

	sctx.Memory.PreferredDate = date
	return okResult(req, slots)
}

func (e *Executor) appointmentCreate(ctx context.Context, sctx *statex.SessionContext, req contractx.ToolRequest) contractx.ToolResult {
	var args appointmentCreateArgs
	if err := decodeArgs(req.Args, &args); err != nil {
		return errResult(req, err.Error())
	}
	payload, errMsg := e.buildBookingPayload(sctx, args.Date, args.Time, false)
	if errMsg != "" {
		return errResult(req, errMsg)
	}

	appt, err := e.scheduling.CreateAppointment(ctx, payload)
	if err != nil {
		return e.bookingFailure(ctx, sctx, req, "", payload, err)
	}

	e.confirmBooking(sctx, appt.ID, payload)
	return okResult(req, map[string]any{
		"date":     appt.Date,
		"time":     appt.Time,
		"services": len(payload.ServiceIDs),
	})
}

func (e *Executor) appointmentUpdate(ctx context.Context, sctx *statex.SessionContext, req contractx.ToolRequest) contractx.ToolResult {
	var args appointmentUpdateArgs
	if err := decodeArgs(req.Args, &args); err != nil {
		return errResult(req, err.Error())
	}
	appointmentID := targetAppointmentID(sctx, args.AppointmentID)
	if appointmentID == "" {
		return errResult(req, "no appointment identified to update; look the customer up first")
	}

	payload, errMsg := e.buildBookingPayload(sctx, args.Date, args.Time, true)
	if errMsg != "" {
		return errResult(req, errMsg)
	}

	appt, err := e.scheduling.UpdateAppointment(ctx, appointmentID, payload)
	if err != nil {
		return e.bookingFailure(ctx, sctx, req, appointmentID, payload, err)
	}

	e.confirmBooking(sctx, appt.ID, payload)
	sctx.Memory.ActiveAppointmentID = appt.ID
	return okResult(req, map[string]any{
		"date": appt.Date,
		"time": appt.Time,
	})
}

func (e *Executor) appointmentCancel(ctx context.Context, sctx *statex.SessionContext, req contractx.ToolRequest) contractx.ToolResult {
	var args appointmentCancelArgs
	if err := decodeArgs(req.Args, &args); err != nil {
		return errResult(req, err.Error())
	}
	appointmentID := targetAppointmentID(sctx, args.AppointmentID)
	if appointmentID == "" {
		return errResult(req, "no appointment identified to cancel; look the customer up first")
	}

	if err := e.scheduling.CancelAppointment(ctx, appointmentID); err != nil {
		if ctx.Err() != nil {
			return errResult(req, "cancellation timed out; try again")
		}
		return errResult(req, "cancellation failed: "+err.Error())
	}

	sctx.ClearAppointmentFocus()
	return okResult(req, map[string]any{"cancelled": true})
}

/* ------------------------------ Booking core ---------------------------- */

// ReissueForced repeats a conflicted booking attempt with the force flag
// set. The payload is rebuilt from the persisted attempt snapshot so the
// reissued call matches the original exactly.
func (e *Executor) ReissueForced(ctx context.Context, sctx *statex.SessionContext) contractx.ToolResult {
	attempt := sctx.Memory.Booking
	if !attempt.AwaitingOverride() {
		return contractx.ToolResult{Tool: ToolAppointmentCreate, Error: "no conflicted booking is awaiting an override"}
	}

	payload := contractx.AppointmentRequest{
		CustomerID: identityID(sctx),
		Date:       attempt.Date,
		Time:       attempt.Time,
		ServiceIDs: append([]string(nil), attempt.ServiceIDs...),
		Force:      true,
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	tool := ToolAppointmentCreate
	var appt *contractx.Appointment
	var err error
	if attempt.AppointmentID != "" {
		tool = ToolAppointmentUpdate
		appt, err = e.scheduling.UpdateAppointment(callCtx, attempt.AppointmentID, payload)
	} else {
		appt, err = e.scheduling.CreateAppointment(callCtx, payload)
	}
	if err != nil {
		return contractx.ToolResult{Tool: tool, Error: "forced booking failed: " + err.Error()}
	}

	e.confirmBooking(sctx, appt.ID, payload)
	sctx.Memory.ActiveAppointmentID = appt.ID
	return contractx.ToolResult{Tool: tool, Result: map[string]any{
		"date":   appt.Date,
		"time":   appt.Time,
		"forced": true,
	}}
}

func (e *Executor) buildBookingPayload(sctx *statex.SessionContext, date, timeOfDay string, update bool) (contractx.AppointmentRequest, string) {
	if sctx.Identity == nil {
		return contractx.AppointmentRequest{}, "no customer identified yet; identify the caller first"
	}

	date = strings.TrimSpace(date)
	if date == "" {
		date = sctx.Memory.PreferredDate
	}
	timeOfDay = strings.TrimSpace(timeOfDay)
	if timeOfDay == "" {
		timeOfDay = sctx.Memory.PreferredTime
	}
	if date == "" || timeOfDay == "" {
		return contractx.AppointmentRequest{}, "date and time are both required to book"
	}

	serviceIDs := sctx.SelectedServiceIDs()
	if len(serviceIDs) == 0 && !update {
		return contractx.AppointmentRequest{}, "no services selected yet; use services.select first"
	}

	return contractx.AppointmentRequest{
		CustomerID: sctx.Identity.ExternalID,
		Date:       date,
		Time:       timeOfDay,
		ServiceIDs: serviceIDs,
	}, ""
}

func (e *Executor) bookingFailure(
	ctx context.Context,
	sctx *statex.SessionContext,
	req contractx.ToolRequest,
	appointmentID string,
	payload contractx.AppointmentRequest,
	err error,
) contractx.ToolResult {
	if conflict, ok := contractx.AsConflict(err); ok {
		sctx.Memory.Booking = statex.BookingAttempt{
			State:         statex.BookingAwaitingOverride,
			AppointmentID: appointmentID,
			Date:          payload.Date,
			Time:          payload.Time,
			ServiceIDs:    append([]string(nil), payload.ServiceIDs...),
			Alternatives:  append([]contractx.Slot(nil), conflict.Alternatives...),
		}
		res := errResult(req, conflict.Error())
		res.Result = map[string]any{
			"conflict":     true,
			"alternatives": conflict.Alternatives,
		}
		return res
	}
	if ctx.Err() != nil {
		return errResult(req, "the scheduling backend timed out; try again")
	}
	return errResult(req, "booking failed: "+err.Error())
}

// confirmBooking records the committed booking. It deliberately does not
// touch ActiveAppointmentID: a freshly created booking must not become the
// "appointment being discussed" of its own create turn. The confirmed
// snapshot keeps the id for follow-up updates.
func (e *Executor) confirmBooking(sctx *statex.SessionContext, appointmentID string, payload contractx.AppointmentRequest) {
	sctx.Memory.PreferredDate = payload.Date
	sctx.Memory.PreferredTime = payload.Time
	sctx.Memory.Booking = statex.BookingAttempt{
		State:         statex.BookingConfirmed,
		AppointmentID: appointmentID,
		Date:          payload.Date,
		Time:          payload.Time,
		ServiceIDs:    append([]string(nil), payload.ServiceIDs...),
	}
}

// targetAppointmentID picks the appointment a tool call refers to: an
// explicit argument wins, then the appointment under discussion, then the
// last booking this session confirmed.
func targetAppointmentID(sctx *statex.SessionContext, fromArgs string) string {
	if id := strings.TrimSpace(fromArgs); id != "" {
		return id
	}
	if sctx.Memory.ActiveAppointmentID != "" {
		return sctx.Memory.ActiveAppointmentID
	}
	if sctx.Memory.Booking.State == statex.BookingConfirmed {
		return sctx.Memory.Booking.AppointmentID
	}
	return ""
}

func identityID(sctx *statex.SessionContext) string {
	if sctx.Identity == nil {
		return ""
	}
	return sctx.Identity.ExternalID
}

func okResult(req contractx.ToolRequest, result any) contractx.ToolResult {
	return contractx.ToolResult{CallID: req.CallID, Tool: req.Tool, Result: result}
}

func errResult(req contractx.ToolRequest, msg string) contractx.ToolResult {
	return contractx.ToolResult{CallID: req.CallID, Tool: req.Tool, Error: msg}
}
