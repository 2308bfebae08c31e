package state

import (
	"errors"
	"fmt"
	"time"

	contractx "github.com/velaline/booking-agent/agent/contract"
)

// maxHistoryEntries bounds the persisted transcript window. Oldest entries
// are pruned first; pruned text is handed back so callers can summarize it.
const maxHistoryEntries = 20

var (
	ErrInvalidSession = errors.New("session id is empty")
	ErrNilContext     = errors.New("session context is nil")
)

// SessionContext is the persistent source-of-truth for one conversation.
// - Identity is set once a CRM lookup or creation succeeds, never fabricated.
// - Memory.SelectedServices only ever holds canonical catalog records.
// - Memory.Booking carries the single in-flight booking attempt.
type SessionContext struct {
	SessionID string         `json:"session_id"`
	Role      contractx.Role `json:"role"`

	Identity *Identity   `json:"identity,omitempty"`
	Memory   Memory      `json:"memory"`
	History  []Utterance `json:"history,omitempty"`

	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Identity is the resolved customer behind the session.
type Identity struct {
	ExternalID  string `json:"external_id"`
	DisplayName string `json:"display_name"`
	Mobile      string `json:"mobile"`
}

// SelectedService is a catalog entry the conversation has settled on.
type SelectedService struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
}

// Memory is the semantically-typed bag of per-session working state.
type Memory struct {
	SelectedServices    []SelectedService `json:"selected_services,omitempty"`
	PreferredDate       string            `json:"preferred_date,omitempty"`
	PreferredTime       string            `json:"preferred_time,omitempty"`
	ActiveAppointmentID string            `json:"active_appointment_id,omitempty"`
	Booking             BookingAttempt    `json:"booking,omitempty"`
	ToolLog             []ToolInvocation  `json:"tool_log,omitempty"`
	HistorySummary      string            `json:"history_summary,omitempty"`
}

// ToolInvocation is one append-only audit entry in the tool log.
type ToolInvocation struct {
	ID      string         `json:"id"`
	Tool    string         `json:"tool"`
	At      time.Time      `json:"at"`
	Args    map[string]any `json:"args,omitempty"`
	Summary string         `json:"summary,omitempty"`
}

type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Utterance is one transcript line.
type Utterance struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

/* ------------------------- Booking attempt machine ------------------------ */

type BookingState string

const (
	BookingIdle             BookingState = ""
	BookingDrafting         BookingState = "drafting"
	BookingAwaitingOverride BookingState = "awaiting_override"
	BookingConfirmed        BookingState = "confirmed"
	BookingAbandoned        BookingState = "abandoned"
)

// BookingAttempt tracks a single booking through conflict handling.
// Drafting -> slot check -> {Confirmed, AwaitingOverride} ->
// {Confirmed (forced), Drafting (user picked another time), Abandoned}.
// The payload snapshot is kept exactly as the conflicting attempt sent it
// so a forced reissue repeats the identical call with Force set.
type BookingAttempt struct {
	State         BookingState     `json:"state,omitempty"`
	AppointmentID string           `json:"appointment_id,omitempty"` // set on update attempts
	Date          string           `json:"date,omitempty"`
	Time          string           `json:"time,omitempty"`
	ServiceIDs    []string         `json:"service_ids,omitempty"`
	Alternatives  []contractx.Slot `json:"alternatives,omitempty"`
}

func (b BookingAttempt) AwaitingOverride() bool {
	return b.State == BookingAwaitingOverride
}

/* ------------------------------ Constructors ----------------------------- */

func NewSessionContext(sessionID string, role contractx.Role, now time.Time) *SessionContext {
	if role != contractx.RoleAdmin {
		role = contractx.RoleCustomer
	}
	return &SessionContext{
		SessionID: sessionID,
		Role:      role,
		Version:   1,
		UpdatedAt: now.UTC(),
	}
}

/* -------------------------------- Mutators ------------------------------- */

func (s *SessionContext) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// AppendUtterance appends one transcript line, pruning the oldest entries
// beyond the window. Pruned text is returned for summarization.
func (s *SessionContext) AppendUtterance(speaker Speaker, text string) []string {
	s.History = append(s.History, Utterance{Speaker: speaker, Text: text})
	if len(s.History) <= maxHistoryEntries {
		return nil
	}
	cut := len(s.History) - maxHistoryEntries
	pruned := make([]string, 0, cut)
	for _, u := range s.History[:cut] {
		pruned = append(pruned, string(u.Speaker)+": "+u.Text)
	}
	s.History = append([]Utterance(nil), s.History[cut:]...)
	return pruned
}

// SelectService adds a resolved catalog record, unique by canonical id.
// Order of first selection is preserved; re-selecting refreshes the record.
func (s *SessionContext) SelectService(svc contractx.Service) {
	for i, existing := range s.Memory.SelectedServices {
		if existing.ID == svc.ID {
			s.Memory.SelectedServices[i] = SelectedService{
				ID:              svc.ID,
				Name:            svc.Name,
				Price:           svc.Price,
				DurationMinutes: svc.DurationMinutes,
			}
			return
		}
	}
	s.Memory.SelectedServices = append(s.Memory.SelectedServices, SelectedService{
		ID:              svc.ID,
		Name:            svc.Name,
		Price:           svc.Price,
		DurationMinutes: svc.DurationMinutes,
	})
}

// SelectedServiceIDs returns the canonical ids in selection order.
func (s *SessionContext) SelectedServiceIDs() []string {
	if len(s.Memory.SelectedServices) == 0 {
		return nil
	}
	ids := make([]string, 0, len(s.Memory.SelectedServices))
	for _, svc := range s.Memory.SelectedServices {
		ids = append(ids, svc.ID)
	}
	return ids
}

// ClearAppointmentFocus drops everything tied to a previously targeted
// appointment: the active appointment id, service selections, and any
// in-flight booking attempt. Identity is preserved; a fresh booking
// intent must not forget who the customer is.
func (s *SessionContext) ClearAppointmentFocus() {
	s.Memory.ActiveAppointmentID = ""
	s.Memory.SelectedServices = nil
	s.Memory.Booking = BookingAttempt{}
}

// ResetPreservingRole returns a fresh context for the same session and role.
func (s *SessionContext) ResetPreservingRole(now time.Time) *SessionContext {
	return NewSessionContext(s.SessionID, s.Role, now)
}

// RecordToolCall appends one audit entry to the tool log.
func (s *SessionContext) RecordToolCall(id, tool string, args map[string]any, summary string, now time.Time) {
	s.Memory.ToolLog = append(s.Memory.ToolLog, ToolInvocation{
		ID:      id,
		Tool:    tool,
		At:      now.UTC(),
		Args:    args,
		Summary: summary,
	})
}

/* ------------------------------- Validation ------------------------------ */

func (s *SessionContext) Validate() error {
	if s == nil {
		return ErrNilContext
	}
	if s.SessionID == "" {
		return ErrInvalidSession
	}
	seen := make(map[string]struct{}, len(s.Memory.SelectedServices))
	for _, svc := range s.Memory.SelectedServices {
		if svc.ID == "" {
			return fmt.Errorf("%w: selected service without canonical id", contractx.ErrValidation)
		}
		if _, dup := seen[svc.ID]; dup {
			return fmt.Errorf("%w: duplicate selected service id=%s", contractx.ErrValidation, svc.ID)
		}
		seen[svc.ID] = struct{}{}
	}
	switch s.Memory.Booking.State {
	case BookingIdle, BookingDrafting, BookingAwaitingOverride, BookingConfirmed, BookingAbandoned:
	default:
		return fmt.Errorf("%w: unknown booking state %q", contractx.ErrValidation, s.Memory.Booking.State)
	}
	if s.Memory.Booking.State == BookingAwaitingOverride && s.Memory.Booking.Date == "" {
		return fmt.Errorf("%w: awaiting override without a pending slot", contractx.ErrValidation)
	}
	return nil
}
