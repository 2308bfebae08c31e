package contract

// Role determines which side of the counter the session speaks for.
// It is fixed for a session's lifetime unless the session is reset.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// ParseRole maps free-form role input to a known role, defaulting to customer.
func ParseRole(raw string) Role {
	if Role(raw) == RoleAdmin {
		return RoleAdmin
	}
	return RoleCustomer
}

// Service is one bookable catalog entry. ID is the canonical identifier;
// Name is the free-text display name customers actually say.
type Service struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Price           float64 `json:"price"`
	DurationMinutes int     `json:"duration_minutes"`
}

// Slot is one bookable time slot on a given date.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Contact is a resolved CRM customer record.
type Contact struct {
	ExternalID        string `json:"external_id"`
	DisplayName       string `json:"display_name"`
	Mobile            string `json:"mobile"`
	LastAppointmentID string `json:"last_appointment_id,omitempty"`
}

// AppointmentRequest is the payload sent to the scheduling backend.
// ServiceIDs always carry canonical ids, never free-text names.
type AppointmentRequest struct {
	CustomerID string   `json:"customer_id"`
	Date       string   `json:"date"`
	Time       string   `json:"time"`
	ServiceIDs []string `json:"service_ids"`
	Force      bool     `json:"force,omitempty"`
}

// Appointment is the scheduling backend's view of a committed booking.
type Appointment struct {
	ID         string   `json:"id"`
	CustomerID string   `json:"customer_id"`
	Date       string   `json:"date"`
	Time       string   `json:"time"`
	ServiceIDs []string `json:"service_ids"`
}

// ToolRequest is a structured tool invocation requested by the model.
type ToolRequest struct {
	CallID string         `json:"call_id,omitempty"`
	Tool   string         `json:"tool"`
	Args   map[string]any `json:"args,omitempty"`
}

// ToolResult is the outcome of one tool invocation, success or structured
// error. It is fed back to the model as a tool message; Error is a message
// the model can act on, e.g. ask a clarifying question or offer a new slot.
type ToolResult struct {
	CallID string `json:"call_id,omitempty"`
	Tool   string `json:"tool"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}
