package contract

import "context"

// SchedulingClient is the calendar backend. Its slot computation is
// external; the engine only consumes the results.
type SchedulingClient interface {
	ListServices(ctx context.Context) ([]Service, error)
	CheckAvailability(ctx context.Context, date string, serviceIDs []string) ([]Slot, error)
	CreateAppointment(ctx context.Context, req AppointmentRequest) (*Appointment, error)
	UpdateAppointment(ctx context.Context, appointmentID string, req AppointmentRequest) (*Appointment, error)
	CancelAppointment(ctx context.Context, appointmentID string) error
}

// CRMClient is the contact backend. LookupByPhone returns
// ErrContactNotFound when no contact matches.
type CRMClient interface {
	LookupByPhone(ctx context.Context, phone string) (*Contact, error)
	CreateContact(ctx context.Context, firstName, lastName, phone string) (*Contact, error)
}

// Summarizer folds pruned transcript entries into a running summary.
type Summarizer interface {
	Summarize(ctx context.Context, previousSummary string, pruned []string) (string, error)
}
