package tool

import (
	"github.com/cloudwego/eino/schema"

	contractx "github.com/velaline/booking-agent/agent/contract"
)

const (
	ToolCustomerLookup    = "customer.lookup"
	ToolContactCreate     = "contact.create"
	ToolServicesList      = "services.list"
	ToolServicesSelect    = "services.select"
	ToolAvailabilityCheck = "availability.check"
	ToolAppointmentCreate = "appointment.create"
	ToolAppointmentUpdate = "appointment.update"
	ToolAppointmentCancel = "appointment.cancel"
)

// InfosForRole returns the tool specifications bound to the model for a
// session. Both roles see the same operations; the force override is not a
// tool argument; it is an engine-level transition gated to admins.
func InfosForRole(role contractx.Role) []*schema.ToolInfo {
	infos := []*schema.ToolInfo{
		{
			Name: ToolCustomerLookup,
			Desc: "Look up an existing customer by mobile number.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"phone": {Type: schema.String, Desc: "Customer mobile number", Required: true},
			}),
		},
		{
			Name: ToolContactCreate,
			Desc: "Create a new customer contact. Only for customers not found by lookup.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"first_name": {Type: schema.String, Desc: "First name", Required: true},
				"last_name":  {Type: schema.String, Desc: "Last name", Required: true},
				"phone":      {Type: schema.String, Desc: "Mobile number", Required: true},
			}),
		},
		{
			Name:        ToolServicesList,
			Desc:        "List the service catalog with names, prices, and durations.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
		},
		{
			Name: ToolServicesSelect,
			Desc: "Select services for the booking by name. Reports ambiguous names instead of guessing.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"names": {
					Type:     schema.Array,
					Desc:     "Service names as the caller said them",
					Required: true,
					ElemInfo: &schema.ParameterInfo{Type: schema.String},
				},
			}),
		},
		{
			Name: ToolAvailabilityCheck,
			Desc: "Check open slots for the selected services on a date.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"date": {Type: schema.String, Desc: "Date, YYYY-MM-DD", Required: true},
			}),
		},
		{
			Name: ToolAppointmentCreate,
			Desc: "Book a new appointment for the identified customer with the selected services.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"date": {Type: schema.String, Desc: "Date, YYYY-MM-DD", Required: true},
				"time": {Type: schema.String, Desc: "Start time, HH:MM", Required: true},
			}),
		},
		{
			Name: ToolAppointmentUpdate,
			Desc: "Change the date, time, or services of the appointment being discussed.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"appointment_id": {Type: schema.String, Desc: "Appointment id, omit to use the one being discussed"},
				"date":           {Type: schema.String, Desc: "New date, YYYY-MM-DD"},
				"time":           {Type: schema.String, Desc: "New start time, HH:MM"},
			}),
		},
		{
			Name: ToolAppointmentCancel,
			Desc: "Cancel the appointment being discussed.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"appointment_id": {Type: schema.String, Desc: "Appointment id, omit to use the one being discussed"},
			}),
		},
	}
	return infos
}

// Known reports whether the registry exposes the named tool.
func Known(name string) bool {
	switch name {
	case ToolCustomerLookup, ToolContactCreate, ToolServicesList, ToolServicesSelect,
		ToolAvailabilityCheck, ToolAppointmentCreate, ToolAppointmentUpdate, ToolAppointmentCancel:
		return true
	}
	return false
}
