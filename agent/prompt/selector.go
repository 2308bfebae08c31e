package prompt

import (
	"fmt"
	"strings"

	intentx "github.com/velaline/booking-agent/agent/intent"
	statex "github.com/velaline/booking-agent/agent/state"
)

// Build renders the instruction set for the next model call. Pure function
// of (intent, context, catalog summary): one template per intent plus a
// context block with identity, selections, and preferences. Canonical ids
// appear here for tool arguments; the templates forbid echoing them back
// to the human.
func Build(in intentx.Intent, sctx *statex.SessionContext, catalogSummary string, prompts PromptSet) string {
	var template string
	switch in {
	case intentx.Welcome:
		template = prompts.Welcome
	case intentx.Update:
		template = prompts.Update
	case intentx.Cancel:
		template = prompts.Cancel
	default:
		template = prompts.Create
	}

	var b strings.Builder
	b.WriteString(template)
	b.WriteString("\n\n## Context\n")
	b.WriteString(contextBlock(sctx))
	if catalogSummary != "" {
		b.WriteString("\n## Service catalog\n")
		b.WriteString(catalogSummary)
		b.WriteString("\n")
	}
	return b.String()
}

func contextBlock(sctx *statex.SessionContext) string {
	if sctx == nil {
		return "- customer: no customer identified\n"
	}

	var b strings.Builder

	if sctx.Identity == nil {
		b.WriteString("- customer: no customer identified\n")
	} else {
		fmt.Fprintf(&b, "- customer: %s (id %s, mobile %s)\n",
			sctx.Identity.DisplayName, sctx.Identity.ExternalID, sctx.Identity.Mobile)
	}

	if len(sctx.Memory.SelectedServices) > 0 {
		names := make([]string, 0, len(sctx.Memory.SelectedServices))
		for _, svc := range sctx.Memory.SelectedServices {
			names = append(names, fmt.Sprintf("%s (id %s)", svc.Name, svc.ID))
		}
		fmt.Fprintf(&b, "- selected services: %s\n", strings.Join(names, ", "))
	}

	if sctx.Memory.PreferredDate != "" {
		fmt.Fprintf(&b, "- preferred date: %s\n", sctx.Memory.PreferredDate)
	}
	if sctx.Memory.PreferredTime != "" {
		fmt.Fprintf(&b, "- preferred time: %s\n", sctx.Memory.PreferredTime)
	}

	if sctx.Memory.ActiveAppointmentID != "" {
		fmt.Fprintf(&b, "- appointment being discussed: id %s\n", sctx.Memory.ActiveAppointmentID)
	}

	if sctx.Memory.Booking.AwaitingOverride() {
		fmt.Fprintf(&b, "- pending conflicted booking: %s %s (awaiting a decision on the alternatives)\n",
			sctx.Memory.Booking.Date, sctx.Memory.Booking.Time)
	}

	if sctx.Memory.HistorySummary != "" {
		fmt.Fprintf(&b, "- earlier conversation summary: %s\n", sctx.Memory.HistorySummary)
	}

	return b.String()
}
