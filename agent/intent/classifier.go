package intent

import (
	"regexp"
	"strings"

	statex "github.com/velaline/booking-agent/agent/state"
)

type Intent string

const (
	Welcome Intent = "welcome"
	Create  Intent = "create"
	Update  Intent = "update"
	Cancel  Intent = "cancel"
)

// Result carries the classified intent plus the side effect the engine must
// apply before the model call. ClearAppointmentFocus is set for every
// create turn: lookups populate the active appointment id incidentally, and
// letting that leak into a fresh booking would corrupt it.
type Result struct {
	Intent                Intent
	ClearAppointmentFocus bool
}

// Vocabulary matches on word boundaries so "reschedule" never trips the
// "schedule" predicate and "cancellation" still reads as a cancel.
var (
	cancelPattern = regexp.MustCompile(`(?i)\b(cancel|cancellation|call it off)\b`)

	createPattern = regexp.MustCompile(`(?i)\b(book|booking|schedule|new appointment|make an appointment|set up an appointment)\b`)

	updatePattern = regexp.MustCompile(`(?i)\b(update|change|reschedule|move (it )?to|push back|different time)\b`)

	// e.g. "appt:abc123", "appt-7f3d", "appointment #4821"
	appointmentIDPattern = regexp.MustCompile(`(?i)\b(appt[:_-][a-z0-9-]+|appointment\s*#\s*[a-z0-9-]+)`)

	forcePattern = regexp.MustCompile(`(?i)\b(force|override|book it anyway|do it anyway|just book it)\b`)
)

// IsForceOverride reports whether the utterance is an explicit override of
// a scheduling conflict. The engine consults it only while a booking
// attempt is awaiting an override decision, and only for admin sessions.
func IsForceOverride(text string) bool {
	return forcePattern.MatchString(text)
}

// Classify decides what the user wants on this turn. The predicate order is
// fixed and first-match-wins:
//
//  1. cancel vocabulary
//  2. explicit new-booking vocabulary (clears appointment focus)
//  3. update vocabulary, an appointment id in the text, or an already
//     targeted appointment with no create/cancel signal
//  4. nothing resolved yet and no history -> welcome
//  5. default -> create (clears appointment focus)
//
// Create must beat a stale active appointment id: customer lookups set that
// field as a side effect, and treating it as sticky update intent would
// silently book against the wrong appointment.
func Classify(text string, sctx *statex.SessionContext) Result {
	trimmed := strings.TrimSpace(text)

	if cancelPattern.MatchString(trimmed) {
		return Result{Intent: Cancel}
	}

	if createPattern.MatchString(trimmed) {
		return Result{Intent: Create, ClearAppointmentFocus: true}
	}

	hasUpdateSignal := updatePattern.MatchString(trimmed) ||
		appointmentIDPattern.MatchString(trimmed) ||
		(sctx != nil && sctx.Memory.ActiveAppointmentID != "")
	if hasUpdateSignal {
		return Result{Intent: Update}
	}

	if sctx == nil || (sctx.Identity == nil && len(sctx.History) == 0) {
		return Result{Intent: Welcome}
	}

	return Result{Intent: Create, ClearAppointmentFocus: true}
}
