package tool

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	contractx "github.com/velaline/booking-agent/agent/contract"
)

// Argument payloads are modelled as one typed struct per tool and decoded
// from the model's loosely-typed args map through a JSON round trip.

type customerLookupArgs struct {
	Phone string `json:"phone"`
}

type contactCreateArgs struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

type servicesSelectArgs struct {
	Names []string `json:"names"`
}

type availabilityCheckArgs struct {
	Date string `json:"date"`
}

type appointmentCreateArgs struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type appointmentUpdateArgs struct {
	AppointmentID string `json:"appointment_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

type appointmentCancelArgs struct {
	AppointmentID string `json:"appointment_id"`
}

func decodeArgs(args map[string]any, into any) error {
	payload, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: marshal tool args: %v", contractx.ErrValidation, err)
	}
	if err := json.Unmarshal(payload, into); err != nil {
		return fmt.Errorf("%w: decode tool args: %v", contractx.ErrValidation, err)
	}
	return nil
}

var phoneTokenPattern = regexp.MustCompile(`\+?[0-9][0-9\-\s\(\)]{6,}[0-9]`)

// recoverPhone scans the raw args blob for a phone-shaped token. Models
// occasionally put the number under the wrong key or inline in a sentence;
// a recoverable argument beats a failed turn.
func recoverPhone(args map[string]any) string {
	for _, v := range args {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if token := phoneTokenPattern.FindString(s); token != "" {
			return normalizePhone(token)
		}
	}
	return ""
}

func normalizePhone(raw string) string {
	var b strings.Builder
	for _, ch := range raw {
		if ch == '+' || (ch >= '0' && ch <= '9') {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
