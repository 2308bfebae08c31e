package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/welcome.txt
	welcomeRaw string

	//go:embed template/create.txt
	createRaw string

	//go:embed template/update.txt
	updateRaw string

	//go:embed template/cancel.txt
	cancelRaw string
)

// PromptSet holds loaded prompt content.
type PromptSet struct {
	Welcome string
	Create  string
	Update  string
	Cancel  string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
// Safe to call concurrently; the embed is compile-time.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Welcome: strings.TrimSpace(welcomeRaw),
		Create:  strings.TrimSpace(createRaw),
		Update:  strings.TrimSpace(updateRaw),
		Cancel:  strings.TrimSpace(cancelRaw),
	}
}
