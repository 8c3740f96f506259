package prompt

import (
	_ "embed"
	"strings"
)

var (
	//go:embed template/intake.txt
	intakeRaw string

	//go:embed template/context_manager.txt
	contextManagerRaw string

	//go:embed template/business.txt
	businessRaw string

	//go:embed template/funding.txt
	fundingRaw string

	//go:embed template/market.txt
	marketRaw string

	//go:embed template/engineering.txt
	engineeringRaw string
)

// PromptSet holds loaded role instructions.
type PromptSet struct {
	Intake         string
	ContextManager string
	Business       string
	Funding        string
	Market         string
	Engineering    string
}

// LoadPromptSet returns the embedded role instructions, trimmed.
func LoadPromptSet() PromptSet {
	return PromptSet{
		Intake:         strings.TrimSpace(intakeRaw),
		ContextManager: strings.TrimSpace(contextManagerRaw),
		Business:       strings.TrimSpace(businessRaw),
		Funding:        strings.TrimSpace(fundingRaw),
		Market:         strings.TrimSpace(marketRaw),
		Engineering:    strings.TrimSpace(engineeringRaw),
	}
}
