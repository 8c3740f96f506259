// Package role defines the fixed catalog of conversational roles: the
// intake surveyor, the context manager, and the four specialist advisors.
// Each role carries a fixed persona instruction and a fixed toolset; the
// catalog never changes at runtime.
package role

import (
	"strings"

	contractx "github.com/hardlaunch/hardlaunch/agent/contract"
	promptx "github.com/hardlaunch/hardlaunch/agent/prompt"
)

type Kind string

const (
	KindIntake         Kind = "intake"
	KindContextManager Kind = "context_manager"
	KindBusiness       Kind = "business"
	KindFunding        Kind = "funding"
	KindMarket         Kind = "market"
	KindEngineering    Kind = "engineering"
)

// Tool names shared with the runner's executor.
const (
	ToolSaveSummary = "save_business_summary"
	ToolGetSummary  = "get_business_summary"
	ToolRagLookup   = "rag_lookup"
)

// Role is one conversational agent: a persona plus the tools it may
// invoke. Intake and the context manager read and write the summary;
// specialists read it and query the retrieval store.
type Role struct {
	Kind        Kind
	Name        string
	Instruction string
	Tools       []contractx.ToolSpec
}

// Specialist reports whether the role is gated behind summary submission.
func (r Role) Specialist() bool {
	switch r.Kind {
	case KindBusiness, KindFunding, KindMarket, KindEngineering:
		return true
	default:
		return false
	}
}

// Catalog is the fixed role set.
type Catalog struct {
	roles map[Kind]Role
}

func NewCatalog() *Catalog {
	prompts := promptx.LoadPromptSet()

	summaryTools := []contractx.ToolSpec{saveSummarySpec(), getSummarySpec()}
	specialistTools := []contractx.ToolSpec{getSummarySpec(), ragLookupSpec()}

	roles := map[Kind]Role{
		KindIntake: {
			Kind:        KindIntake,
			Name:        "Hermes",
			Instruction: prompts.Intake,
			Tools:       summaryTools,
		},
		KindContextManager: {
			Kind:        KindContextManager,
			Name:        "Mission Control",
			Instruction: prompts.ContextManager,
			Tools:       summaryTools,
		},
		KindBusiness: {
			Kind:        KindBusiness,
			Name:        "Armstrong",
			Instruction: prompts.Business,
			Tools:       specialistTools,
		},
		KindFunding: {
			Kind:        KindFunding,
			Name:        "Poseidon",
			Instruction: prompts.Funding,
			Tools:       specialistTools,
		},
		KindMarket: {
			Kind:        KindMarket,
			Name:        "Gagarin",
			Instruction: prompts.Market,
			Tools:       specialistTools,
		},
		KindEngineering: {
			Kind:        KindEngineering,
			Name:        "Collins",
			Instruction: prompts.Engineering,
			Tools:       specialistTools,
		},
	}

	return &Catalog{roles: roles}
}

func (c *Catalog) Get(kind Kind) (Role, bool) {
	r, ok := c.roles[kind]
	return r, ok
}

// BySelector maps a caller-supplied role request onto a specialist kind.
// "finance" routes to the funding advisor, matching the public API naming.
func BySelector(selector string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(selector)) {
	case "business":
		return KindBusiness, true
	case "finance", "funding":
		return KindFunding, true
	case "market":
		return KindMarket, true
	case "engineering":
		return KindEngineering, true
	default:
		return "", false
	}
}

func saveSummarySpec() contractx.ToolSpec {
	return contractx.ToolSpec{
		Name:        ToolSaveSummary,
		Description: "Persist the latest business summary so every advisor works from the same record.",
		Params: map[string]contractx.ParamSpec{
			"summary": {Type: "string", Description: "Full structured business summary text", Required: true},
			"source":  {Type: "string", Description: "Provenance of this write: survey, manual, or system"},
		},
	}
}

func getSummarySpec() contractx.ToolSpec {
	return contractx.ToolSpec{
		Name:        ToolGetSummary,
		Description: "Fetch the stored business summary, if any.",
		Params:      map[string]contractx.ParamSpec{},
	}
}

func ragLookupSpec() contractx.ToolSpec {
	return contractx.ToolSpec{
		Name:        ToolRagLookup,
		Description: "Search the uploaded documents for concrete facts, numbers, and quotes that support the business summary or plan.",
		Params: map[string]contractx.ParamSpec{
			"question": {Type: "string", Description: "Focused retrieval question", Required: true},
			"top_k":    {Type: "integer", Description: "How many passages to consider"},
		},
	}
}
