// Package router decides which conversational role handles an inbound
// message. Routing is a strict priority table over session state, not
// keyword matching: specialists are reachable only through an explicit
// role request against a submitted summary.
package router

import (
	"fmt"
	"strings"

	rolex "github.com/hardlaunch/hardlaunch/agent/role"
	summaryx "github.com/hardlaunch/hardlaunch/agent/summary"
)

// AutoStartMessage is the synthetic signal that seeds the intake role's
// opening greeting on first contact.
const AutoStartMessage = "__AUTO_START__"

// RefusalReply is the fixed response when a specialist is requested before
// the summary is submitted. It is a successful reply, not an error.
const RefusalReply = "The specialist advisors work from your confirmed business summary, " +
	"which isn't ready yet. Please complete the intake conversation and submit " +
	"your summary first, then ask again."

// Decision is the routing outcome for one inbound message.
type Decision struct {
	Role rolex.Kind

	// Message is the text the chosen role should process, with grounding
	// context injected for specialists.
	Message string

	// AutoStart asks the caller to run an intake greeting turn seeded with
	// AutoStartMessage before processing Message.
	AutoStart bool

	// Refusal, when non-empty, is returned verbatim without invoking any
	// completion path.
	Refusal string
}

// Decide evaluates the priority table. It reads session-derived facts only
// and has no side effects.
func Decide(firstContact bool, requestedRole, message string, rec summaryx.Record, hasSummary bool) Decision {
	// 1. Brand-new session: intake opens the conversation.
	if firstContact && !hasSummary {
		return Decision{
			Role:      rolex.KindIntake,
			Message:   message,
			AutoStart: true,
		}
	}

	requested := strings.TrimSpace(requestedRole)
	if requested != "" {
		kind, recognized := rolex.BySelector(requested)

		// 2. Recognized specialist against a submitted summary: inject the
		// summary text as mandatory grounding context.
		if recognized && hasSummary && rec.Submitted {
			return Decision{
				Role:    kind,
				Message: InjectSummary(rec.Text, message),
			}
		}

		// 3. Specialist requested prematurely: fixed refusal, no
		// completion call. This is the gate's routing enforcement point.
		if recognized {
			return Decision{
				Role:    rolex.KindContextManager,
				Message: message,
				Refusal: RefusalReply,
			}
		}

		// Unrecognized role request: fall back rather than fail.
		if hasSummary {
			return Decision{Role: rolex.KindContextManager, Message: message}
		}
		return Decision{Role: rolex.KindIntake, Message: message}
	}

	// 4. Summary exists: the context manager displays and refines it.
	if hasSummary {
		return Decision{Role: rolex.KindContextManager, Message: message}
	}

	// 5. Otherwise the intake survey continues.
	return Decision{Role: rolex.KindIntake, Message: message}
}

// InjectSummary prepends the summary text as a grounding block, with the
// instruction that the reply must reference it.
func InjectSummary(summaryText, message string) string {
	return fmt.Sprintf(
		"BUSINESS CONTEXT (Use this information as the foundation for your response):\n%s\n\n"+
			"USER REQUEST: %s\n\n"+
			"IMPORTANT: Base your response on the business context provided above. "+
			"Refer to specific details from the business summary in your answer.",
		summaryText, message,
	)
}
