// Package advisor is the application service behind the chat boundary:
// resolve the session, route the message to a role, run the turn, and
// report the summary state. One inbound message is one serialized turn
// against its session.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/hardlaunch/hardlaunch/agent/contract"
	routerx "github.com/hardlaunch/hardlaunch/agent/router"
	rolex "github.com/hardlaunch/hardlaunch/agent/role"
	runnerx "github.com/hardlaunch/hardlaunch/agent/runner"
	sessionx "github.com/hardlaunch/hardlaunch/agent/session"
	summaryx "github.com/hardlaunch/hardlaunch/agent/summary"
)

const userTurnRole = "user"

type Advisor struct {
	registry  *sessionx.Registry
	summaries *summaryx.Store
	roles     *rolex.Catalog
	runner    *runnerx.Runner
}

func New(registry *sessionx.Registry, summaries *summaryx.Store, roles *rolex.Catalog, runner *runnerx.Runner) (*Advisor, error) {
	if registry == nil {
		return nil, errors.New("session registry is required")
	}
	if summaries == nil {
		return nil, errors.New("summary store is required")
	}
	if roles == nil {
		return nil, errors.New("role catalog is required")
	}
	if runner == nil {
		return nil, errors.New("conversation runner is required")
	}
	return &Advisor{
		registry:  registry,
		summaries: summaries,
		roles:     roles,
		runner:    runner,
	}, nil
}

// ChatResult is the outcome of one chat turn.
type ChatResult struct {
	SessionID string
	Reply     string
	Summary   *summaryx.Record
}

// Chat handles one inbound message end to end. Upstream failures surface
// as reply text, never as errors; errors here mean the session itself
// could not be resolved or persisted.
func (a *Advisor) Chat(ctx context.Context, sessionID, userID, message, requestedRole string) (ChatResult, error) {
	if strings.TrimSpace(message) == "" {
		return ChatResult{}, fmt.Errorf("%w: message is required", contractx.ErrValidation)
	}

	// Resolve the id and take the lock before loading: a snapshot read
	// outside the critical section would be replayed over another turn's
	// writes when saved.
	sessionID = a.registry.ResolveID(sessionID)
	release := a.registry.Acquire(sessionID)
	defer release()

	sess, err := a.registry.GetOrCreate(ctx, sessionID, userID)
	if err != nil {
		return ChatResult{}, err
	}

	rec, hasSummary := a.summaries.Read(sess)
	decision := routerx.Decide(sess.FirstContact(), requestedRole, message, rec, hasSummary)

	if decision.Refusal != "" {
		log.Info().Str("session_id", sess.ID).Str("requested_role", requestedRole).Msg("specialist requested before submission")
		if err := a.appendExchange(ctx, sess, message, string(decision.Role), decision.Refusal); err != nil {
			return ChatResult{}, err
		}
		return a.result(sess, decision.Refusal), nil
	}

	if decision.AutoStart {
		if err := a.runTurn(ctx, sess, rolex.KindIntake, routerx.AutoStartMessage, routerx.AutoStartMessage); err != nil {
			return ChatResult{}, err
		}
	}

	reply, err := a.runTurnReply(ctx, sess, decision.Role, decision.Message, message)
	if err != nil {
		return ChatResult{}, err
	}

	return a.result(sess, reply), nil
}

// SubmitSummary flips the submitted flag after re-validating the record.
// The returned message is always user-facing; ok=false is a descriptive
// failure, not a transport error.
func (a *Advisor) SubmitSummary(ctx context.Context, sessionID string) (bool, string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return false, "Session not found"
	}

	release := a.registry.Acquire(sessionID)
	defer release()

	sess, err := a.registry.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessionx.ErrSessionNotFound) || errors.Is(err, sessionx.ErrInvalidSession) {
			return false, "Session not found"
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("load session for submission")
		return false, fmt.Sprintf("Error submitting summary: %v", err)
	}

	if _, err := a.summaries.Submit(ctx, sess); err != nil {
		switch {
		case errors.Is(err, contractx.ErrNotFound):
			return false, "No business summary to submit"
		case errors.Is(err, contractx.ErrValidation):
			return false, "Business summary cannot be empty"
		default:
			log.Error().Err(err).Str("session_id", sessionID).Msg("submit business summary")
			return false, fmt.Sprintf("Error submitting summary: %v", err)
		}
	}
	return true, "Business summary submitted successfully"
}

// SummaryStatus reports whether a summary exists and is submitted.
func (a *Advisor) SummaryStatus(ctx context.Context, sessionID string) (submitted, hasSummary bool, message string) {
	sess, err := a.registry.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sessionx.ErrSessionNotFound) || errors.Is(err, sessionx.ErrInvalidSession) {
			return false, false, "Session not found"
		}
		return false, false, fmt.Sprintf("Error retrieving submission status: %v", err)
	}

	rec, ok := a.summaries.Read(sess)
	if !ok {
		return false, false, "No business summary found"
	}
	return rec.Submitted, true, "Submission status retrieved successfully"
}

func (a *Advisor) runTurnReply(ctx context.Context, sess *sessionx.Session, kind rolex.Kind, prompt, transcript string) (string, error) {
	role, ok := a.roles.Get(kind)
	if !ok {
		return "", fmt.Errorf("%w: role %q is not in the catalog", contractx.ErrValidation, kind)
	}

	reply := a.runner.Run(ctx, role, prompt, sess)
	if err := a.appendExchange(ctx, sess, transcript, string(role.Kind), reply); err != nil {
		return "", err
	}
	return reply, nil
}

func (a *Advisor) runTurn(ctx context.Context, sess *sessionx.Session, kind rolex.Kind, prompt, transcript string) error {
	_, err := a.runTurnReply(ctx, sess, kind, prompt, transcript)
	return err
}

// appendExchange records the user message and the reply. The transcript
// keeps the user's original text; grounding injection never appears in
// history.
func (a *Advisor) appendExchange(ctx context.Context, sess *sessionx.Session, userText, replyRole, replyText string) error {
	if err := a.registry.AppendTurn(ctx, sess, userTurnRole, userText); err != nil {
		return err
	}
	return a.registry.AppendTurn(ctx, sess, replyRole, replyText)
}

func (a *Advisor) result(sess *sessionx.Session, reply string) ChatResult {
	res := ChatResult{
		SessionID: sess.ID,
		Reply:     reply,
	}
	if rec, ok := a.summaries.Read(sess); ok {
		res.Summary = &rec
	}
	return res
}
