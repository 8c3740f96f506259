// Package runner drives one role turn to completion against one message.
// It owns the completion service's event protocol (consume everything,
// keep the last terminal event) and the failure policy: upstream errors
// become user-visible replies, never propagated to the caller.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/hardlaunch/hardlaunch/agent/contract"
	ragx "github.com/hardlaunch/hardlaunch/agent/rag"
	rolex "github.com/hardlaunch/hardlaunch/agent/role"
	sessionx "github.com/hardlaunch/hardlaunch/agent/session"
	summaryx "github.com/hardlaunch/hardlaunch/agent/summary"
)

// ApologyReply replaces a terminal event that carries no usable text.
const ApologyReply = "I apologize, but I encountered an issue processing your request. Please try again."

// maxToolRounds bounds the tool loop within a single turn.
const maxToolRounds = 4

type Runner struct {
	client    contractx.CompletionClient
	summaries *summaryx.Store
	retriever contractx.Retriever
	topK      int
}

func New(client contractx.CompletionClient, summaries *summaryx.Store, retriever contractx.Retriever, topK int) (*Runner, error) {
	if client == nil {
		return nil, errors.New("completion client is required")
	}
	if summaries == nil {
		return nil, errors.New("summary store is required")
	}
	if retriever == nil {
		retriever = ragx.Unconfigured{}
	}
	if topK <= 0 {
		topK = ragx.DefaultTopK
	}
	return &Runner{
		client:    client,
		summaries: summaries,
		retriever: retriever,
		topK:      topK,
	}, nil
}

// Run executes exactly one role turn and returns the final reply text.
// Turn failures are terminal-but-recoverable: the session stays intact and
// the user may retry, so every failure path yields a reply string.
func (r *Runner) Run(ctx context.Context, role rolex.Role, message string, sess *sessionx.Session) string {
	allowed := make(map[string]struct{}, len(role.Tools))
	for _, t := range role.Tools {
		allowed[t.Name] = struct{}{}
	}

	req := contractx.CompletionRequest{
		Identity: role.Instruction,
		Tools:    role.Tools,
		Message:  message,
		History:  sess.Turns(),
	}

	for round := 0; round <= maxToolRounds; round++ {
		terminal, err := r.consume(ctx, req)
		if err != nil {
			log.Error().Err(err).Str("role", string(role.Kind)).Str("session_id", sess.ID).Msg("role turn failed")
			return fmt.Sprintf("An error occurred: %v", err)
		}

		if len(terminal.ToolCalls) > 0 && round < maxToolRounds {
			results := r.executeTools(ctx, sess, role, allowed, terminal.ToolCalls)
			req.Exchanges = append(req.Exchanges, contractx.ToolExchange{
				Calls:   terminal.ToolCalls,
				Results: results,
			})
			continue
		}

		reply := strings.TrimSpace(terminal.Text)
		if reply == "" {
			return ApologyReply
		}
		return reply
	}

	return ApologyReply
}

// consume drains one event stream and returns its last terminal event.
// Earlier and non-terminal events are discarded, not concatenated.
func (r *Runner) consume(ctx context.Context, req contractx.CompletionRequest) (contractx.Event, error) {
	stream, err := r.client.Run(ctx, req)
	if err != nil {
		return contractx.Event{}, err
	}
	defer stream.Close()

	var terminal contractx.Event
	sawTerminal := false
	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return contractx.Event{}, err
		}
		if ev.Terminal {
			terminal = ev
			sawTerminal = true
		}
	}

	if !sawTerminal {
		return contractx.Event{}, fmt.Errorf("%w: completion stream ended without a terminal event", contractx.ErrUpstream)
	}
	return terminal, nil
}

func (r *Runner) executeTools(
	ctx context.Context,
	sess *sessionx.Session,
	role rolex.Role,
	allowed map[string]struct{},
	calls []contractx.ToolCall,
) []contractx.ToolResult {
	results := make([]contractx.ToolResult, 0, len(calls))
	for _, call := range calls {
		var content string
		if _, ok := allowed[call.Name]; !ok {
			content = toolError(fmt.Sprintf("tool=%s is not allowed for role=%s", call.Name, role.Kind))
		} else {
			content = r.executeTool(ctx, sess, role, call)
		}
		results = append(results, contractx.ToolResult{
			CallID:  call.ID,
			Name:    call.Name,
			Content: content,
		})
	}
	return results
}

func (r *Runner) executeTool(ctx context.Context, sess *sessionx.Session, role rolex.Role, call contractx.ToolCall) string {
	args := map[string]any{}
	if raw := strings.TrimSpace(call.Args); raw != "" {
		if err := json.Unmarshal([]byte(raw), &args); err != nil {
			return toolError(fmt.Sprintf("invalid arguments for tool=%s: %v", call.Name, err))
		}
	}

	switch call.Name {
	case rolex.ToolSaveSummary:
		return r.saveSummary(ctx, sess, role, args)
	case rolex.ToolGetSummary:
		return r.getSummary(sess)
	case rolex.ToolRagLookup:
		return r.ragLookup(ctx, sess, args)
	default:
		return toolError(fmt.Sprintf("tool=%s is unavailable", call.Name))
	}
}

func (r *Runner) saveSummary(ctx context.Context, sess *sessionx.Session, role rolex.Role, args map[string]any) string {
	text, _ := args["summary"].(string)
	rawSource, _ := args["source"].(string)

	fallback := summaryx.SourceManual
	if role.Kind == rolex.KindIntake {
		fallback = summaryx.SourceSurvey
	}
	source := summaryx.ParseSource(rawSource, fallback)

	if _, err := r.summaries.Save(ctx, sess, text, source); err != nil {
		if errors.Is(err, contractx.ErrValidation) {
			return toolError("Business summary cannot be empty.")
		}
		return toolError(fmt.Sprintf("failed to save business summary: %v", err))
	}
	return mustJSON(map[string]string{
		"status":  "success",
		"message": "Business summary saved for future workflows.",
	})
}

func (r *Runner) getSummary(sess *sessionx.Session) string {
	rec, ok := r.summaries.Read(sess)
	if !ok {
		return mustJSON(map[string]any{
			"summary":    nil,
			"source":     nil,
			"updated_at": nil,
		})
	}
	return mustJSON(map[string]any{
		"summary":    rec.Text,
		"source":     rec.Source,
		"updated_at": rec.UpdatedAt,
		"submitted":  rec.Submitted,
	})
}

func (r *Runner) ragLookup(ctx context.Context, sess *sessionx.Session, args map[string]any) string {
	question, _ := args["question"].(string)
	if strings.TrimSpace(question) == "" {
		return toolError("question is required")
	}

	topK := r.topK
	if raw, ok := args["top_k"].(float64); ok && int(raw) > 0 {
		topK = int(raw)
	}

	enriched := question
	if rec, ok := r.summaries.Read(sess); ok {
		enriched = ragx.Enrich(rec.Text, question)
	}

	answer, err := r.retriever.Query(ctx, enriched, topK)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sess.ID).Msg("retrieval lookup failed")
		return toolError(fmt.Sprintf("retrieval lookup failed: %v", err))
	}
	return mustJSON(map[string]string{"answer": answer})
}

func toolError(message string) string {
	return mustJSON(map[string]string{
		"status":  "error",
		"message": message,
	})
}

func mustJSON(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return `{"status":"error","message":"failed to encode tool result"}`
	}
	return string(raw)
}
