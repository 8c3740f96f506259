package runner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	contractx "github.com/hardlaunch/hardlaunch/agent/contract"
	rolex "github.com/hardlaunch/hardlaunch/agent/role"
	sessionx "github.com/hardlaunch/hardlaunch/agent/session"
	summaryx "github.com/hardlaunch/hardlaunch/agent/summary"
)

type fakeStream struct {
	events []contractx.Event
	err    error
	pos    int
	closed bool
}

func (s *fakeStream) Next() (contractx.Event, error) {
	if s.pos < len(s.events) {
		ev := s.events[s.pos]
		s.pos++
		return ev, nil
	}
	if s.err != nil {
		return contractx.Event{}, s.err
	}
	return contractx.Event{}, io.EOF
}

func (s *fakeStream) Close() error {
	s.closed = true
	return nil
}

// fakeClient replays one scripted stream per Run call and records every
// request it receives.
type fakeClient struct {
	streams  []*fakeStream
	requests []contractx.CompletionRequest
	runErr   error
}

func (c *fakeClient) Run(_ context.Context, req contractx.CompletionRequest) (contractx.EventStream, error) {
	c.requests = append(c.requests, req)
	if c.runErr != nil {
		return nil, c.runErr
	}
	if len(c.streams) == 0 {
		return &fakeStream{events: []contractx.Event{{Terminal: true, Text: "ok"}}}, nil
	}
	stream := c.streams[0]
	if len(c.streams) > 1 {
		c.streams = c.streams[1:]
	}
	return stream, nil
}

type fakeRetriever struct {
	question string
	topK     int
	answer   string
	err      error
}

func (r *fakeRetriever) Query(_ context.Context, question string, topK int) (string, error) {
	r.question = question
	r.topK = topK
	return r.answer, r.err
}

func newTestRunner(t *testing.T, client contractx.CompletionClient, retriever contractx.Retriever) (*Runner, *summaryx.Store, *sessionx.Session) {
	t.Helper()

	registry, err := sessionx.NewRegistry(sessionx.NewMemoryStore())
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	summaries, err := summaryx.NewStore(registry)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	r, err := New(client, summaries, retriever, 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	sess, err := registry.GetOrCreate(context.Background(), "", "founder")
	if err != nil {
		t.Fatalf("GetOrCreate() error = %v", err)
	}
	return r, summaries, sess
}

func intakeRole(t *testing.T) rolex.Role {
	t.Helper()

	role, ok := rolex.NewCatalog().Get(rolex.KindIntake)
	if !ok {
		t.Fatal("intake role missing from catalog")
	}
	return role
}

func TestRunKeepsLastTerminalEvent(t *testing.T) {
	t.Parallel()

	client := &fakeClient{streams: []*fakeStream{{events: []contractx.Event{
		{Text: "partial"},
		{Terminal: true, Text: "first final"},
		{Text: "more partial"},
		{Terminal: true, Text: "second final"},
	}}}}
	r, _, sess := newTestRunner(t, client, nil)

	got := r.Run(context.Background(), intakeRole(t), "hello", sess)
	if got != "second final" {
		t.Fatalf("Run() = %q, want last terminal text", got)
	}
}

func TestRunEmptyTerminalTextApologizes(t *testing.T) {
	t.Parallel()

	client := &fakeClient{streams: []*fakeStream{{events: []contractx.Event{
		{Terminal: true, Text: "   "},
	}}}}
	r, _, sess := newTestRunner(t, client, nil)

	got := r.Run(context.Background(), intakeRole(t), "hello", sess)
	if got != ApologyReply {
		t.Fatalf("Run() = %q, want apology", got)
	}
}

func TestRunStreamErrorBecomesReply(t *testing.T) {
	t.Parallel()

	client := &fakeClient{streams: []*fakeStream{{
		events: []contractx.Event{{Text: "partial"}},
		err:    errors.New("connection reset"),
	}}}
	r, _, sess := newTestRunner(t, client, nil)

	got := r.Run(context.Background(), intakeRole(t), "hello", sess)
	if !strings.HasPrefix(got, "An error occurred: ") {
		t.Fatalf("Run() = %q, want error reply", got)
	}
	if !strings.Contains(got, "connection reset") {
		t.Fatalf("Run() = %q, want error details", got)
	}
}

func TestRunMissingTerminalEventIsAnError(t *testing.T) {
	t.Parallel()

	client := &fakeClient{streams: []*fakeStream{{events: []contractx.Event{
		{Text: "partial only"},
	}}}}
	r, _, sess := newTestRunner(t, client, nil)

	got := r.Run(context.Background(), intakeRole(t), "hello", sess)
	if !strings.HasPrefix(got, "An error occurred: ") {
		t.Fatalf("Run() = %q, want error reply", got)
	}
}

func TestRunClientErrorBecomesReply(t *testing.T) {
	t.Parallel()

	client := &fakeClient{runErr: errors.New("dial failed")}
	r, _, sess := newTestRunner(t, client, nil)

	got := r.Run(context.Background(), intakeRole(t), "hello", sess)
	if !strings.HasPrefix(got, "An error occurred: ") {
		t.Fatalf("Run() = %q, want error reply", got)
	}
}

func TestRunToolLoopSavesSummary(t *testing.T) {
	t.Parallel()

	args := `{"summary":"AI scheduling for dentists"}`
	client := &fakeClient{streams: []*fakeStream{
		{events: []contractx.Event{{
			Terminal: true,
			ToolCalls: []contractx.ToolCall{
				{ID: "call-1", Name: rolex.ToolSaveSummary, Args: args},
			},
		}}},
		{events: []contractx.Event{{Terminal: true, Text: "Saved your summary."}}},
	}}
	r, summaries, sess := newTestRunner(t, client, nil)

	got := r.Run(context.Background(), intakeRole(t), "here is my idea", sess)
	if got != "Saved your summary." {
		t.Fatalf("Run() = %q", got)
	}

	rec, ok := summaries.Read(sess)
	if !ok {
		t.Fatal("expected summary saved by tool call")
	}
	if rec.Text != "AI scheduling for dentists" {
		t.Fatalf("summary text = %q", rec.Text)
	}
	if rec.Source != summaryx.SourceSurvey {
		t.Fatalf("summary source = %q, want survey for intake role", rec.Source)
	}

	// The second request must replay the tool exchange.
	if len(client.requests) != 2 {
		t.Fatalf("Run() made %d requests, want 2", len(client.requests))
	}
	second := client.requests[1]
	if len(second.Exchanges) != 1 {
		t.Fatalf("second request has %d exchanges, want 1", len(second.Exchanges))
	}
	result := second.Exchanges[0].Results[0]
	if result.CallID != "call-1" {
		t.Fatalf("result call id = %q", result.CallID)
	}
	var payload map[string]string
	if err := json.Unmarshal([]byte(result.Content), &payload); err != nil {
		t.Fatalf("tool result is not JSON: %v", err)
	}
	if payload["status"] != "success" {
		t.Fatalf("tool result status = %q", payload["status"])
	}
}

func TestRunDisallowedToolIsRefused(t *testing.T) {
	t.Parallel()

	specialist, ok := rolex.NewCatalog().Get(rolex.KindBusiness)
	if !ok {
		t.Fatal("business role missing from catalog")
	}

	client := &fakeClient{streams: []*fakeStream{
		{events: []contractx.Event{{
			Terminal: true,
			ToolCalls: []contractx.ToolCall{
				{ID: "call-1", Name: rolex.ToolSaveSummary, Args: `{"summary":"sneaky"}`},
			},
		}}},
		{events: []contractx.Event{{Terminal: true, Text: "done"}}},
	}}
	r, summaries, sess := newTestRunner(t, client, nil)

	_ = r.Run(context.Background(), specialist, "hi", sess)

	if _, ok := summaries.Read(sess); ok {
		t.Fatal("specialist must not be able to save the summary")
	}
	result := client.requests[1].Exchanges[0].Results[0]
	if !strings.Contains(result.Content, "not allowed") {
		t.Fatalf("result content = %q, want refusal", result.Content)
	}
}

func TestRunToolLoopIsBounded(t *testing.T) {
	t.Parallel()

	// Every round answers with another tool call; the loop must stop on
	// its own and fall back to the apology.
	looping := func() *fakeStream {
		return &fakeStream{events: []contractx.Event{{
			Terminal: true,
			ToolCalls: []contractx.ToolCall{
				{ID: "c", Name: rolex.ToolGetSummary, Args: "{}"},
			},
		}}}
	}
	client := &fakeClient{streams: []*fakeStream{
		looping(), looping(), looping(), looping(), looping(), looping(),
	}}
	r, _, sess := newTestRunner(t, client, nil)

	got := r.Run(context.Background(), intakeRole(t), "hello", sess)
	if got != ApologyReply {
		t.Fatalf("Run() = %q, want apology after bounded loop", got)
	}
	if len(client.requests) > maxToolRounds+1 {
		t.Fatalf("Run() made %d requests, want at most %d", len(client.requests), maxToolRounds+1)
	}
}

func TestRunRagLookupEnrichesQuestion(t *testing.T) {
	t.Parallel()

	specialist, ok := rolex.NewCatalog().Get(rolex.KindMarket)
	if !ok {
		t.Fatal("market role missing from catalog")
	}

	retriever := &fakeRetriever{answer: "sources say yes"}
	client := &fakeClient{streams: []*fakeStream{
		{events: []contractx.Event{{
			Terminal: true,
			ToolCalls: []contractx.ToolCall{
				{ID: "c1", Name: rolex.ToolRagLookup, Args: `{"question":"market size?","top_k":3}`},
			},
		}}},
		{events: []contractx.Event{{Terminal: true, Text: "answered"}}},
	}}
	r, summaries, sess := newTestRunner(t, client, retriever)

	if _, err := summaries.Save(context.Background(), sess, "Dental AI", summaryx.SourceSurvey); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got := r.Run(context.Background(), specialist, "how big is the market?", sess)
	if got != "answered" {
		t.Fatalf("Run() = %q", got)
	}
	if retriever.topK != 3 {
		t.Fatalf("retriever topK = %d, want 3", retriever.topK)
	}
	if !strings.Contains(retriever.question, "Dental AI") {
		t.Fatalf("retriever question missing summary context: %q", retriever.question)
	}
	if !strings.Contains(retriever.question, "market size?") {
		t.Fatalf("retriever question missing original question: %q", retriever.question)
	}
}
