// Package llm adapts the OpenAI-compatible chat completion API onto the
// contract.CompletionClient event protocol. The default base URL targets
// Gemini's OpenAI-compatible endpoint; any compatible provider works.
package llm

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/ssestream"

	contractx "github.com/hardlaunch/hardlaunch/agent/contract"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://generativelanguage.googleapis.com/v1beta/openai/"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" default:"gemini-2.5-flash"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"2000"`
	Temperature        float64       `envconfig:"TEMPERATURE" split_words:"true" default:"0.5"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"60s"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: llm api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: llm model is required", contractx.ErrValidation)
	}
	return nil
}

// Client runs completion requests against the configured model.
type Client struct {
	sdk         openaisdk.Client
	model       string
	maxTokens   int
	temperature float64
}

var _ contractx.CompletionClient = (*Client)(nil)

func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(cfg.APIKey)),
	}
	if trimmed := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); trimmed != "" {
		opts = append(opts, option.WithBaseURL(trimmed+"/"))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Client{
		sdk:         openaisdk.NewClient(opts...),
		model:       strings.TrimSpace(cfg.Model),
		maxTokens:   cfg.MaxCompletionToken,
		temperature: cfg.Temperature,
	}, nil
}

// Run starts one completion leg and returns its event stream. Content
// deltas surface as non-terminal events; the accumulated message becomes
// the single terminal event once the provider closes the stream.
func (c *Client) Run(ctx context.Context, req contractx.CompletionRequest) (contractx.EventStream, error) {
	params := openaisdk.ChatCompletionNewParams{
		Model:    openaisdk.ChatModel(c.model),
		Messages: buildMessages(req),
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = openaisdk.Int(int64(c.maxTokens))
	}
	if c.temperature >= 0 {
		params.Temperature = openaisdk.Float(c.temperature)
	}
	if tools := buildTools(req.Tools); len(tools) > 0 {
		params.Tools = tools
	}

	stream := c.sdk.Chat.Completions.NewStreaming(ctx, params)
	return &eventStream{stream: stream}, nil
}

func buildMessages(req contractx.CompletionRequest) []openaisdk.ChatCompletionMessageParamUnion {
	msgs := make([]openaisdk.ChatCompletionMessageParamUnion, 0, len(req.History)+len(req.Exchanges)*2+2)

	if identity := strings.TrimSpace(req.Identity); identity != "" {
		msgs = append(msgs, openaisdk.SystemMessage(identity))
	}
	for _, turn := range req.History {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		if turn.Role == "user" {
			msgs = append(msgs, openaisdk.UserMessage(turn.Text))
		} else {
			msgs = append(msgs, openaisdk.AssistantMessage(turn.Text))
		}
	}
	msgs = append(msgs, openaisdk.UserMessage(req.Message))

	for _, ex := range req.Exchanges {
		calls := make([]openaisdk.ChatCompletionMessageToolCallUnionParam, 0, len(ex.Calls))
		for _, call := range ex.Calls {
			calls = append(calls, openaisdk.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openaisdk.ChatCompletionMessageFunctionToolCallParam{
					ID: call.ID,
					Function: openaisdk.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      call.Name,
						Arguments: call.Args,
					},
				},
			})
		}
		msgs = append(msgs, openaisdk.ChatCompletionMessageParamUnion{
			OfAssistant: &openaisdk.ChatCompletionAssistantMessageParam{
				ToolCalls: calls,
			},
		})
		for _, res := range ex.Results {
			msgs = append(msgs, openaisdk.ToolMessage(res.Content, res.CallID))
		}
	}

	return msgs
}

func buildTools(specs []contractx.ToolSpec) []openaisdk.ChatCompletionToolUnionParam {
	if len(specs) == 0 {
		return nil
	}
	tools := make([]openaisdk.ChatCompletionToolUnionParam, 0, len(specs))
	for _, spec := range specs {
		properties := make(map[string]any, len(spec.Params))
		required := make([]string, 0, len(spec.Params))
		for name, param := range spec.Params {
			properties[name] = map[string]any{
				"type":        param.Type,
				"description": param.Description,
			}
			if param.Required {
				required = append(required, name)
			}
		}
		tools = append(tools, openaisdk.ChatCompletionFunctionTool(openaisdk.FunctionDefinitionParam{
			Name:        spec.Name,
			Description: openaisdk.String(spec.Description),
			Parameters: openaisdk.FunctionParameters{
				"type":       "object",
				"properties": properties,
				"required":   required,
			},
		}))
	}
	return tools
}

// eventStream adapts the SSE chunk stream to contract events.
type eventStream struct {
	stream *ssestream.Stream[openaisdk.ChatCompletionChunk]
	acc    openaisdk.ChatCompletionAccumulator
	done   bool
}

func (s *eventStream) Next() (contractx.Event, error) {
	if s.done {
		return contractx.Event{}, io.EOF
	}

	for s.stream.Next() {
		chunk := s.stream.Current()
		s.acc.AddChunk(chunk)
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			return contractx.Event{Text: chunk.Choices[0].Delta.Content}, nil
		}
	}
	if err := s.stream.Err(); err != nil {
		s.done = true
		return contractx.Event{}, fmt.Errorf("%w: completion stream: %v", contractx.ErrUpstream, err)
	}

	s.done = true
	return s.terminalEvent()
}

func (s *eventStream) terminalEvent() (contractx.Event, error) {
	if len(s.acc.Choices) == 0 {
		return contractx.Event{Terminal: true}, nil
	}

	msg := s.acc.Choices[0].Message
	ev := contractx.Event{
		Text:     msg.Content,
		Terminal: true,
	}
	for _, call := range msg.ToolCalls {
		if strings.TrimSpace(call.Function.Name) == "" {
			continue
		}
		ev.ToolCalls = append(ev.ToolCalls, contractx.ToolCall{
			ID:   call.ID,
			Name: call.Function.Name,
			Args: call.Function.Arguments,
		})
	}
	return ev, nil
}

func (s *eventStream) Close() error {
	return s.stream.Close()
}
