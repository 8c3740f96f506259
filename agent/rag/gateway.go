// Package rag wraps the external document-lookup service. The store
// itself (ingestion, embeddings, persistence) lives outside this process;
// this gateway only enriches questions with the current business summary
// and forwards them.
package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	contractx "github.com/hardlaunch/hardlaunch/agent/contract"
)

const (
	DefaultTopK          = 5
	maxResponseSizeBytes = 2 << 20
)

type Config struct {
	URL        string        `envconfig:"URL" split_words:"true"`
	TopK       int           `envconfig:"TOP_K" split_words:"true" default:"5"`
	EmbedModel string        `envconfig:"EMBED_MODEL" split_words:"true" default:"models/embedding-001"`
	Timeout    time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"30s"`
}

// HTTPGateway queries a retrieval service over JSON/HTTP.
type HTTPGateway struct {
	baseURL    string
	embedModel string
	httpClient *http.Client
}

var _ contractx.Retriever = (*HTTPGateway)(nil)

type queryRequest struct {
	Query      string `json:"query"`
	TopK       int    `json:"top_k"`
	EmbedModel string `json:"embed_model,omitempty"`
}

type queryResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

func NewHTTPGateway(cfg Config) (*HTTPGateway, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.URL), "/")
	if baseURL == "" {
		return nil, errors.New("retrieval url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid retrieval url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &HTTPGateway{
		baseURL:    baseURL,
		embedModel: strings.TrimSpace(cfg.EmbedModel),
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (g *HTTPGateway) Query(ctx context.Context, question string, topK int) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", fmt.Errorf("%w: retrieval question is empty", contractx.ErrValidation)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	body, err := json.Marshal(queryRequest{
		Query:      question,
		TopK:       topK,
		EmbedModel: g.embedModel,
	})
	if err != nil {
		return "", fmt.Errorf("marshal retrieval request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build retrieval request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: retrieval request: %v", contractx.ErrUpstream, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return "", fmt.Errorf("%w: read retrieval response: %v", contractx.ErrUpstream, err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("%w: retrieval http status=%d body=%s", contractx.ErrUpstream, resp.StatusCode, string(raw))
	}

	var parsed queryResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: decode retrieval response: %v", contractx.ErrUpstream, err)
	}
	if parsed.Error != "" {
		return "", fmt.Errorf("%w: %s", contractx.ErrUpstream, parsed.Error)
	}
	return parsed.Answer, nil
}

// Enrich prepends the current business summary so the retriever can align
// results with the user's latest context.
func Enrich(summaryText, question string) string {
	summaryText = strings.TrimSpace(summaryText)
	if summaryText == "" {
		return question
	}
	return fmt.Sprintf("Business Summary:\n%s\n\nUser Question:\n%s", summaryText, question)
}

// Unconfigured is used when no retrieval service is configured; lookups
// fail soft and the roles answer from the summary alone.
type Unconfigured struct{}

var _ contractx.Retriever = Unconfigured{}

func (Unconfigured) Query(context.Context, string, int) (string, error) {
	return "", fmt.Errorf("%w: no retrieval service configured", contractx.ErrUpstream)
}
