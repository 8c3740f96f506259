package contract

import "context"

// EventStream yields completion events for one request leg. Next returns
// io.EOF once the sequence is exhausted.
type EventStream interface {
	Next() (Event, error)
	Close() error
}

// CompletionClient is the black-box text-completion service.
type CompletionClient interface {
	Run(ctx context.Context, req CompletionRequest) (EventStream, error)
}

// Retriever is the document-lookup service used to ground specialist
// answers in evidence.
type Retriever interface {
	Query(ctx context.Context, question string, topK int) (string, error)
}
