package contract

// Turn is one entry of a session's conversation history.
type Turn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Event is one element of the completion service's response sequence.
// Non-terminal events carry partial text and are discarded by the runner;
// the last terminal event decides the reply.
type Event struct {
	Text      string
	ToolCalls []ToolCall
	Terminal  bool
}

// ToolCall is a tool invocation requested by the completion service.
// Args is the raw JSON argument object as emitted by the model.
type ToolCall struct {
	ID   string
	Name string
	Args string
}

// ToolResult is the outcome of executing one ToolCall. Content is a JSON
// document fed back to the completion service on the next leg.
type ToolResult struct {
	CallID  string
	Name    string
	Content string
}

// ToolExchange records one completed tool round within a single turn.
type ToolExchange struct {
	Calls   []ToolCall
	Results []ToolResult
}

// ParamSpec describes one tool parameter for the completion service.
type ParamSpec struct {
	Type        string
	Description string
	Required    bool
}

// ToolSpec declares a tool a role is allowed to invoke.
type ToolSpec struct {
	Name        string
	Description string
	Params      map[string]ParamSpec
}

// CompletionRequest is one leg of a role turn against the completion
// service. Exchanges carries tool rounds already executed in this turn so
// the service sees its own prior tool calls and their results.
type CompletionRequest struct {
	Identity  string
	Tools     []ToolSpec
	Message   string
	History   []Turn
	Exchanges []ToolExchange
}
