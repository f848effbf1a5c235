package llm

import (
	"context"
	"time"
)

// FunctionToolCallback runs a tool with the JSON-decoded arguments the model sent.
// A returned error is reported back to the model as the tool result.
type FunctionToolCallback func(ctx context.Context, args map[string]interface{}) (string, error)

// FunctionToolDefinition describes one callable tool. Parameters is a JSON schema.
type FunctionToolDefinition struct {
	Name        string
	Description string
	Parameters  interface{}
	Callback    FunctionToolCallback
}

// Message is a flattened chat history entry.
type Message struct {
	Role    string
	Content string
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

type QueryOptions struct {
	Model       string
	MaxTokens   *int
	Temperature *float32
	// Instructions is appended as a one-off system message for this call.
	Instructions string
	// DisableTools hides the registry from the model for this call.
	DisableTools bool
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Stats describes the last completed query.
type Stats struct {
	Model      string
	Usage      Usage
	TTFT       time.Duration
	Duration   time.Duration
	ToolRounds int
	Cancelled  bool
}

// LLMProvider is a conversational model with its own chat history and tool registry.
type LLMProvider interface {
	Query(ctx context.Context, text string) (string, error)
	QueryWithOptions(ctx context.Context, text string, options QueryOptions) (string, error)
	// QueryStream calls callback per content delta and once more with isComplete=true.
	QueryStream(ctx context.Context, text string, options QueryOptions, callback func(segment string, isComplete bool) error) (string, error)

	RegisterFunctionTool(name, description string, parameters interface{}, callback FunctionToolCallback)
	RegisterFunctionToolDefinition(def *FunctionToolDefinition)
	ListFunctionTools() []string

	GetLastUsage() (Usage, bool)
	LastStats() (Stats, bool)

	SetSystemPrompt(prompt string)
	History() []Message
	// Checkpoint marks the history length; Rollback truncates back to it.
	Checkpoint() int
	Rollback(checkpoint int)
	ResetMessages()

	// Interrupt cancels the in-flight query, if any.
	Interrupt()
	Model() string
}
