// Package agents runs a voice agent inside a LiveKit room: a session turns
// room audio into user turns, answers them with an LLM and speaks the reply.
package agents

import "github.com/code-100-precent/LingCare/pkg/llm"

// Agent supplies the behaviour of a session.
type Agent interface {
	Instructions() string
	Tools() []llm.FunctionToolDefinition
}

// BaseAgent is a static Agent.
type BaseAgent struct {
	instructions string
	tools        []llm.FunctionToolDefinition
}

func NewBaseAgent(instructions string, tools ...llm.FunctionToolDefinition) *BaseAgent {
	return &BaseAgent{instructions: instructions, tools: tools}
}

func (a *BaseAgent) Instructions() string { return a.instructions }

func (a *BaseAgent) Tools() []llm.FunctionToolDefinition {
	return append([]llm.FunctionToolDefinition(nil), a.tools...)
}
