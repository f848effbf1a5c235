package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// MaxToolRounds bounds how many times one query may go model -> tools -> model.
const MaxToolRounds = 5

const DefaultModel = "gpt-4o-mini"

// OpenAIProvider talks to any OpenAI-compatible chat completions endpoint.
type OpenAIProvider struct {
	client       *openai.Client
	model        string
	systemPrompt string
	logger       *zap.Logger

	mu        sync.Mutex
	messages  []openai.ChatCompletionMessage
	tools     map[string]*FunctionToolDefinition
	toolOrder []string
	lastStats Stats
	hasStats  bool
	cancel    context.CancelFunc
}

type OpenAIOption func(*OpenAIProvider)

func WithModel(model string) OpenAIOption {
	return func(p *OpenAIProvider) {
		if model != "" {
			p.model = model
		}
	}
}

func WithLogger(lg *zap.Logger) OpenAIOption {
	return func(p *OpenAIProvider) {
		if lg != nil {
			p.logger = lg
		}
	}
}

func NewOpenAIProvider(ctx context.Context, apiKey, baseURL, systemPrompt string, opts ...OpenAIOption) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	p := &OpenAIProvider{
		client:       openai.NewClientWithConfig(cfg),
		model:        DefaultModel,
		systemPrompt: systemPrompt,
		logger:       zap.L(),
		tools:        make(map[string]*FunctionToolDefinition),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) SetSystemPrompt(prompt string) {
	p.mu.Lock()
	p.systemPrompt = prompt
	p.mu.Unlock()
}

func (p *OpenAIProvider) RegisterFunctionTool(name, description string, parameters interface{}, callback FunctionToolCallback) {
	p.RegisterFunctionToolDefinition(&FunctionToolDefinition{
		Name:        name,
		Description: description,
		Parameters:  parameters,
		Callback:    callback,
	})
}

func (p *OpenAIProvider) RegisterFunctionToolDefinition(def *FunctionToolDefinition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.tools[def.Name]; !ok {
		p.toolOrder = append(p.toolOrder, def.Name)
	}
	p.tools[def.Name] = def
	p.logger.Debug("llm tool registered", zap.String("name", def.Name))
}

func (p *OpenAIProvider) ListFunctionTools() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.toolOrder...)
}

func (p *OpenAIProvider) GetLastUsage() (Usage, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastStats.Usage, p.hasStats
}

func (p *OpenAIProvider) LastStats() (Stats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastStats, p.hasStats
}

func (p *OpenAIProvider) History() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, 0, len(p.messages))
	for _, m := range p.messages {
		out = append(out, Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func (p *OpenAIProvider) Checkpoint() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

func (p *OpenAIProvider) Rollback(checkpoint int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if checkpoint >= 0 && checkpoint < len(p.messages) {
		p.messages = p.messages[:checkpoint]
	}
}

func (p *OpenAIProvider) ResetMessages() {
	p.mu.Lock()
	p.messages = nil
	p.mu.Unlock()
}

func (p *OpenAIProvider) Interrupt() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (p *OpenAIProvider) Query(ctx context.Context, text string) (string, error) {
	return p.QueryWithOptions(ctx, text, QueryOptions{})
}

func (p *OpenAIProvider) QueryWithOptions(ctx context.Context, text string, options QueryOptions) (string, error) {
	return p.run(ctx, text, options, p.completeOnce, nil)
}

func (p *OpenAIProvider) QueryStream(ctx context.Context, text string, options QueryOptions, callback func(string, bool) error) (string, error) {
	out, err := p.run(ctx, text, options, p.completeStream, callback)
	if err != nil {
		return out, err
	}
	if callback != nil {
		if cbErr := callback("", true); cbErr != nil {
			return out, cbErr
		}
	}
	return out, nil
}

// roundFunc performs one model call and returns the assistant message.
type roundFunc func(ctx context.Context, req openai.ChatCompletionRequest, start time.Time, st *Stats, cb func(string, bool) error) (openai.ChatCompletionMessage, error)

func (p *OpenAIProvider) run(ctx context.Context, text string, options QueryOptions, round roundFunc, cb func(string, bool) error) (string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.cancel = cancel
	if text != "" {
		p.messages = append(p.messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: text})
	}
	p.mu.Unlock()

	start := time.Now()
	st := Stats{Model: p.model}
	if options.Model != "" {
		st.Model = options.Model
	}
	defer func() {
		st.Duration = time.Since(start)
		st.Cancelled = ctx.Err() != nil
		p.mu.Lock()
		p.lastStats = st
		p.hasStats = true
		p.cancel = nil
		p.mu.Unlock()
	}()

	for r := 0; ; r++ {
		withTools := !options.DisableTools && r < MaxToolRounds
		req := p.buildRequest(options, st.Model, withTools)
		msg, err := round(ctx, req, start, &st, cb)
		if err != nil {
			return "", fmt.Errorf("llm round %d: %w", r, err)
		}

		p.mu.Lock()
		p.messages = append(p.messages, msg)
		p.mu.Unlock()

		if len(msg.ToolCalls) == 0 {
			return msg.Content, nil
		}
		st.ToolRounds++
		for _, call := range msg.ToolCalls {
			result := p.invokeTool(ctx, call)
			p.mu.Lock()
			p.messages = append(p.messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
			p.mu.Unlock()
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
}

func (p *OpenAIProvider) buildRequest(options QueryOptions, model string, withTools bool) openai.ChatCompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()

	msgs := make([]openai.ChatCompletionMessage, 0, len(p.messages)+2)
	if p.systemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: p.systemPrompt})
	}
	msgs = append(msgs, p.messages...)
	if options.Instructions != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: options.Instructions})
	}

	req := openai.ChatCompletionRequest{Model: model, Messages: msgs}
	if options.MaxTokens != nil {
		req.MaxTokens = *options.MaxTokens
	}
	if options.Temperature != nil {
		req.Temperature = *options.Temperature
	}
	if withTools {
		for _, name := range p.toolOrder {
			def := p.tools[name]
			req.Tools = append(req.Tools, openai.Tool{
				Type: openai.ToolTypeFunction,
				Function: &openai.FunctionDefinition{
					Name:        def.Name,
					Description: def.Description,
					Parameters:  def.Parameters,
				},
			})
		}
	}
	return req
}

func (p *OpenAIProvider) completeOnce(ctx context.Context, req openai.ChatCompletionRequest, start time.Time, st *Stats, _ func(string, bool) error) (openai.ChatCompletionMessage, error) {
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionMessage{}, err
	}
	if st.TTFT == 0 {
		st.TTFT = time.Since(start)
	}
	addUsage(&st.Usage, resp.Usage)
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, errors.New("empty choices")
	}
	msg := resp.Choices[0].Message
	msg.Role = openai.ChatMessageRoleAssistant
	return msg, nil
}

func (p *OpenAIProvider) completeStream(ctx context.Context, req openai.ChatCompletionRequest, start time.Time, st *Stats, cb func(string, bool) error) (openai.ChatCompletionMessage, error) {
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}
	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return openai.ChatCompletionMessage{}, err
	}
	defer stream.Close()

	var content strings.Builder
	calls := map[int]*openai.ToolCall{}
	var order []int
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return openai.ChatCompletionMessage{}, err
		}
		if resp.Usage != nil {
			addUsage(&st.Usage, *resp.Usage)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.Content != "" {
			if st.TTFT == 0 {
				st.TTFT = time.Since(start)
			}
			content.WriteString(delta.Content)
			if cb != nil {
				if err := cb(delta.Content, false); err != nil {
					return openai.ChatCompletionMessage{}, err
				}
			}
		}
		for _, tc := range delta.ToolCalls {
			idx := 0
			if tc.Index != nil {
				idx = *tc.Index
			}
			call, ok := calls[idx]
			if !ok {
				call = &openai.ToolCall{Type: openai.ToolTypeFunction}
				calls[idx] = call
				order = append(order, idx)
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			call.Function.Name += tc.Function.Name
			call.Function.Arguments += tc.Function.Arguments
		}
	}

	msg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: content.String()}
	for _, idx := range order {
		msg.ToolCalls = append(msg.ToolCalls, *calls[idx])
	}
	return msg, nil
}

func (p *OpenAIProvider) invokeTool(ctx context.Context, call openai.ToolCall) string {
	p.mu.Lock()
	def, ok := p.tools[call.Function.Name]
	p.mu.Unlock()
	lg := p.logger.With(zap.String("tool", call.Function.Name), zap.String("call_id", call.ID))
	if !ok || def.Callback == nil {
		lg.Warn("model called unknown tool")
		return fmt.Sprintf("error: unknown tool %q", call.Function.Name)
	}

	args := map[string]interface{}{}
	if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
		if err := sonic.UnmarshalString(raw, &args); err != nil {
			lg.Warn("invalid tool arguments", zap.Error(err))
			return fmt.Sprintf("error: invalid arguments: %v", err)
		}
	}
	result, err := def.Callback(ctx, args)
	if err != nil {
		lg.Warn("tool returned error", zap.Error(err))
		return fmt.Sprintf("error: %v", err)
	}
	return result
}

func addUsage(u *Usage, o openai.Usage) {
	u.PromptTokens += o.PromptTokens
	u.CompletionTokens += o.CompletionTokens
	u.TotalTokens += o.TotalTokens
}
