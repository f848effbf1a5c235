package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type chatServer struct {
	mu       sync.Mutex
	requests []map[string]any
	replies  []string
}

func (s *chatServer) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		require.NoError(t, json.Unmarshal(body, &req))

		s.mu.Lock()
		idx := len(s.requests)
		s.requests = append(s.requests, req)
		reply := s.replies[idx]
		s.mu.Unlock()

		if stream, _ := req["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
		} else {
			w.Header().Set("Content-Type", "application/json")
		}
		_, _ = io.WriteString(w, reply)
	}
}

func completion(message string, prompt, completionTokens int) string {
	return fmt.Sprintf(`{"id":"c","object":"chat.completion","model":"gpt-4o-mini","choices":[{"index":0,"message":%s,"finish_reason":"stop"}],"usage":{"prompt_tokens":%d,"completion_tokens":%d,"total_tokens":%d}}`,
		message, prompt, completionTokens, prompt+completionTokens)
}

func newTestProvider(t *testing.T, replies ...string) (*OpenAIProvider, *chatServer) {
	cs := &chatServer{replies: replies}
	srv := httptest.NewServer(cs.handler(t))
	t.Cleanup(srv.Close)
	return NewOpenAIProvider(context.Background(), "test-key", srv.URL, "You are kind.", WithLogger(zap.NewNop())), cs
}

func TestQueryRunsToolLoop(t *testing.T) {
	p, cs := newTestProvider(t,
		completion(`{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"log_pain_assessment","arguments":"{\"pain_level\":7,\"pain_location\":\"back\"}"}}]}`, 100, 20),
		completion(`{"role":"assistant","content":"Thanks, noted."}`, 130, 5),
	)

	var got map[string]interface{}
	p.RegisterFunctionTool("log_pain_assessment", "log pain", map[string]interface{}{"type": "object"},
		func(ctx context.Context, args map[string]interface{}) (string, error) {
			got = args
			return "recorded", nil
		})

	out, err := p.Query(context.Background(), "my back hurts")
	require.NoError(t, err)
	assert.Equal(t, "Thanks, noted.", out)
	assert.Equal(t, 7.0, got["pain_level"])
	assert.Equal(t, "back", got["pain_location"])

	require.Len(t, cs.requests, 2)
	tools := cs.requests[0]["tools"].([]any)
	require.Len(t, tools, 1)
	msgs := cs.requests[1]["messages"].([]any)
	last := msgs[len(msgs)-1].(map[string]any)
	assert.Equal(t, "tool", last["role"])
	assert.Equal(t, "recorded", last["content"])
	assert.Equal(t, "call_1", last["tool_call_id"])
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])

	usage, ok := p.GetLastUsage()
	require.True(t, ok)
	assert.Equal(t, 230, usage.PromptTokens)
	assert.Equal(t, 25, usage.CompletionTokens)
	st, _ := p.LastStats()
	assert.Equal(t, 1, st.ToolRounds)

	hist := p.History()
	require.Len(t, hist, 4)
	assert.Equal(t, RoleUser, hist[0].Role)
	assert.Equal(t, RoleTool, hist[2].Role)
	assert.Equal(t, RoleAssistant, hist[3].Role)
}

func TestToolErrorFedBackToModel(t *testing.T) {
	p, cs := newTestProvider(t,
		completion(`{"role":"assistant","tool_calls":[{"id":"c1","type":"function","function":{"name":"track_sleep_quality","arguments":"{}"}},{"id":"c2","type":"function","function":{"name":"nope","arguments":"{}"}}]}`, 1, 1),
		completion(`{"role":"assistant","content":"How many hours did you sleep?"}`, 1, 1),
	)
	p.RegisterFunctionTool("track_sleep_quality", "", nil, func(ctx context.Context, args map[string]interface{}) (string, error) {
		return "", errors.New("missing required argument hours_slept")
	})

	out, err := p.Query(context.Background(), "slept badly")
	require.NoError(t, err)
	assert.Equal(t, "How many hours did you sleep?", out)

	msgs := cs.requests[1]["messages"].([]any)
	n := len(msgs)
	assert.Equal(t, "error: missing required argument hours_slept", msgs[n-2].(map[string]any)["content"])
	assert.True(t, strings.HasPrefix(msgs[n-1].(map[string]any)["content"].(string), "error: unknown tool"))
}

func TestToolRoundsAreBounded(t *testing.T) {
	call := completion(`{"role":"assistant","tool_calls":[{"id":"c","type":"function","function":{"name":"loop","arguments":"{}"}}]}`, 1, 1)
	replies := make([]string, 0, MaxToolRounds+1)
	for i := 0; i < MaxToolRounds; i++ {
		replies = append(replies, call)
	}
	replies = append(replies, completion(`{"role":"assistant","content":"done"}`, 1, 1))
	p, cs := newTestProvider(t, replies...)

	calls := 0
	p.RegisterFunctionTool("loop", "", nil, func(ctx context.Context, args map[string]interface{}) (string, error) {
		calls++
		return "again", nil
	})

	out, err := p.Query(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, MaxToolRounds, calls)
	require.Len(t, cs.requests, MaxToolRounds+1)
	_, hasTools := cs.requests[MaxToolRounds]["tools"]
	assert.False(t, hasTools)
}

func TestQueryStream(t *testing.T) {
	sse := strings.Join([]string{
		`data: {"id":"s","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"role":"assistant","content":"I hear "}}]}`,
		`data: {"id":"s","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"you."}}]}`,
		`data: {"id":"s","object":"chat.completion.chunk","choices":[],"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}}`,
		`data: [DONE]`,
	}, "\n\n") + "\n\n"
	p, cs := newTestProvider(t, sse)

	var segments []string
	var completed bool
	out, err := p.QueryStream(context.Background(), "hello", QueryOptions{Instructions: "be brief"}, func(seg string, done bool) error {
		if done {
			completed = true
			return nil
		}
		segments = append(segments, seg)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "I hear you.", out)
	assert.Equal(t, []string{"I hear ", "you."}, segments)
	assert.True(t, completed)

	msgs := cs.requests[0]["messages"].([]any)
	assert.Equal(t, "be brief", msgs[len(msgs)-1].(map[string]any)["content"])

	st, ok := p.LastStats()
	require.True(t, ok)
	assert.Equal(t, 12, st.Usage.PromptTokens)
	assert.Greater(t, st.TTFT.Nanoseconds(), int64(0))
}

func TestCheckpointRollback(t *testing.T) {
	p, _ := newTestProvider(t, completion(`{"role":"assistant","content":"ok"}`, 1, 1))
	cp := p.Checkpoint()
	_, err := p.Query(context.Background(), "speculative")
	require.NoError(t, err)
	assert.Len(t, p.History(), 2)
	p.Rollback(cp)
	assert.Empty(t, p.History())
}

func TestNewLLMProvider(t *testing.T) {
	p, err := NewLLMProvider(context.Background(), "", "k", "", "gpt-x", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "gpt-x", p.Model())

	p, err = NewLLMProvider(context.Background(), "Ollama", "", "", "", "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, p.Model())

	_, err = NewLLMProvider(context.Background(), "coze", "k", "", "", "", nil)
	assert.Error(t, err)
}
