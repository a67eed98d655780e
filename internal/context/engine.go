// internal/context/engine.go
package context

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/pkoukk/tiktoken-go"

	"github.com/user/slackclaw/internal/store"
	"github.com/user/slackclaw/internal/types"
	"github.com/user/slackclaw/pkg/llm"
)

// Engine assembles token-budgeted prompts for the model.
type Engine struct {
	tokenizer *tiktoken.Tiktoken
	tmpl      *template.Template
	maxTokens int
	reserve   int
}

// New creates a context engine with the specified token budget.
// model selects the tokenizer; maxTokens is the model's context window;
// reserve is held back for the model's response.
func New(model string, maxTokens, reserve int) (*Engine, error) {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Fallback to cl100k_base for unknown models
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return nil, fmt.Errorf("get tokenizer: %w", err)
		}
	}
	tmpl, err := template.New("system").Parse(systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("parse system prompt: %w", err)
	}
	return &Engine{
		tokenizer: enc,
		tmpl:      tmpl,
		maxTokens: maxTokens,
		reserve:   reserve,
	}, nil
}

func (e *Engine) countTokens(text string) int {
	return len(e.tokenizer.Encode(text, nil, nil))
}

// promptData feeds the system prompt template.
type promptData struct {
	Time              string
	ThreadID          string
	UserName          string
	Tools             string
	IsButtonClick     bool
	ClickAcknowledged bool
	ButtonSelection   string
}

// BuildPrompt assembles the message list for the next model call: the
// system prompt followed by as much recent thread history as fits in the
// input budget. Trimming drops the oldest entries first.
func (e *Engine) BuildPrompt(thread *store.Thread, toolNames []string) ([]llm.Message, error) {
	data := promptData{
		Time:              time.Now().Format(time.RFC3339),
		ThreadID:          string(thread.ID),
		Tools:             strings.Join(toolNames, ", "),
		ClickAcknowledged: thread.MetaBool("click_acknowledged"),
	}
	if sel, ok := thread.Meta("button_selection"); ok {
		data.ButtonSelection, _ = sel.(string)
	}
	if name, ok := thread.Meta("user_name"); ok {
		data.UserName, _ = name.(string)
	}
	history := thread.Messages()
	if n := len(history); n > 0 {
		data.IsButtonClick = history[n-1].IsButtonClick
	}

	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("render system prompt: %w", err)
	}
	sysPrompt := buf.String()

	budget := e.maxTokens - e.reserve - e.countTokens(sysPrompt)

	// newest-first accumulation, then restore chronological order
	var recent []llm.Message
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		msg := toLLMMessage(history[i])
		cost := e.countTokens(msg.Content)
		if used+cost > budget {
			break
		}
		recent = append(recent, msg)
		used += cost
	}

	messages := make([]llm.Message, 0, len(recent)+1)
	messages = append(messages, llm.Message{Role: "system", Content: sysPrompt})
	for i := len(recent) - 1; i >= 0; i-- {
		messages = append(messages, recent[i])
	}
	return messages, nil
}

func toLLMMessage(msg types.Message) llm.Message {
	text := msg.Text
	if msg.IsParent {
		// the thread root sets the topic; label it so the model can
		// distinguish it from later chatter
		text = "[thread root] " + text
	}
	switch {
	case msg.IsSystemNote || msg.Role == types.RoleTool || msg.Role == types.RoleSystem:
		return llm.Message{Role: "system", Content: text}
	case msg.Role == types.RoleAssistant:
		return llm.Message{Role: "assistant", Content: text}
	default:
		return llm.Message{Role: "user", Content: text}
	}
}
