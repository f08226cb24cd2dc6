// Package provider defines the uniform contract over subprocess-CLI and
// HTTP-API LLM backends (§4.5), plus the registry+factory pattern used to
// plug in new provider kinds.
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Message is one turn of conversation history handed to a provider.
type Message struct {
	Role    string // "system" | "user" | "assistant"
	Content string
}

// Overrides narrows or reshapes a single call without mutating the
// provider's static configuration.
type Overrides struct {
	MaxTurns     int
	AllowedTools []string
	ToolsDisable bool // explicit disable: force an empty allow-list
	Model        string
	SessionID    string
	AgentName    string
}

// Context is the bundle handed to a provider: system prompt, history,
// current message, per-call MCP server list, and overrides.
type Context struct {
	SystemPrompt   string
	History        []Message
	CurrentMessage string
	MCPServers     []string
	Overrides      Overrides
}

// ToPromptString flattens a Context into the single prompt string the
// subprocess-CLI dispatch style sends as its -p argument.
//
// Agent mode (AgentName set) emits exactly the current message — the agent
// file supplies the persona and tool policy, so history and system prompt
// are intentionally omitted (round-trip law in §8).
//
// Continuation mode (SessionID set) omits history and sends only a
// minimal timestamped context update prepended to the current message.
//
// Otherwise the full transcript is rendered as "[System]...", one line per
// history entry, and a trailing "[User] ...".
func (c *Context) ToPromptString() string {
	if c.Overrides.AgentName != "" {
		return c.CurrentMessage
	}
	if c.Overrides.SessionID != "" {
		return fmt.Sprintf("[Context update %s]\n%s", time.Now().Format(time.RFC3339), c.CurrentMessage)
	}

	var b strings.Builder
	if c.SystemPrompt != "" {
		b.WriteString("[System] ")
		b.WriteString(c.SystemPrompt)
		b.WriteString("\n")
	}
	for _, m := range c.History {
		b.WriteString(fmt.Sprintf("[%s] %s\n", strings.Title(m.Role), m.Content))
	}
	b.WriteString("[User] ")
	b.WriteString(c.CurrentMessage)
	return b.String()
}

// ToAPIMessages splits a Context into the (systemPrompt, messages) shape
// the HTTP-API dispatch style needs, honoring the same agent/session
// short-circuits as ToPromptString.
func (c *Context) ToAPIMessages() (systemPrompt string, messages []Message) {
	if c.Overrides.AgentName != "" {
		return "", []Message{{Role: "user", Content: c.CurrentMessage}}
	}
	if c.Overrides.SessionID != "" {
		return "", []Message{{Role: "user", Content: fmt.Sprintf("[Context update %s]\n%s", time.Now().Format(time.RFC3339), c.CurrentMessage)}}
	}
	msgs := make([]Message, 0, len(c.History)+1)
	msgs = append(msgs, c.History...)
	msgs = append(msgs, Message{Role: "user", Content: c.CurrentMessage})
	return c.SystemPrompt, msgs
}

// CompletionResult is what a Provider returns for one call.
type CompletionResult struct {
	Text             string
	ProviderUsed     string
	Model            string
	ProcessingTimeMs int64
	SessionID        string
}

// Provider is the uniform contract every dispatch style implements.
type Provider interface {
	Complete(ctx context.Context, c *Context) (CompletionResult, error)
	// IsTransientError reports whether err is worth retrying (timeouts,
	// rate limits, 5xx) as opposed to a permanent rejection.
	IsTransientError(err error) bool
	// IsSessionNotFoundError reports whether err indicates the provider
	// lost track of SessionID, triggering the auto-resume fallback.
	IsSessionNotFoundError(err error) bool
}

// Factory builds a Provider from its raw TOML-decoded config section.
type Factory func(name string, cfg map[string]any) (Provider, error)

var factories = map[string]Factory{}

// Register adds a provider kind to the registry; called from each
// sub-package's init(), mirroring the teacher's channel/LLM loader
// registries.
func Register(kind string, f Factory) {
	factories[kind] = f
}

// New builds a Provider of the given kind by name from the registry.
func New(kind, name string, cfg map[string]any) (Provider, error) {
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("provider: unknown kind %q (forgot to import its package?)", kind)
	}
	return f(name, cfg)
}


