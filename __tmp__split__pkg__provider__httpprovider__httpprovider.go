// Package httpprovider dispatches completions to an OpenAI-compatible HTTP
// endpoint via the official openai-go/v3 SDK (§4.5).
package httpprovider

import (
	"context"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/omegacortex/omega/pkg/omegaerr"
	"github.com/omegacortex/omega/pkg/provider"
)

func init() {
	provider.Register("http", func(name string, cfg map[string]any) (provider.Provider, error) {
		return newFromConfig(name, cfg)
	})
}

// Config is the HTTP-API provider's static configuration.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	MaxRetries int
	Timeout    time.Duration
}

func newFromConfig(name string, cfg map[string]any) (provider.Provider, error) {
	apiKey, _ := cfg["api_key"].(string)
	if apiKey == "" {
		return nil, omegaerr.Config("httpprovider requires a non-empty \"api_key\"", nil)
	}
	baseURL, _ := cfg["base_url"].(string)
	model, _ := cfg["model"].(string)
	if model == "" {
		model = "gpt-4o-mini"
	}
	return New(Config{APIKey: apiKey, BaseURL: baseURL, Model: model, MaxRetries: 3, Timeout: 60 * time.Second}), nil
}

// Provider dispatches completions via an OpenAI-compatible HTTP API.
type Provider struct {
	cfg    Config
	client openai.Client
}

func New(cfg Config) *Provider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.MaxRetries > 0 {
		opts = append(opts, option.WithMaxRetries(cfg.MaxRetries))
	}
	return &Provider{cfg: cfg, client: openai.NewClient(opts...)}
}

func (p *Provider) Complete(ctx context.Context, c *provider.Context) (provider.CompletionResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	systemPrompt, messages := c.ToAPIMessages()

	model := p.cfg.Model
	if c.Overrides.Model != "" {
		model = c.Overrides.Model
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: toChatMessages(systemPrompt, messages),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return provider.CompletionResult{}, omegaerr.Providerf(err, "http provider request failed")
	}
	if len(resp.Choices) == 0 {
		return provider.CompletionResult{}, omegaerr.Provider("http provider returned no choices", nil)
	}

	return provider.CompletionResult{
		Text:             resp.Choices[0].Message.Content,
		ProviderUsed:     "http",
		Model:            string(resp.Model),
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}, nil
}

func toChatMessages(systemPrompt string, messages []provider.Message) []openai.ChatCompletionMessageParamUnion {
	items := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages)+1)
	if systemPrompt != "" {
		items = append(items, openai.ChatCompletionMessageParamUnion{
			OfSystem: &openai.ChatCompletionSystemMessageParam{
				Role:    "system",
				Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(systemPrompt)},
			},
		})
	}
	for _, m := range messages {
		switch m.Role {
		case "assistant":
			items = append(items, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:    "assistant",
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)},
				},
			})
		default:
			items = append(items, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Role:    "user",
					Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(m.Content)},
				},
			})
		}
	}
	return items
}

func (p *Provider) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "deadline exceeded") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "503")
}

func (p *Provider) IsSessionNotFoundError(err error) bool {
	return false // the HTTP dispatch style is stateless; auto-resume never triggers here
}


