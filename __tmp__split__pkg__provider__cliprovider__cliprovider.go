// Package cliprovider dispatches completions to a subprocess-CLI backend
// (e.g. a locally installed agent CLI) under sandbox confinement (§4.5).
package cliprovider

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/omegacortex/omega/pkg/omegaerr"
	"github.com/omegacortex/omega/pkg/provider"
	"github.com/omegacortex/omega/pkg/sandbox"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func init() {
	provider.Register("cli", func(name string, cfg map[string]any) (provider.Provider, error) {
		return newFromConfig(name, cfg)
	})
}

// Config is the subprocess-CLI provider's static configuration.
type Config struct {
	Program string
	DataDir string
	Timeout time.Duration
}

func newFromConfig(name string, cfg map[string]any) (provider.Provider, error) {
	program, _ := cfg["program"].(string)
	if program == "" {
		return nil, omegaerr.Config("cliprovider requires a non-empty \"program\"", nil)
	}
	dataDir, _ := cfg["data_dir"].(string)
	timeout := 120 * time.Second
	if secs, ok := cfg["timeout_secs"].(int64); ok && secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	return New(Config{Program: program, DataDir: dataDir, Timeout: timeout}), nil
}

// Provider dispatches completions via a subprocess CLI.
type Provider struct {
	cfg Config
}

func New(cfg Config) *Provider { return &Provider{cfg: cfg} }

type cliOutput struct {
	Result    string `json:"result"`
	SessionID string `json:"session_id"`
	Model     string `json:"model"`
}

func (p *Provider) Complete(ctx context.Context, c *provider.Context) (provider.CompletionResult, error) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	args := buildArgs(c)
	cmd, err := sandbox.ProtectedCommand(p.cfg.Program, p.cfg.DataDir, args...)
	if err != nil {
		return provider.CompletionResult{}, omegaerr.Providerf(err, "build sandboxed command")
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := runWithContext(ctx, cmd); err != nil {
		return provider.CompletionResult{}, omegaerr.Providerf(err, "cli provider failed: %s", stderr.String())
	}

	var out cliOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return provider.CompletionResult{}, omegaerr.Providerf(err, "parse cli provider output")
	}

	return provider.CompletionResult{
		Text:             out.Result,
		ProviderUsed:     "cli",
		Model:            out.Model,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		SessionID:        out.SessionID,
	}, nil
}

// buildArgs constructs the argument vector: [--agent name]?, -p <prompt>,
// --output-format json, --max-turns N, [--model M]?, [--resume SID]?, and
// the tool-permission flags described in §4.5.
func buildArgs(c *provider.Context) []string {
	var args []string
	if c.Overrides.AgentName != "" {
		args = append(args, "--agent", c.Overrides.AgentName)
	}
	args = append(args, "-p", c.ToPromptString(), "--output-format", "json")

	maxTurns := c.Overrides.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 1
	}
	args = append(args, "--max-turns", fmt.Sprintf("%d", maxTurns))

	if c.Overrides.Model != "" {
		args = append(args, "--model", c.Overrides.Model)
	}
	if c.Overrides.SessionID != "" {
		args = append(args, "--resume", c.Overrides.SessionID)
	}

	args = append(args, toolPermissionFlags(c)...)
	return args
}

// toolPermissionFlags implements the policy table in §4.5: agent mode
// bypasses entirely; an explicit disable forces an empty allow-list;
// an empty allow-list with MCP servers present bypasses plus adds MCP
// patterns; a non-empty allow-list whitelists plus adds MCP patterns.
func toolPermissionFlags(c *provider.Context) []string {
	if c.Overrides.AgentName != "" {
		return []string{"--dangerously-skip-permissions"}
	}
	if c.Overrides.ToolsDisable {
		return []string{"--allowedTools", ""}
	}
	mcpPatterns := mcpToolPatterns(c.MCPServers)
	if len(c.Overrides.AllowedTools) == 0 {
		if len(mcpPatterns) == 0 {
			return []string{"--dangerously-skip-permissions"}
		}
		return []string{"--dangerously-skip-permissions", "--allowedTools", strings.Join(mcpPatterns, ",")}
	}
	allowed := append(append([]string{}, c.Overrides.AllowedTools...), mcpPatterns...)
	return []string{"--allowedTools", strings.Join(allowed, ",")}
}

func mcpToolPatterns(servers []string) []string {
	out := make([]string, 0, len(servers))
	for _, s := range servers {
		out = append(out, fmt.Sprintf("mcp__%s__*", s))
	}
	return out
}

// runWithContext starts cmd and kills it if ctx is canceled before it
// exits, since sandbox.ProtectedCommand builds a plain *exec.Cmd rather
// than one tied to a context (the Seatbelt backend shells through
// sandbox-exec, which exec.CommandContext cannot wrap transparently).
func runWithContext(ctx context.Context, cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return ctx.Err()
	}
}

func (p *Provider) IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "rate limit") || strings.Contains(msg, "503")
}

func (p *Provider) IsSessionNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "session not found") ||
		strings.Contains(strings.ToLower(err.Error()), "no conversation found")
}


