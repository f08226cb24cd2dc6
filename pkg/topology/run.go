package topology

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"

	"github.com/omegacortex/omega/pkg/provider"
	"github.com/omegacortex/omega/pkg/store"
)

// Notifier delivers a progress message while a run is in flight.
type Notifier interface {
	Send(ctx context.Context, channel, replyTarget, text string) error
}

// Status is the final outcome of a topology run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Runner executes one topology end to end.
type Runner struct {
	Store    *store.Store
	Provider provider.Provider
	Notifier Notifier
	DataDir  string

	Channel     string
	ReplyTarget string
}

// RunResult is what a completed (or aborted) run produces.
type RunResult struct {
	Status     Status
	ProjectDir string
	Summary    *BuildSummary
	Message    string
}

// Run loads topologyName and drives its phase loop starting from
// initialMessage (typically the user's original project request).
func (r *Runner) Run(ctx context.Context, topologyName, initialMessage string) (*RunResult, error) {
	t, err := Load(r.DataDir, topologyName)
	if err != nil {
		return nil, err
	}

	workspace := filepath.Join(r.DataDir, "workspace")
	guard, err := AcquireAgentFiles(workspace, t.Agents)
	if err != nil {
		return nil, err
	}
	defer guard.Release()

	runID := uuid.NewString()
	state := &ChainState{TopologyName: t.Name, RunID: runID}
	message := initialMessage
	var projectDir string
	var projectName string
	var summary *BuildSummary

	slog.Info("topology: run started", "run_id", runID, "topology", t.Name)

	for _, phase := range t.Phases {
		r.notifyPhaseStart(ctx, phase.Name)

		if projectDir != "" {
			if err := runPreValidation(phase.PreValidation, projectDir); err != nil {
				return r.abort(state, phase.Name, err.Error(), projectDir)
			}
		}

		agent, ok := t.Agents[phase.Agent]
		if !ok {
			return r.abort(state, phase.Name, fmt.Sprintf("agent %q not loaded", phase.Agent), projectDir)
		}

		switch phase.PhaseType {
		case PhaseParseBrief:
			result, err := RunBuildPhase(ctx, agent, message, string(phase.ModelTier), phase.MaxTurns, r.Provider)
			if err != nil {
				return r.abort(state, phase.Name, err.Error(), projectDir)
			}
			brief, err := parseBrief(result.Text)
			if err != nil {
				return r.abort(state, phase.Name, err.Error(), projectDir)
			}
			projectName = brief.ProjectName
			projectDir = filepath.Join(r.DataDir, "projects", projectName)
			if err := os.MkdirAll(projectDir, 0o755); err != nil {
				return r.abort(state, phase.Name, err.Error(), projectDir)
			}
			state.ProjectName, state.ProjectDir = projectName, projectDir
			message = briefToMessage(brief)

		case PhaseStandard:
			result, err := RunBuildPhase(ctx, agent, message, string(phase.ModelTier), phase.MaxTurns, r.Provider)
			if err != nil {
				return r.abort(state, phase.Name, err.Error(), projectDir)
			}
			message = result.Text

		case PhaseCorrectiveLoop:
			ok, lastErr := r.runCorrectiveLoop(ctx, t, phase, agent, message, projectDir)
			if !ok {
				reason := "exhausted retries"
				if lastErr != "" {
					reason = lastErr
				}
				r.notify(ctx, fmt.Sprintf("Phase %q exhausted its retries without passing verification.", phase.Name))
				return r.abort(state, phase.Name, reason, projectDir)
			}

		case PhaseParseSummary:
			result, err := RunBuildPhase(ctx, agent, message, string(phase.ModelTier), phase.MaxTurns, r.Provider)
			if err != nil {
				return r.abort(state, phase.Name, err.Error(), projectDir)
			}
			bs, err := parseBuildComplete(result.Text)
			if err != nil {
				return r.abort(state, phase.Name, err.Error(), projectDir)
			}
			summary = bs
		}

		if projectDir != "" {
			if err := runPostValidation(phase.PostValidation, projectDir); err != nil {
				return r.abort(state, phase.Name, err.Error(), projectDir)
			}
		}

		state.CompletedPhases = append(state.CompletedPhases, phase.Name)
	}

	status := StatusSuccess
	msg := "Build complete."
	if summary != nil {
		msg = fmt.Sprintf("Built %s (%s) at %s.\n\n%s\n\nUsage: %s",
			summary.Project, summary.Language, summary.Location, summary.Summary, summary.Usage)
	}

	return &RunResult{Status: status, ProjectDir: projectDir, Summary: summary, Message: msg}, nil
}

func (r *Runner) runCorrectiveLoop(ctx context.Context, t *Topology, phase Phase, agent *Agent, message, projectDir string) (bool, string) {
	maxAttempts := 1
	if phase.Retry != nil && phase.Retry.Max > 0 {
		maxAttempts = phase.Retry.Max
	}

	lastReason := ""
	for attempt := 0; attempt < maxAttempts; attempt++ {
		result, err := RunBuildPhase(ctx, agent, message, string(phase.ModelTier), phase.MaxTurns, r.Provider)
		if err != nil {
			lastReason = err.Error()
			continue
		}
		if isVerificationPass(result.Text) {
			return true, ""
		}
		lastReason = result.Text

		if phase.Retry == nil || phase.Retry.FixAgent == "" {
			continue
		}
		fixAgent, ok := t.Agents[phase.Retry.FixAgent]
		if !ok {
			lastReason = fmt.Sprintf("fix agent %q not loaded", phase.Retry.FixAgent)
			continue
		}
		if _, err := RunBuildPhase(ctx, fixAgent, result.Text, string(phase.ModelTier), phase.MaxTurns, r.Provider); err != nil {
			lastReason = err.Error()
		}
	}
	return false, lastReason
}

func (r *Runner) abort(state *ChainState, phase, reason, projectDir string) (*RunResult, error) {
	state.FailedPhase = phase
	state.FailureReason = reason
	if projectDir != "" {
		if err := state.Write(); err != nil {
			slog.Error("topology: failed to write chain-state snapshot", "error", err)
		}
	}
	return &RunResult{Status: StatusFailed, ProjectDir: projectDir, Message: reason}, nil
}

func (r *Runner) notifyPhaseStart(ctx context.Context, name string) {
	r.notify(ctx, fmt.Sprintf("Starting phase: %s", name))
}

func (r *Runner) notify(ctx context.Context, text string) {
	if r.Notifier == nil {
		return
	}
	if err := r.Notifier.Send(ctx, r.Channel, r.ReplyTarget, text); err != nil {
		slog.Error("topology: failed to send progress notification", "error", err)
	}
}

var briefTemplate = template.Must(template.New("brief").Parse(
	"Project: {{.ProjectName}}\nLanguage: {{.Language}}\nDatabase: {{.Database}}\nFrontend: {{.Frontend}}\n\n{{.Scope}}\n\nComponents:\n{{range .Components}}- {{.}}\n{{end}}"))

func briefToMessage(b *Brief) string {
	var out strings.Builder
	_ = briefTemplate.Execute(&out, b)
	return out.String()
}

// RunBuildPhase invokes agent with message, retrying up to three times
// with a short delay between attempts. Each attempt gets a fresh
// Context with AgentName set and no session id: the agent file supplies
// the persona, and sessions are intentionally excluded to keep phases
// from bleeding context into each other.
func RunBuildPhase(ctx context.Context, agent *Agent, message, model string, maxTurns int, p provider.Provider) (provider.CompletionResult, error) {
	const maxAttempts = 3
	const delay = 2 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return provider.CompletionResult{}, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err := p.Complete(ctx, &provider.Context{
			CurrentMessage: message,
			Overrides: provider.Overrides{
				AgentName: agent.Name,
				Model:     model,
				MaxTurns:  maxTurns,
			},
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !p.IsTransientError(err) {
			break
		}
	}
	return provider.CompletionResult{}, lastErr
}
