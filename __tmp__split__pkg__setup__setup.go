// Package setup drives the questioning → confirmation → execution state
// machine behind the `/setup` command (§4.11): a few rounds of
// clarifying questions converge on a proposal, the user confirms or
// cancels it, and confirmation triggers the setup agent's own
// PROJECT_ACTIVATE:/SCHEDULE_ACTION: markers.
package setup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/omegacortex/omega/pkg/marker"
	"github.com/omegacortex/omega/pkg/provider"
	"github.com/omegacortex/omega/pkg/store"
)

const ttl = 30 * time.Minute

var unsafeSenderChars = regexp.MustCompile(`[^A-Za-z0-9_-]`)

var confirmWords = map[string]bool{
	"yes": true, "ok": true, "okay": true, "go": true, "confirm": true,
	"sí": true, "si": true, "oui": true, "sim": true, "ja": true,
}

var cancelWords = map[string]bool{
	"no": true, "cancel": true, "stop": true,
	"annuler": true, "non": true, "cancelar": true, "nein": true,
}

// Machine drives the setup flow for one gateway.
type Machine struct {
	Store    *store.Store
	Provider provider.Provider
	DataDir  string
	Channel  string
}

// Outcome is what a Start/Continue call produces for the gateway to
// deliver back to the user.
type Outcome struct {
	Reply     string
	Completed bool
}

func safeSenderID(senderID string) string {
	return unsafeSenderChars.ReplaceAllString(senderID, "_")
}

func (m *Machine) contextPath(senderID string) string {
	return filepath.Join(m.DataDir, "setup", safeSenderID(senderID)+".md")
}

func (m *Machine) writeContext(senderID, text string) error {
	if err := os.MkdirAll(filepath.Dir(m.contextPath(senderID)), 0o755); err != nil {
		return err
	}
	return os.WriteFile(m.contextPath(senderID), []byte(text), 0o644)
}

func (m *Machine) readContext(senderID string) (string, error) {
	data, err := os.ReadFile(m.contextPath(senderID))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m *Machine) cleanup(ctx context.Context, senderID string) {
	_ = m.Store.DeleteFact(ctx, senderID, store.FactPendingSetup)
	_ = os.Remove(m.contextPath(senderID))
}

type pendingState struct {
	Timestamp time.Time
	SenderID  string
	Round     string // "1", "2", or "proposal"
}

func parsePending(raw string) (*pendingState, error) {
	parts := strings.SplitN(raw, "|", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("setup: malformed pending_setup fact %q", raw)
	}
	ts, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("setup: malformed pending_setup timestamp %q", parts[0])
	}
	return &pendingState{Timestamp: time.Unix(ts, 0), SenderID: parts[1], Round: parts[2]}, nil
}

func (p *pendingState) String() string {
	return fmt.Sprintf("%d|%s|%s", p.Timestamp.Unix(), p.SenderID, p.Round)
}

func (p *pendingState) expired() bool {
	return time.Since(p.Timestamp) > ttl
}

// Start handles `/setup <description>`.
func (m *Machine) Start(ctx context.Context, senderID, description string) (Outcome, error) {
	if existing, ok, err := m.Store.GetFact(ctx, senderID, store.FactPendingSetup); err == nil && ok {
		if pending, perr := parsePending(existing); perr == nil && !pending.expired() {
			return Outcome{Reply: "You already have a setup in progress. Answer the last question, or say \"cancel\" to start over."}, nil
		}
	}

	projectContext := m.existingProjectsContext()
	prompt := promptRound1(description, projectContext)

	result, err := m.invoke(ctx, prompt)
	if err != nil {
		return Outcome{}, err
	}

	return m.handleAgentOutput(ctx, senderID, "1", description, result.Text)
}

// Continue handles a follow-up message while a setup is pending.
func (m *Machine) Continue(ctx context.Context, senderID, text string) (Outcome, error) {
	raw, ok, err := m.Store.GetFact(ctx, senderID, store.FactPendingSetup)
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Reply: "There's no setup in progress. Start one with /setup <description>."}, nil
	}

	pending, err := parsePending(raw)
	if err != nil || pending.expired() {
		m.cleanup(ctx, senderID)
		return Outcome{Reply: "Your setup session expired. Start over with /setup <description>.", Completed: true}, nil
	}

	existing, err := m.readContext(senderID)
	if err != nil {
		m.cleanup(ctx, senderID)
		return Outcome{Reply: "Lost track of your setup session. Start over with /setup <description>.", Completed: true}, nil
	}

	if strings.Contains(existing, "SETUP_PROPOSAL") {
		return m.continueConfirmation(ctx, senderID, pending, existing, text)
	}
	return m.continueQuestioning(ctx, senderID, pending, existing, text)
}

func (m *Machine) continueConfirmation(ctx context.Context, senderID string, pending *pendingState, context_, text string) (Outcome, error) {
	normalized := strings.ToLower(strings.TrimSpace(text))

	if confirmWords[normalized] {
		return m.execute(ctx, senderID)
	}
	if cancelWords[normalized] {
		m.cleanup(ctx, senderID)
		return Outcome{Reply: "Setup canceled.", Completed: true}, nil
	}

	updated := context_ + "\n\n[User requested change] " + text
	result, err := m.invoke(ctx, updated+"\n\nThe user wants to modify the proposal above. Produce an updated SETUP_PROPOSAL.")
	if err != nil {
		return Outcome{}, err
	}
	return m.handleAgentOutput(ctx, senderID, pending.Round, updated, result.Text)
}

func (m *Machine) continueQuestioning(ctx context.Context, senderID string, pending *pendingState, context_, text string) (Outcome, error) {
	currentRound, _ := strconv.Atoi(pending.Round)
	nextRound := currentRound + 1

	instruction := "Continue gathering what you need; produce SETUP_QUESTIONS or SETUP_PROPOSAL."
	if nextRound >= 3 {
		instruction = "FINAL ROUND — you must produce SETUP_PROPOSAL now."
	}

	updated := context_ + "\n\n[User] " + text
	result, err := m.invoke(ctx, updated+"\n\n"+instruction)
	if err != nil {
		return Outcome{}, err
	}
	return m.handleAgentOutput(ctx, senderID, strconv.Itoa(nextRound), updated, result.Text)
}

func (m *Machine) handleAgentOutput(ctx context.Context, senderID, round, priorContext, output string) (Outcome, error) {
	switch {
	case strings.Contains(output, "SETUP_PROPOSAL"):
		full := priorContext + "\n\n" + output
		if err := m.writeContext(senderID, full); err != nil {
			return Outcome{}, err
		}
		if err := m.storePending(ctx, senderID, "proposal"); err != nil {
			return Outcome{}, err
		}
		return Outcome{Reply: previewBeforeExecuteMarker(output)}, nil

	case strings.Contains(output, "SETUP_QUESTIONS"):
		full := priorContext + "\n\n" + output
		if err := m.writeContext(senderID, full); err != nil {
			return Outcome{}, err
		}
		if err := m.storePending(ctx, senderID, round); err != nil {
			return Outcome{}, err
		}
		return Outcome{Reply: output}, nil

	default:
		return Outcome{Reply: output}, nil
	}
}

func (m *Machine) storePending(ctx context.Context, senderID, round string) error {
	p := &pendingState{Timestamp: time.Now(), SenderID: senderID, Round: round}
	return m.Store.UpsertFact(ctx, senderID, store.FactPendingSetup, p.String())
}

func (m *Machine) execute(ctx context.Context, senderID string) (Outcome, error) {
	context_, err := m.readContext(senderID)
	if err != nil {
		m.cleanup(ctx, senderID)
		return Outcome{Reply: "Lost track of your setup session.", Completed: true}, nil
	}

	result, err := m.invoke(ctx, context_+"\n\nEXECUTE_SETUP")
	if err != nil {
		return Outcome{}, err
	}

	processed, err := marker.Process(ctx, result.Text, marker.Deps{Store: m.Store, Channel: m.Channel, SenderID: senderID})
	if err != nil {
		return Outcome{}, err
	}

	projectName := ""
	for _, r := range processed.Results {
		if fu, ok := r.(marker.FactUpdated); ok && fu.Key == store.FactActiveProject {
			projectName = fu.Value
		}
	}

	if result.SessionID != "" {
		_ = m.Store.SetProjectSession(ctx, m.Channel, senderID, projectName, result.SessionID)
	}

	m.cleanup(ctx, senderID)

	reply := processed.Text
	if projectName != "" {
		reply = fmt.Sprintf("Project %q is set up and active.\n\n%s", projectName, reply)
	}
	return Outcome{Reply: reply, Completed: true}, nil
}

func (m *Machine) invoke(ctx context.Context, message string) (provider.CompletionResult, error) {
	return m.Provider.Complete(ctx, &provider.Context{
		CurrentMessage: message,
		Overrides:      provider.Overrides{AgentName: "setup"},
	})
}

func (m *Machine) existingProjectsContext() string {
	entries, err := os.ReadDir(filepath.Join(m.DataDir, "projects"))
	if err != nil {
		return "No existing projects."
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "No existing projects."
	}
	return "Existing projects: " + strings.Join(names, ", ")
}

func promptRound1(description, projectContext string) string {
	return fmt.Sprintf(
		"A user wants to set up a new project.\n\nRequest: %s\n\n%s\n\n"+
			"Ask the clarifying questions you need, or if you already have enough information, "+
			"produce a SETUP_PROPOSAL.", description, projectContext)
}

// previewBeforeExecuteMarker returns everything in a SETUP_PROPOSAL
// response before the SETUP_EXECUTE marker, which is the confirmation
// preview shown to the user — the marker itself stays internal to the
// stored context.
func previewBeforeExecuteMarker(output string) string {
	if idx := strings.Index(output, "SETUP_EXECUTE"); idx != -1 {
		return strings.TrimSpace(output[:idx])
	}
	return output
}


