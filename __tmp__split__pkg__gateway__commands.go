package gateway

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/omegacortex/omega/pkg/store"
)

// dispatchCommand handles every "/"-prefixed command without invoking
// the LLM, returning the plain text reply to deliver.
func (g *Gateway) dispatchCommand(ctx context.Context, in Incoming, text string) (string, error) {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	rest := strings.TrimSpace(strings.TrimPrefix(text, fields[0]))

	switch cmd {
	case "/status":
		return g.cmdStatus(ctx, in)
	case "/memory":
		return g.cmdMemory(ctx, in)
	case "/facts":
		return g.cmdFacts(ctx, in)
	case "/forget":
		return g.cmdForget(ctx, in)
	case "/history":
		return g.cmdHistory(ctx, in)
	case "/help":
		return g.cmdHelp(), nil
	case "/projects":
		return g.cmdProjects()
	case "/project":
		return g.cmdProject(ctx, in, rest)
	case "/setup":
		return g.cmdSetup(ctx, in, rest)
	case "/tasks":
		return g.cmdTasks(ctx, in)
	case "/whatsapp":
		return g.cmdWhatsApp(), nil
	default:
		return "Unrecognized command. Try /help.", nil
	}
}

func (g *Gateway) cmdStatus(ctx context.Context, in Incoming) (string, error) {
	audits, err := g.Store.RecentAudit(ctx, in.SenderID, 1)
	if err != nil {
		return "", err
	}
	if len(audits) == 0 {
		return "No activity recorded yet.", nil
	}
	a := audits[0]
	return fmt.Sprintf("Last interaction: %s via %s (%s, %dms)", a.Timestamp.Format("2006-01-02 15:04"), a.ProviderUsed, a.Status, a.ProcessingMs), nil
}

func (g *Gateway) cmdMemory(ctx context.Context, in Incoming) (string, error) {
	facts, err := g.Store.AllFacts(ctx, in.SenderID)
	if err != nil {
		return "", err
	}
	lessons, err := g.Store.AllLessonsForSender(ctx, in.SenderID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("I have %d facts and %d lessons stored about you.", len(facts), len(lessons)), nil
}

func (g *Gateway) cmdFacts(ctx context.Context, in Incoming) (string, error) {
	facts, err := g.Store.AllFacts(ctx, in.SenderID)
	if err != nil {
		return "", err
	}
	var visible []string
	for _, f := range facts {
		if store.IsReservedFactKey(f.Key) {
			continue
		}
		visible = append(visible, fmt.Sprintf("- %s: %s", f.Key, f.Value))
	}
	if len(visible) == 0 {
		return "I don't have any facts stored about you yet.", nil
	}
	return "Here's what I know:\n" + strings.Join(visible, "\n"), nil
}

func (g *Gateway) cmdForget(ctx context.Context, in Incoming) (string, error) {
	conv, err := g.Store.GetOrCreateConversation(ctx, in.Channel, in.SenderID, in.Project)
	if err != nil {
		return "", err
	}
	if g.Summarizer == nil {
		if err := g.Store.CloseConversation(ctx, conv.ID, ""); err != nil {
			return "", err
		}
		return "Starting fresh.", nil
	}
	if err := g.Summarizer.Forget(ctx, conv.ID, in.Channel, in.SenderID, in.Project); err != nil {
		return "", err
	}
	return "Starting fresh. I'll hold on to anything durable from our conversation in the background.", nil
}

func (g *Gateway) cmdHistory(ctx context.Context, in Incoming) (string, error) {
	audits, err := g.Store.RecentAudit(ctx, in.SenderID, 10)
	if err != nil {
		return "", err
	}
	if len(audits) == 0 {
		return "No history yet.", nil
	}
	var lines []string
	for _, a := range audits {
		lines = append(lines, fmt.Sprintf("- %s: %s", a.Timestamp.Format("2006-01-02 15:04"), truncate(a.InputText, 60)))
	}
	return strings.Join(lines, "\n"), nil
}

func (g *Gateway) cmdHelp() string {
	return strings.Join([]string{
		"Available commands:",
		"/status - last interaction summary",
		"/memory - how much I remember about you",
		"/facts - list stored facts",
		"/forget - close this conversation and start fresh",
		"/history - your last 10 interactions",
		"/projects - list your projects",
		"/project <name> - switch active project",
		"/project off - clear active project",
		"/setup <description> - start a new project setup",
		"/tasks - list pending reminders and actions",
		"/whatsapp - pairing instructions",
	}, "\n")
}

func (g *Gateway) cmdProjects() (string, error) {
	entries, err := os.ReadDir(filepath.Join(g.DataDir, "projects"))
	if os.IsNotExist(err) {
		return "No projects yet.", nil
	}
	if err != nil {
		return "", err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "No projects yet.", nil
	}
	return "Projects: " + strings.Join(names, ", "), nil
}

func (g *Gateway) cmdProject(ctx context.Context, in Incoming, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		active, ok, err := g.Store.GetFact(ctx, in.SenderID, store.FactActiveProject)
		if err != nil {
			return "", err
		}
		if !ok || active == "" {
			return "No active project.", nil
		}
		return "Active project: " + active, nil
	}
	if strings.EqualFold(name, "off") {
		if err := g.Store.DeleteFact(ctx, in.SenderID, store.FactActiveProject); err != nil {
			return "", err
		}
		return "Active project cleared.", nil
	}
	if _, err := os.Stat(filepath.Join(g.DataDir, "projects", name)); os.IsNotExist(err) {
		return fmt.Sprintf("No project named %q.", name), nil
	}
	if err := g.Store.UpsertFact(ctx, in.SenderID, store.FactActiveProject, name); err != nil {
		return "", err
	}
	return "Switched to project " + name + ".", nil
}

func (g *Gateway) cmdSetup(ctx context.Context, in Incoming, description string) (string, error) {
	if g.Setup == nil {
		return "Setup isn't available right now.", nil
	}
	if strings.TrimSpace(description) == "" {
		return "Usage: /setup <description of what you want to build>", nil
	}
	outcome, err := g.Setup.Start(ctx, in.SenderID, description)
	if err != nil {
		return "", err
	}
	return outcome.Reply, nil
}

func (g *Gateway) cmdTasks(ctx context.Context, in Incoming) (string, error) {
	tasks, err := g.Store.PendingTasksFor(ctx, in.SenderID)
	if err != nil {
		return "", err
	}
	if len(tasks) == 0 {
		return "No pending tasks.", nil
	}
	var lines []string
	for _, t := range tasks {
		lines = append(lines, fmt.Sprintf("- [%s] %s (due %s, %s)", t.ID[:8], t.Description, t.DueAt.Format("2006-01-02 15:04"), t.Repeat))
	}
	return strings.Join(lines, "\n"), nil
}

func (g *Gateway) cmdWhatsApp() string {
	return "To pair WhatsApp, run `omega pair` from the machine hosting this assistant, or use the dashboard's /api/pair endpoint."
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// interceptPendingBuildConfirm handles a live pending_build_confirm fact:
// a bare yes/no routes to dispatch/cancel without reaching the provider.
func (g *Gateway) interceptPendingBuildConfirm(ctx context.Context, in Incoming, text string) (string, bool, error) {
	pending, ok, err := g.Store.GetFact(ctx, in.SenderID, store.FactPendingBuildConfirm)
	if err != nil || !ok {
		return "", false, err
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	switch {
	case confirmWords[normalized]:
		if err := g.Store.DeleteFact(ctx, in.SenderID, store.FactPendingBuildConfirm); err != nil {
			return "", true, err
		}
		if g.Topology == nil {
			return "Confirmed, but no build runner is configured.", true, nil
		}
		result, err := g.Topology.Run(ctx, "default", pending)
		if err != nil {
			return "", true, err
		}
		return result.Message, true, nil
	case cancelWords[normalized]:
		if err := g.Store.DeleteFact(ctx, in.SenderID, store.FactPendingBuildConfirm); err != nil {
			return "", true, err
		}
		return "Build canceled.", true, nil
	default:
		return "", false, nil
	}
}

var confirmWords = map[string]bool{
	"yes": true, "ok": true, "okay": true, "go": true, "confirm": true,
	"sí": true, "si": true, "oui": true, "sim": true, "ja": true,
}

var cancelWords = map[string]bool{
	"no": true, "cancel": true, "stop": true,
	"annuler": true, "non": true, "cancelar": true, "nein": true,
}


