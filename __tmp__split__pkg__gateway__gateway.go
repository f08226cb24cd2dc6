// Package gateway is the inbound message pipeline (§4.12), generalizing
// the teacher's ChatHandler/AgentEngine recursive loop into a single
// auth → sanitize → command-dispatch → context-build → provider-call →
// marker-process → persist → audit sequence shared by every channel.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/omegacortex/omega/pkg/marker"
	"github.com/omegacortex/omega/pkg/provider"
	"github.com/omegacortex/omega/pkg/sanitizer"
	"github.com/omegacortex/omega/pkg/setup"
	"github.com/omegacortex/omega/pkg/store"
	"github.com/omegacortex/omega/pkg/summarizer"
	"github.com/omegacortex/omega/pkg/topology"
)

// Sender delivers a plain text message to a channel + reply target.
type Sender interface {
	Send(ctx context.Context, channel, replyTarget, text string) error
}

// Typing starts a best-effort repeating typing indicator and returns a
// function that stops it.
type Typing interface {
	StartTyping(ctx context.Context, channel, replyTarget string) (stop func())
}

// Authorizer decides whether a sender on a channel is allowed through.
type Authorizer interface {
	Allowed(channel, senderID string) bool
}

// Incoming is one inbound message handed to the gateway by a channel
// adapter.
type Incoming struct {
	Channel     string
	SenderID    string
	SenderName  string
	ReplyTarget string
	Project     string
	Text        string
}

// Gateway wires the persistence store, provider, and auxiliary
// subsystems (setup, sanitizer, marker protocol) into one pipeline.
type Gateway struct {
	Store      *store.Store
	Provider   provider.Provider
	Sender     Sender
	Typing     Typing
	Auth       Authorizer
	Setup      *setup.Machine
	Summarizer *summarizer.Summarizer
	Topology   *topology.Runner

	DataDir            string
	DenyMessage        string
	MaxContextMessages int
	MaxTurns           int
	SystemIdentity     string
}

// Handle runs the full pipeline for one inbound message, sending its
// response (or denial) itself.
func (g *Gateway) Handle(ctx context.Context, in Incoming) error {
	if g.Auth != nil && !g.Auth.Allowed(in.Channel, in.SenderID) {
		g.audit(ctx, in, "", store.AuditDenied, "", "", "not on allow-list", 0)
		return g.reply(ctx, in, g.denyMessage())
	}

	result := sanitizer.Sanitize(in.Text)
	if len(result.Warnings) > 0 {
		slog.Warn("gateway: sanitizer flagged inbound message", "channel", in.Channel, "sender", in.SenderID, "warnings", result.Warnings)
	}
	text := result.Text

	if strings.HasPrefix(strings.TrimSpace(text), "/") {
		reply, err := g.dispatchCommand(ctx, in, strings.TrimSpace(text))
		if err != nil {
			g.audit(ctx, in, text, store.AuditError, "", "", "", 0)
			return g.reply(ctx, in, "Something went wrong handling that command.")
		}
		g.audit(ctx, in, text, store.AuditOK, "", "", "", 0)
		return g.reply(ctx, in, reply)
	}

	if live, err := g.hasPendingSetup(ctx, in.SenderID); err == nil && live {
		outcome, err := g.Setup.Continue(ctx, in.SenderID, text)
		if err != nil {
			g.audit(ctx, in, text, store.AuditError, "", "", "", 0)
			return g.reply(ctx, in, "Setup hit an error; try again.")
		}
		g.audit(ctx, in, text, store.AuditOK, "", "", "", 0)
		return g.reply(ctx, in, outcome.Reply)
	}

	if reply, handled, err := g.interceptPendingBuildConfirm(ctx, in, text); handled {
		if err != nil {
			g.audit(ctx, in, text, store.AuditError, "", "", "", 0)
			return g.reply(ctx, in, "Something went wrong confirming that build.")
		}
		g.audit(ctx, in, text, store.AuditOK, "", "", "", 0)
		return g.reply(ctx, in, reply)
	}

	var stopTyping func()
	if g.Typing != nil {
		stopTyping = g.Typing.StartTyping(ctx, in.Channel, in.ReplyTarget)
	}

	start := time.Now()
	needs := classifyNeeds(text)

	built, err := g.Store.BuildContext(ctx, store.IncomingMessage{
		Channel: in.Channel, SenderID: in.SenderID, Project: in.Project, Text: text,
	}, needs, g.maxContextMessages())
	if err != nil {
		if stopTyping != nil {
			stopTyping()
		}
		g.audit(ctx, in, text, store.AuditError, "", "", "", 0)
		return g.reply(ctx, in, "I couldn't load your context just now.")
	}
	built.CurrentMessage = text
	built.Overrides.MaxTurns = g.maxTurns()

	result2, err := g.Provider.Complete(ctx, built)
	if stopTyping != nil {
		stopTyping()
	}
	if err != nil {
		g.audit(ctx, in, text, store.AuditError, "", "", "", time.Since(start).Milliseconds())
		return g.reply(ctx, in, "I hit an error reaching the model. Try again shortly.")
	}

	if result2.SessionID != "" {
		_ = g.Store.SetProjectSession(ctx, in.Channel, in.SenderID, in.Project, result2.SessionID)
	}

	processed, err := marker.Process(ctx, result2.Text, marker.Deps{
		Store: g.Store, Channel: in.Channel, SenderID: in.SenderID, Project: in.Project,
	})
	if err != nil {
		slog.Error("gateway: marker processing failed", "error", err)
		processed.Text = result2.Text
	}

	conv, err := g.Store.GetOrCreateConversation(ctx, in.Channel, in.SenderID, in.Project)
	if err == nil {
		_, _ = g.Store.AddMessage(ctx, conv.ID, store.RoleUser, text, "")
		_, _ = g.Store.AddMessage(ctx, conv.ID, store.RoleAssistant, processed.Text, "")
	}

	reply := processed.Text
	if hint := g.onboardingHint(ctx, in.SenderID); hint != "" {
		reply = reply + "\n\n" + hint
	}

	g.audit(ctx, in, text, store.AuditOK, result2.ProviderUsed, result2.Model, "", time.Since(start).Milliseconds())
	return g.reply(ctx, in, reply)
}

func (g *Gateway) reply(ctx context.Context, in Incoming, text string) error {
	if text == "" || g.Sender == nil {
		return nil
	}
	return g.Sender.Send(ctx, in.Channel, in.ReplyTarget, text)
}

func (g *Gateway) denyMessage() string {
	if g.DenyMessage != "" {
		return g.DenyMessage
	}
	return "You're not authorized to use this assistant."
}

func (g *Gateway) maxContextMessages() int {
	if g.MaxContextMessages > 0 {
		return g.MaxContextMessages
	}
	return 20
}

func (g *Gateway) maxTurns() int {
	if g.MaxTurns > 0 {
		return g.MaxTurns
	}
	return 30
}

func (g *Gateway) hasPendingSetup(ctx context.Context, senderID string) (bool, error) {
	if g.Setup == nil {
		return false, nil
	}
	_, ok, err := g.Store.GetFact(ctx, senderID, store.FactPendingSetup)
	return ok, err
}

func (g *Gateway) audit(ctx context.Context, in Incoming, input string, status store.AuditStatus, providerUsed, model, denialReason string, processingMs int64) {
	err := g.Store.WriteAudit(ctx, &store.AuditLog{
		Channel: in.Channel, SenderID: in.SenderID, SenderName: in.SenderName,
		InputText: input, ProviderUsed: providerUsed, Model: model,
		ProcessingMs: processingMs, Status: status, DenialReason: denialReason,
	})
	if err != nil {
		slog.Error("gateway: failed to write audit row", "error", err)
	}
}

// onboardingHint computes the onboarding stage from the sender's fact
// count and whether they have any pending tasks, returning a tactful
// nudge for stages 1-4 and nothing at stage 0.
func (g *Gateway) onboardingHint(ctx context.Context, senderID string) string {
	n, err := g.Store.CountUserFacts(ctx, senderID)
	if err != nil {
		return ""
	}
	tasks, err := g.Store.PendingTasksFor(ctx, senderID)
	hasTasks := err == nil && len(tasks) > 0

	stage := onboardingStage(n, hasTasks)
	_ = g.Store.UpsertFact(ctx, senderID, store.FactOnboardingStage, fmt.Sprintf("%d", stage))

	switch stage {
	case 1:
		return "(Tip: tell me more about yourself and I'll remember it.)"
	case 2:
		return "(Tip: I can set reminders and scheduled actions — try asking me to remind you of something.)"
	case 3:
		return "(Tip: keep sharing context — the more I know, the more useful I can be.)"
	case 4:
		return "(You're almost fully set up. A few more facts and I'll stop nudging you.)"
	default:
		return ""
	}
}

// onboardingStage maps (fact count, has tasks) to the 0-4 onboarding
// ladder. Each of the four gates (>=1 fact, >=3 facts, has_tasks, >=5
// facts) independently advances the stage by one; stage 4 means every
// gate has been cleared, and onboardingHint still returns a hint for it.
func onboardingStage(factCount int, hasTasks bool) int {
	stage := 0
	if factCount >= 1 {
		stage++
	}
	if factCount >= 3 {
		stage++
	}
	if hasTasks {
		stage++
	}
	if factCount >= 5 {
		stage++
	}
	return stage
}


