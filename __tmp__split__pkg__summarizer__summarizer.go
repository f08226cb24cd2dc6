// Package summarizer closes idle conversations into a short summary plus
// extracted facts (§4.9), sharing one worker between a periodic sweep and
// the explicit shutdown/"/forget" paths.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/omegacortex/omega/pkg/provider"
	"github.com/omegacortex/omega/pkg/store"
)

const sweepInterval = 60 * time.Second

// Summarizer closes idle conversations and extracts durable facts from
// their transcripts.
type Summarizer struct {
	Store    *store.Store
	Provider provider.Provider
}

// Run blocks until ctx is canceled, sweeping idle conversations every
// sweepInterval.
func (s *Summarizer) Run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdle(ctx)
		}
	}
}

// SweepIdle summarizes every conversation that has gone idle.
func (s *Summarizer) SweepIdle(ctx context.Context) {
	idle, err := s.Store.FindIdleConversations(ctx)
	if err != nil {
		slog.Error("summarizer: failed to list idle conversations", "error", err)
		return
	}
	for _, c := range idle {
		if err := s.Summarize(ctx, c.ID); err != nil {
			slog.Error("summarizer: failed to summarize conversation", "conversation", c.ID, "error", err)
		}
	}
}

// SweepAllActive summarizes every active conversation; used on shutdown.
func (s *Summarizer) SweepAllActive(ctx context.Context) {
	active, err := s.Store.FindAllActiveConversations(ctx)
	if err != nil {
		slog.Error("summarizer: failed to list active conversations", "error", err)
		return
	}
	for _, c := range active {
		if err := s.Summarize(ctx, c.ID); err != nil {
			slog.Error("summarizer: failed to summarize conversation on shutdown", "conversation", c.ID, "error", err)
		}
	}
}

// Forget closes convID immediately (so the next message starts fresh),
// clears its project session, and summarizes in the background.
func (s *Summarizer) Forget(ctx context.Context, convID, channel, senderID, project string) error {
	if err := s.Store.CloseConversation(ctx, convID, ""); err != nil {
		return err
	}
	if err := s.Store.ClearProjectSession(ctx, channel, senderID, project); err != nil {
		return err
	}
	go func() {
		bg := context.Background()
		if err := s.summarizeMessages(bg, convID, senderID); err != nil {
			slog.Error("summarizer: background /forget summarization failed", "conversation", convID, "error", err)
		}
	}()
	return nil
}

// Summarize loads convID's transcript, asks the provider for a summary +
// facts block, validates and upserts the facts, and closes the
// conversation with the summary text.
func (s *Summarizer) Summarize(ctx context.Context, convID string) error {
	conv, err := s.Store.GetConversation(ctx, convID)
	if err != nil {
		return err
	}
	return s.summarizeInto(ctx, convID, conv.SenderID)
}

func (s *Summarizer) summarizeMessages(ctx context.Context, convID, senderID string) error {
	return s.summarizeInto(ctx, convID, senderID)
}

func (s *Summarizer) summarizeInto(ctx context.Context, convID, senderID string) error {
	messages, err := s.Store.AllMessages(ctx, convID)
	if err != nil {
		return err
	}

	summary, facts, err := s.invoke(ctx, messages)
	if err != nil {
		summary = fmt.Sprintf("(%d messages, summary unavailable)", len(messages))
	} else {
		for key, value := range facts {
			if !validFactKeyValue(key, value) {
				continue
			}
			if err := s.Store.UpsertFact(ctx, senderID, key, value); err != nil {
				slog.Error("summarizer: failed to upsert extracted fact", "key", key, "error", err)
			}
		}
	}

	return s.Store.CloseConversation(ctx, convID, summary)
}

func (s *Summarizer) invoke(ctx context.Context, messages []*store.Message) (string, map[string]string, error) {
	var transcript strings.Builder
	for _, m := range messages {
		fmt.Fprintf(&transcript, "[%s] %s\n", m.Role, m.Content)
	}

	prompt := "Summarize this conversation in one or two sentences, then list any durable facts learned about the user.\n\n" +
		"Respond in exactly this shape:\nSUMMARY: <text>\nFACTS:\n<key>: <value>\n(or \"FACTS: none\" if nothing durable was learned)\n\n" +
		"Transcript:\n" + transcript.String()

	result, err := s.Provider.Complete(ctx, &provider.Context{CurrentMessage: prompt})
	if err != nil {
		return "", nil, err
	}
	return parseSummaryResponse(result.Text)
}

func parseSummaryResponse(text string) (string, map[string]string, error) {
	summaryIdx := strings.Index(text, "SUMMARY:")
	factsIdx := strings.Index(text, "FACTS:")
	if summaryIdx == -1 || factsIdx == -1 {
		return "", nil, fmt.Errorf("summarizer: response missing SUMMARY:/FACTS: sentinels")
	}

	summary := strings.TrimSpace(text[summaryIdx+len("SUMMARY:") : factsIdx])
	factsBlock := strings.TrimSpace(text[factsIdx+len("FACTS:"):])

	facts := map[string]string{}
	if strings.EqualFold(factsBlock, "none") {
		return summary, facts, nil
	}
	for _, line := range strings.Split(factsBlock, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		facts[key] = value
	}
	return summary, facts, nil
}

// validFactKeyValue rejects reserved keys and the malformed shapes called
// out in §4.9: overlong keys/values, keys starting with a digit, and
// values starting with "$".
func validFactKeyValue(key, value string) bool {
	if key == "" || store.IsReservedFactKey(key) {
		return false
	}
	if len(key) > 50 || len(value) > 200 {
		return false
	}
	if _, err := strconv.Atoi(key[:1]); err == nil {
		return false
	}
	if strings.HasPrefix(value, "$") {
		return false
	}
	return true
}


