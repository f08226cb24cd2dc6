package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/omegacortex/omega/pkg/provider"
)

// ContextNeeds is the per-message classification of which context
// sections BuildContext should assemble, computed by the gateway's
// multilingual keyword heuristics (§4.12) before every dispatch.
type ContextNeeds struct {
	Recall       bool
	PendingTasks bool
	Profile      bool
	Summaries    bool
	Outcomes     bool
}

// IncomingMessage is the minimal shape BuildContext needs from a channel
// message to assemble a provider.Context.
type IncomingMessage struct {
	Channel  string
	SenderID string
	Project  string
	Text     string
}

// BuildContext assembles the provider.Context for one inbound
// message: the conversation's recent history window, optional recalled
// messages, summaries, facts, pending tasks, outcomes, learned lessons,
// and a dynamically composed system prompt (§4.2). Each section is read
// with its own query; the reads do not share one transaction.
func (s *Store) BuildContext(ctx context.Context, incoming IncomingMessage, needs ContextNeeds, maxContextMessages int) (*provider.Context, error) {
	conv, err := s.GetOrCreateConversation(ctx, incoming.Channel, incoming.SenderID, incoming.Project)
	if err != nil {
		return nil, err
	}

	recent, err := s.RecentMessages(ctx, conv.ID, maxContextMessages)
	if err != nil {
		return nil, err
	}

	history := make([]provider.Message, 0, len(recent))
	for _, m := range recent {
		history = append(history, provider.Message{Role: string(m.Role), Content: m.Content})
	}

	var sections []string

	if needs.Profile {
		facts, err := s.AllFacts(ctx, incoming.SenderID)
		if err != nil {
			return nil, err
		}
		if section := renderFacts(facts); section != "" {
			sections = append(sections, section)
		}
	}

	if needs.Recall {
		recalled, err := s.RecallMessages(ctx, incoming.SenderID, incoming.Text, 10)
		if err != nil {
			return nil, err
		}
		if section := renderRecall(recalled); section != "" {
			sections = append(sections, section)
		}
	}

	if needs.Summaries {
		if conv.Summary != "" {
			sections = append(sections, fmt.Sprintf("[Prior conversation summary]\n%s", conv.Summary))
		}
	}

	if needs.PendingTasks {
		tasks, err := s.PendingTasksFor(ctx, incoming.SenderID)
		if err != nil {
			return nil, err
		}
		if section := renderTasks(tasks); section != "" {
			sections = append(sections, section)
		}
	}

	if needs.Outcomes {
		outcomes, err := s.RecentOutcomes(ctx, incoming.SenderID, incoming.Project, 5)
		if err != nil {
			return nil, err
		}
		if section := renderOutcomes(outcomes); section != "" {
			sections = append(sections, section)
		}
	}

	lessons, err := s.AllLessonsForSender(ctx, incoming.SenderID)
	if err != nil {
		return nil, err
	}
	if section := renderLessons(lessons); section != "" {
		sections = append(sections, section)
	}

	return &provider.Context{
		SystemPrompt:   strings.Join(sections, "\n\n"),
		History:        history,
		CurrentMessage: incoming.Text,
	}, nil
}

func renderFacts(facts []*Fact) string {
	if len(facts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Known facts about this user]\n")
	for _, f := range facts {
		if IsReservedFactKey(f.Key) {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", f.Key, f.Value)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderRecall(msgs []*Message) string {
	if len(msgs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Relevant past messages]\n")
	for _, m := range msgs {
		fmt.Fprintf(&b, "- [%s] %s\n", m.Role, m.Content)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderTasks(tasks []*Task) string {
	if len(tasks) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Pending tasks]\n")
	for _, t := range tasks {
		fmt.Fprintf(&b, "- %s (%s): %s, due %s\n", t.ID[:8], t.TaskType, t.Description, t.DueAt.Format("2006-01-02 15:04"))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderOutcomes(outcomes []*Outcome) string {
	if len(outcomes) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Recent outcomes]\n")
	for _, o := range outcomes {
		fmt.Fprintf(&b, "- %s: score %+d — %s\n", o.Domain, o.Score, o.Lesson)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func renderLessons(lessons []*Lesson) string {
	if len(lessons) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("[Learned lessons]\n")
	for _, l := range lessons {
		fmt.Fprintf(&b, "- [%s] %s\n", l.Domain, l.Rule)
	}
	return strings.TrimSuffix(b.String(), "\n")
}


