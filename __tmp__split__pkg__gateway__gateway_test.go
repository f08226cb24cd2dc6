package gateway

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegacortex/omega/pkg/provider"
	"github.com/omegacortex/omega/pkg/store"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, channel, replyTarget, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type allowList map[string]bool

func (a allowList) Allowed(channel, senderID string) bool { return a[channel+":"+senderID] }

type fixedProvider struct {
	result provider.CompletionResult
	err    error
}

func (p *fixedProvider) Complete(ctx context.Context, c *provider.Context) (provider.CompletionResult, error) {
	return p.result, p.err
}
func (p *fixedProvider) IsTransientError(err error) bool       { return false }
func (p *fixedProvider) IsSessionNotFoundError(err error) bool { return false }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "omega.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestHandle_DeniesUnauthorizedSender(t *testing.T) {
	s := newTestStore(t)
	sender := &fakeSender{}
	g := &Gateway{Store: s, Sender: sender, Auth: allowList{}}

	err := g.Handle(context.Background(), Incoming{Channel: "telegram", SenderID: "u1", ReplyTarget: "u1", Text: "hi"})
	require.NoError(t, err)
	assert.Contains(t, sender.last(), "not authorized")

	audits, err := s.RecentAudit(context.Background(), "u1", 1)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, store.AuditDenied, audits[0].Status)
	assert.Equal(t, "not on allow-list", audits[0].DenialReason)
}

func TestHandle_DispatchesSlashCommand(t *testing.T) {
	s := newTestStore(t)
	sender := &fakeSender{}
	g := &Gateway{
		Store: s, Sender: sender,
		Auth: allowList{"telegram:u1": true},
	}

	err := g.Handle(context.Background(), Incoming{Channel: "telegram", SenderID: "u1", ReplyTarget: "u1", Text: "/help"})
	require.NoError(t, err)
	assert.Contains(t, sender.last(), "Available commands")
}

func TestHandle_HappyPathStoresMessagesAndAudits(t *testing.T) {
	s := newTestStore(t)
	sender := &fakeSender{}
	prov := &fixedProvider{result: provider.CompletionResult{
		Text: "Sure, I'll help with that.", ProviderUsed: "openai", Model: "gpt-test", SessionID: "sess-1",
	}}
	g := &Gateway{
		Store: s, Sender: sender, Provider: prov,
		Auth: allowList{"telegram:u1": true},
	}

	err := g.Handle(context.Background(), Incoming{Channel: "telegram", SenderID: "u1", ReplyTarget: "u1", Text: "Tell me a fact."})
	require.NoError(t, err)
	assert.Contains(t, sender.last(), "Sure, I'll help")

	audits, err := s.RecentAudit(context.Background(), "u1", 1)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, store.AuditOK, audits[0].Status)
	assert.Equal(t, "openai", audits[0].ProviderUsed)

	conv, err := s.GetOrCreateConversation(context.Background(), "telegram", "u1", "")
	require.NoError(t, err)
	msgs, err := s.RecentMessages(context.Background(), conv.ID, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, store.RoleAssistant, msgs[1].Role)
}

func TestHandle_ProviderErrorRepliesGracefullyAndAudits(t *testing.T) {
	s := newTestStore(t)
	sender := &fakeSender{}
	prov := &fixedProvider{err: assertErr{"boom"}}
	g := &Gateway{
		Store: s, Sender: sender, Provider: prov,
		Auth: allowList{"telegram:u1": true},
	}

	err := g.Handle(context.Background(), Incoming{Channel: "telegram", SenderID: "u1", ReplyTarget: "u1", Text: "hello there"})
	require.NoError(t, err)
	assert.Contains(t, sender.last(), "error reaching the model")

	audits, err := s.RecentAudit(context.Background(), "u1", 1)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, store.AuditError, audits[0].Status)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestOnboardingStage_IndependentGates(t *testing.T) {
	assert.Equal(t, 0, onboardingStage(0, false))
	assert.Equal(t, 1, onboardingStage(1, false))
	assert.Equal(t, 2, onboardingStage(3, false))
	assert.Equal(t, 3, onboardingStage(3, true))
	assert.Equal(t, 4, onboardingStage(5, true))
	assert.Equal(t, 4, onboardingStage(5, false))
}

func TestClassifyNeeds_SchedulingKeywordsPullTasksAndProfile(t *testing.T) {
	needs := classifyNeeds("remind me to call mom tomorrow")
	assert.True(t, needs.PendingTasks)
	assert.True(t, needs.Profile)
}

func TestClassifyNeeds_RecallKeywordsPullSummaries(t *testing.T) {
	needs := classifyNeeds("do you remember what I told you earlier?")
	assert.True(t, needs.Recall)
	assert.True(t, needs.Summaries)
}

func TestInterceptPendingBuildConfirm_ConfirmsWithoutTopology(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertFact(ctx, "u1", store.FactPendingBuildConfirm, "build me a todo app"))

	g := &Gateway{Store: s}
	reply, handled, err := g.interceptPendingBuildConfirm(ctx, Incoming{SenderID: "u1"}, "yes")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, reply, "no build runner")

	_, ok, err := s.GetFact(ctx, "u1", store.FactPendingBuildConfirm)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInterceptPendingBuildConfirm_Cancels(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertFact(ctx, "u1", store.FactPendingBuildConfirm, "build me a todo app"))

	g := &Gateway{Store: s}
	reply, handled, err := g.interceptPendingBuildConfirm(ctx, Incoming{SenderID: "u1"}, "no")
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Contains(t, reply, "canceled")
}

func TestInterceptPendingBuildConfirm_IgnoresUnrelatedText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.UpsertFact(ctx, "u1", store.FactPendingBuildConfirm, "build me a todo app"))

	g := &Gateway{Store: s}
	_, handled, err := g.interceptPendingBuildConfirm(ctx, Incoming{SenderID: "u1"}, "what's the weather like")
	require.NoError(t, err)
	assert.False(t, handled)
}


