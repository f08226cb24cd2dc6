package summarizer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegacortex/omega/pkg/provider"
	"github.com/omegacortex/omega/pkg/store"
)

type fakeProvider struct {
	text string
	err  error
}

func (f *fakeProvider) Complete(ctx context.Context, c *provider.Context) (provider.CompletionResult, error) {
	if f.err != nil {
		return provider.CompletionResult{}, f.err
	}
	return provider.CompletionResult{Text: f.text}, nil
}
func (f *fakeProvider) IsTransientError(err error) bool       { return false }
func (f *fakeProvider) IsSessionNotFoundError(err error) bool { return false }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "omega.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSummarize_UpsertsFactsAndClosesConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, "telegram", "user1", "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, conv.ID, store.RoleUser, "I live in Lisbon and prefer terse replies.", "")
	require.NoError(t, err)

	sum := &Summarizer{
		Store: s,
		Provider: &fakeProvider{text: "SUMMARY: User discussed their location and reply preference.\n" +
			"FACTS:\nlocation: Lisbon\nreply_style: terse\n"},
	}

	require.NoError(t, sum.Summarize(ctx, conv.ID))

	closed, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ConversationClosed, closed.Status)
	assert.Contains(t, closed.Summary, "location")

	value, ok, err := s.GetFact(ctx, "user1", "location")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Lisbon", value)
}

func TestSummarize_FallsBackOnProviderFailure(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, "telegram", "user1", "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, conv.ID, store.RoleUser, "hello", "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, conv.ID, store.RoleAssistant, "hi there", "")
	require.NoError(t, err)

	sum := &Summarizer{Store: s, Provider: &fakeProvider{err: assertAnError{}}}
	require.NoError(t, sum.Summarize(ctx, conv.ID))

	closed, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Contains(t, closed.Summary, "summary unavailable")
}

func TestSummarize_RejectsMalformedFacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, "telegram", "user1", "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, conv.ID, store.RoleUser, "test", "")
	require.NoError(t, err)

	sum := &Summarizer{
		Store: s,
		Provider: &fakeProvider{text: "SUMMARY: test\nFACTS:\n" +
			"9bad: starts with digit\n" +
			"price: $100 value starting with dollar sign\n" +
			"ok_key: a perfectly fine fact\n"},
	}
	require.NoError(t, sum.Summarize(ctx, conv.ID))

	_, ok, err := s.GetFact(ctx, "user1", "9bad")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.GetFact(ctx, "user1", "price")
	require.NoError(t, err)
	assert.False(t, ok)

	value, ok, err := s.GetFact(ctx, "user1", "ok_key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "a perfectly fine fact", value)
}

func TestForget_ClosesImmediatelyAndSummarizesInBackground(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv, err := s.GetOrCreateConversation(ctx, "telegram", "user1", "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, conv.ID, store.RoleUser, "remember I like tea", "")
	require.NoError(t, err)
	require.NoError(t, s.SetProjectSession(ctx, "telegram", "user1", "", "session-123"))

	sum := &Summarizer{Store: s, Provider: &fakeProvider{text: "SUMMARY: likes tea\nFACTS: none\n"}}
	require.NoError(t, sum.Forget(ctx, conv.ID, "telegram", "user1", ""))

	closed, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, store.ConversationClosed, closed.Status)
}

func TestParseSummaryResponse_HandlesNoneFacts(t *testing.T) {
	summary, facts, err := parseSummaryResponse("SUMMARY: nothing notable\nFACTS: none\n")
	require.NoError(t, err)
	assert.Equal(t, "nothing notable", summary)
	assert.Empty(t, facts)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "provider unavailable" }
