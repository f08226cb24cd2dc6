package setup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegacortex/omega/pkg/provider"
	"github.com/omegacortex/omega/pkg/store"
)

type scriptedProvider struct {
	texts []string
	i     int
}

func (p *scriptedProvider) Complete(ctx context.Context, c *provider.Context) (provider.CompletionResult, error) {
	text := p.texts[p.i]
	if p.i < len(p.texts)-1 {
		p.i++
	}
	return provider.CompletionResult{Text: text}, nil
}
func (p *scriptedProvider) IsTransientError(err error) bool       { return false }
func (p *scriptedProvider) IsSessionNotFoundError(err error) bool { return false }

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "omega.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStart_QuestionsRound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := &Machine{Store: s, DataDir: t.TempDir(), Provider: &scriptedProvider{
		texts: []string{"SETUP_QUESTIONS\nWhat language do you want?"},
	}}

	out, err := m.Start(ctx, "user1", "a todo app")
	require.NoError(t, err)
	assert.Contains(t, out.Reply, "What language")
	assert.False(t, out.Completed)

	raw, ok, err := s.GetFact(ctx, "user1", store.FactPendingSetup)
	require.NoError(t, err)
	require.True(t, ok)
	pending, err := parsePending(raw)
	require.NoError(t, err)
	assert.Equal(t, "1", pending.Round)
}

func TestStart_RejectsWhenAlreadyPending(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := &Machine{Store: s, DataDir: t.TempDir(), Provider: &scriptedProvider{
		texts: []string{"SETUP_QUESTIONS\nfirst question"},
	}}
	_, err := m.Start(ctx, "user1", "a todo app")
	require.NoError(t, err)

	out, err := m.Start(ctx, "user1", "a different app")
	require.NoError(t, err)
	assert.Contains(t, out.Reply, "already have a setup in progress")
}

func TestContinue_QuestioningThenProposalThenConfirm(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	prov := &scriptedProvider{texts: []string{"SETUP_QUESTIONS\nWhat language?"}}
	m := &Machine{Store: s, DataDir: t.TempDir(), Provider: prov}

	_, err := m.Start(ctx, "user1", "a todo app")
	require.NoError(t, err)

	prov.texts = []string{"SETUP_PROPOSAL\nBuild a Go todo app.\n\nSETUP_EXECUTE\n(internal)"}
	prov.i = 0
	out, err := m.Continue(ctx, "user1", "Go")
	require.NoError(t, err)
	assert.Contains(t, out.Reply, "Build a Go todo app")
	assert.NotContains(t, out.Reply, "SETUP_EXECUTE")

	prov.texts = []string{"PROJECT_ACTIVATE: todo-app\nSetup complete. HEARTBEAT_OK"}
	prov.i = 0
	out, err = m.Continue(ctx, "user1", "yes")
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Contains(t, out.Reply, "todo-app")

	_, ok, err := s.GetFact(ctx, "user1", store.FactPendingSetup)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContinue_CancellationCleansUp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := &Machine{Store: s, DataDir: t.TempDir(), Provider: &scriptedProvider{
		texts: []string{"SETUP_PROPOSAL\nBuild a thing.\n\nSETUP_EXECUTE"},
	}}
	_, err := m.Start(ctx, "user1", "a thing")
	require.NoError(t, err)

	out, err := m.Continue(ctx, "user1", "no")
	require.NoError(t, err)
	assert.True(t, out.Completed)
	assert.Contains(t, out.Reply, "canceled")

	_, ok, err := s.GetFact(ctx, "user1", store.FactPendingSetup)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContinue_ExpiredSessionCleansUp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	m := &Machine{Store: s, DataDir: t.TempDir()}
	expired := &pendingState{Timestamp: time.Now().Add(-time.Hour), SenderID: "user1", Round: "1"}
	require.NoError(t, s.UpsertFact(ctx, "user1", store.FactPendingSetup, expired.String()))
	require.NoError(t, m.writeContext("user1", "SETUP_QUESTIONS\nsomething"))

	out, err := m.Continue(ctx, "user1", "an answer")
	require.NoError(t, err)
	assert.Contains(t, out.Reply, "expired")

	_, ok, err := s.GetFact(ctx, "user1", store.FactPendingSetup)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestContinue_NoPendingSetup(t *testing.T) {
	s := newTestStore(t)
	m := &Machine{Store: s, DataDir: t.TempDir()}

	out, err := m.Continue(context.Background(), "user1", "hello")
	require.NoError(t, err)
	assert.Contains(t, out.Reply, "no setup in progress")
}
