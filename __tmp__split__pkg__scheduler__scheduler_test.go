package scheduler

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

type fakeSender struct {
	sent []string
}

func (f *fakeSender) Send(ctx context.Context, channel, replyTarget, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

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

func TestWithinActiveHours_Wraparound(t *testing.T) {
	night := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	midday := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)

	assert.True(t, withinActiveHours(night, "22:00", "08:00"))
	assert.False(t, withinActiveHours(midday, "22:00", "08:00"))
}

func TestWithinActiveHours_NormalWindow(t *testing.T) {
	morning := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	night := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	assert.True(t, withinActiveHours(morning, "08:00", "22:00"))
	assert.False(t, withinActiveHours(night, "08:00", "22:00"))
}

func TestTick_DefersReminderOutsideActiveHours(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &store.Task{
		Channel: "telegram", SenderID: "user1", ReplyTarget: "user1",
		Description: "reminder", DueAt: time.Now().Add(-time.Minute),
		Repeat: store.RepeatOnce, TaskType: store.TaskReminder,
	})
	require.NoError(t, err)

	sender := &fakeSender{}
	sched := &Scheduler{Store: s, Sender: sender, ActiveStart: "08:00", ActiveEnd: "09:00"}
	sched.tick(ctx)

	assert.Empty(t, sender.sent)

	pending, err := s.PendingTasksFor(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.True(t, pending[0].DueAt.After(time.Now()))
	assert.Equal(t, task.ID, pending[0].ID)
}

func TestTick_DeliversReminderWithinActiveHours(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateTask(ctx, &store.Task{
		Channel: "telegram", SenderID: "user1", ReplyTarget: "user1",
		Description: "water plants", DueAt: time.Now().Add(-time.Minute),
		Repeat: store.RepeatOnce, TaskType: store.TaskReminder,
	})
	require.NoError(t, err)

	sender := &fakeSender{}
	sched := &Scheduler{Store: s, Sender: sender}
	sched.tick(ctx)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "water plants")

	pending, err := s.PendingTasksFor(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatchAction_RunsMarkerPipeline(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	task, err := s.CreateTask(ctx, &store.Task{
		Channel: "telegram", SenderID: "user1", ReplyTarget: "user1",
		Description: "check build status", DueAt: time.Now().Add(-time.Minute),
		Repeat: store.RepeatOnce, TaskType: store.TaskAction,
	})
	require.NoError(t, err)

	sender := &fakeSender{}
	sched := &Scheduler{Store: s, Sender: sender, Provider: &fakeProvider{text: "Build is green. HEARTBEAT_OK"}}
	sched.dispatchAction(ctx, task)

	require.Len(t, sender.sent, 1)
	pending, err := s.PendingTasksFor(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, pending)
}


