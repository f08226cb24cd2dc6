package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "omega.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetOrCreateConversation_ReusesActiveRow(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c1, err := s.GetOrCreateConversation(ctx, "telegram", "user1", "")
	require.NoError(t, err)

	c2, err := s.GetOrCreateConversation(ctx, "telegram", "user1", "")
	require.NoError(t, err)

	assert.Equal(t, c1.ID, c2.ID)
}

func TestGetOrCreateConversation_SeparatesProjects(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c1, err := s.GetOrCreateConversation(ctx, "telegram", "user1", "")
	require.NoError(t, err)
	c2, err := s.GetOrCreateConversation(ctx, "telegram", "user1", "alpha")
	require.NoError(t, err)

	assert.NotEqual(t, c1.ID, c2.ID)
}

func TestFindIdleConversations(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.GetOrCreateConversation(ctx, "telegram", "user1", "")
	require.NoError(t, err)

	idle, err := s.FindIdleConversations(ctx)
	require.NoError(t, err)
	assert.Empty(t, idle)

	_, err = s.db.ExecContext(ctx, `UPDATE conversations SET last_activity = ? WHERE id = ?`,
		time.Now().Add(-IdleAfter-time.Minute), c.ID)
	require.NoError(t, err)

	idle, err = s.FindIdleConversations(ctx)
	require.NoError(t, err)
	require.Len(t, idle, 1)
	assert.Equal(t, c.ID, idle[0].ID)
}

func TestCloseConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.GetOrCreateConversation(ctx, "telegram", "user1", "")
	require.NoError(t, err)
	require.NoError(t, s.CloseConversation(ctx, c.ID, "summary text"))

	got, err := s.GetConversation(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, ConversationClosed, got.Status)
	assert.Equal(t, "summary text", got.Summary)
}

func TestAddMessage_AndRecall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	c, err := s.GetOrCreateConversation(ctx, "telegram", "user1", "")
	require.NoError(t, err)

	_, err = s.AddMessage(ctx, c.ID, RoleUser, "remember to water the plants tomorrow", "")
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, c.ID, RoleAssistant, "noted, I'll remind you", "")
	require.NoError(t, err)

	recent, err := s.RecentMessages(ctx, c.ID, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, RoleUser, recent[0].Role)

	found, err := s.RecallMessages(ctx, "user1", "plants", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Contains(t, found[0].Content, "plants")
}

func TestTaskLifecycle_CompleteOnceVsRepeating(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	due := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)
	once, err := s.CreateTask(ctx, &Task{Channel: "telegram", SenderID: "user1", Description: "one-off", DueAt: due, Repeat: RepeatOnce, TaskType: TaskReminder})
	require.NoError(t, err)
	require.NoError(t, s.CompleteTask(ctx, once.ID, RepeatOnce))

	pending, err := s.PendingTasksFor(ctx, "user1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	monthly, err := s.CreateTask(ctx, &Task{Channel: "telegram", SenderID: "user1", Description: "monthly check-in", DueAt: due, Repeat: RepeatMonthly, TaskType: TaskReminder})
	require.NoError(t, err)
	require.NoError(t, s.CompleteTask(ctx, monthly.ID, RepeatMonthly))

	pending, err = s.PendingTasksFor(ctx, "user1")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, TaskPending, pending[0].Status)
	assert.Equal(t, 2026, pending[0].DueAt.Year())
	assert.Equal(t, time.February, pending[0].DueAt.Month())
	assert.Equal(t, 28, pending[0].DueAt.Day())
}

func TestAdvanceByPeriod_MonthEndClamp(t *testing.T) {
	jan31 := time.Date(2026, 1, 31, 12, 0, 0, 0, time.UTC)
	next := AdvanceByPeriod(jan31, RepeatMonthly)
	assert.Equal(t, time.February, next.Month())
	assert.Equal(t, 28, next.Day())
}

func TestFindTaskByIDPrefix_Ambiguous(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	due := time.Now().Add(time.Hour)
	_, err := s.CreateTask(ctx, &Task{Channel: "telegram", SenderID: "user1", Description: "a", DueAt: due, Repeat: RepeatOnce, TaskType: TaskReminder})
	require.NoError(t, err)
	_, err = s.CreateTask(ctx, &Task{Channel: "telegram", SenderID: "user1", Description: "b", DueAt: due, Repeat: RepeatOnce, TaskType: TaskReminder})
	require.NoError(t, err)

	match, err := s.FindTaskByIDPrefix(ctx, "user1", "")
	require.NoError(t, err)
	assert.Nil(t, match) // empty prefix matches every pending task: ambiguous
}

func TestStoreLesson_DedupAndCap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < MaxLessonsPerScope+3; i++ {
		rule := "rule"
		if i%2 == 0 {
			rule = "rule-even"
		}
		require.NoError(t, s.StoreLesson(ctx, "user1", "coding", rule, ""))
	}

	lessons, err := s.LessonsFor(ctx, "user1", "coding", "")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(lessons), MaxLessonsPerScope)
}

func TestAuditLog_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteAudit(ctx, &AuditLog{
		Channel: "telegram", SenderID: "user1", InputText: "hi", OutputText: "hello", Status: AuditOK,
	}))

	rows, err := s.RecentAudit(ctx, "user1", 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, AuditOK, rows[0].Status)
}

func TestBuildContext_AssemblesSections(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertFact(ctx, "user1", "favorite_color", "blue"))

	c, err := s.BuildContext(ctx, IncomingMessage{Channel: "telegram", SenderID: "user1", Text: "hello there"},
		ContextNeeds{Profile: true}, 20)
	require.NoError(t, err)
	assert.Contains(t, c.SystemPrompt, "favorite_color")
	assert.Equal(t, "hello there", c.CurrentMessage)
}


