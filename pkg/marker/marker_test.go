package marker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegacortex/omega/pkg/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "omega.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestProcess_ScheduleLineAnchored(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	due := time.Now().Add(24 * time.Hour).Format(time.RFC3339)

	text := "Sure, I'll remind you.\nSCHEDULE: water the plants|" + due + "|once\nAnything else?"
	res, err := Process(ctx, text, Deps{Store: s, Channel: "telegram", SenderID: "user1"})
	require.NoError(t, err)

	require.Len(t, res.Results, 1)
	tc, ok := res.Results[0].(TaskCreated)
	require.True(t, ok)
	assert.Equal(t, "water the plants", tc.Description)
	assert.NotContains(t, res.Text, "SCHEDULE:")
	assert.Contains(t, res.Text, "1 task confirmed: water the plants")
}

func TestProcess_ScheduleConfirmationMatchesLiteralSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	text := "I'll set that up.\nSCHEDULE: Call mom | 2026-03-01T15:00:00 | once\nDone!"
	res, err := Process(ctx, text, Deps{Store: s, Channel: "telegram", SenderID: "user1"})
	require.NoError(t, err)

	assert.Equal(t, "I'll set that up.\nDone!\n1 task confirmed: Call mom — 2026-03-01T15:00:00 (once)", res.Text)
}

func TestProcess_MidLineReward(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	text := "Nice work! REWARD: 5|coding|clean refactor. Keep it up."
	res, err := Process(ctx, text, Deps{Store: s, Channel: "telegram", SenderID: "user1"})
	require.NoError(t, err)

	require.Len(t, res.Results, 1)
	_, ok := res.Results[0].(OutcomeRecorded)
	assert.True(t, ok)
	assert.NotContains(t, res.Text, "REWARD:")
}

func TestProcess_HeartbeatOKSuppressesEmptyText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := Process(ctx, "HEARTBEAT_OK", Deps{Store: s, Channel: "telegram", SenderID: "user1"})
	require.NoError(t, err)
	assert.True(t, res.Suppressed)
}

func TestProcess_LangSwitchUpsertsFact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := Process(ctx, "LANG_SWITCH: French", Deps{Store: s, Channel: "telegram", SenderID: "user1"})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	fu := res.Results[0].(FactUpdated)
	assert.Equal(t, store.FactPreferredLanguage, fu.Key)

	val, ok, err := s.GetFact(ctx, "user1", store.FactPreferredLanguage)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "French", val)
}

func TestProcess_SimilarTaskWarning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	due := time.Now().Add(time.Hour).Format(time.RFC3339)

	_, err := s.CreateTask(ctx, &store.Task{
		Channel: "telegram", SenderID: "user1", Description: "water the garden plants",
		DueAt: time.Now().Add(time.Hour), Repeat: store.RepeatOnce, TaskType: store.TaskReminder,
	})
	require.NoError(t, err)

	text := "SCHEDULE: water the garden plants again|" + due + "|once"
	res, err := Process(ctx, text, Deps{Store: s, Channel: "telegram", SenderID: "user1"})
	require.NoError(t, err)

	tc := res.Results[0].(TaskCreated)
	assert.NotEmpty(t, tc.SimilarWarning)
}

func TestProcess_CancelTaskUnknownPrefix(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res, err := Process(ctx, "CANCEL_TASK: deadbeef", Deps{Store: s, Channel: "telegram", SenderID: "user1"})
	require.NoError(t, err)
	_, ok := res.Results[0].(TaskParseError)
	assert.True(t, ok)
}

func TestProcess_CancelTaskEmptyPayloadDoesNotMatchAnyTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateTask(ctx, &store.Task{
		Channel: "telegram", SenderID: "user1", Description: "water the plants",
		DueAt: time.Now().Add(time.Hour), Repeat: store.RepeatOnce, TaskType: store.TaskReminder,
	})
	require.NoError(t, err)

	res, err := Process(ctx, "CANCEL_TASK:", Deps{Store: s, Channel: "telegram", SenderID: "user1"})
	require.NoError(t, err)
	_, ok := res.Results[0].(TaskParseError)
	assert.True(t, ok)
}

func TestProcess_MidLineScansPastAnUnqualifiedOccurrence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	text := "xSCHEDULE: bogus. buy milk SCHEDULE: call mom|2026-08-01T10:00:00Z|once."
	res, err := Process(ctx, text, Deps{Store: s, Channel: "telegram", SenderID: "user1"})
	require.NoError(t, err)

	require.Len(t, res.Results, 1)
	tc, ok := res.Results[0].(TaskCreated)
	require.True(t, ok)
	assert.Equal(t, "call mom", tc.Description)
}
