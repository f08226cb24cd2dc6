package heartbeat

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omegacortex/omega/pkg/provider"
	"github.com/omegacortex/omega/pkg/store"
)

type fakeSender struct{ sent []string }

func (f *fakeSender) Send(ctx context.Context, channel, replyTarget, text string) error {
	f.sent = append(f.sent, text)
	return nil
}

type fakeProvider struct{ text string }

func (f *fakeProvider) Complete(ctx context.Context, c *provider.Context) (provider.CompletionResult, error) {
	return provider.CompletionResult{Text: f.text}, nil
}
func (f *fakeProvider) IsTransientError(err error) bool       { return false }
func (f *fakeProvider) IsSessionNotFoundError(err error) bool { return false }

func TestNextAlignedWake_AlignsToIntervalBoundary(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 7, 0, 0, time.UTC)
	wait := nextAlignedWake(now, 30*60) // 30-minute interval
	target := now.Add(wait)
	assert.Equal(t, 10, target.Hour())
	assert.Equal(t, 30, target.Minute())
}

func TestChecklist_AddRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heartbeat.md")
	c := NewChecklist(path)

	require.NoError(t, c.Add("check disk space"))
	require.NoError(t, c.Add("check backups"))

	lines, err := c.Lines()
	require.NoError(t, err)
	assert.Len(t, lines, 2)

	require.NoError(t, c.Remove("disk space"))
	lines, err = c.Lines()
	require.NoError(t, err)
	assert.Len(t, lines, 1)
	assert.Contains(t, lines[0], "backups")
}

func TestRunGlobal_DeliversNonSuppressedResult(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, "heartbeat.md")
	require.NoError(t, os.WriteFile(path, []byte("- check backups\n"), 0o644))

	s, err := store.Open(filepath.Join(dataDir, "omega.db"))
	require.NoError(t, err)
	defer s.Close()

	sender := &fakeSender{}
	h := &Heartbeat{
		Store: s, Sender: sender, Provider: &fakeProvider{text: "Backups look fine."},
		Channel: "telegram", DataDir: dataDir,
	}

	checklist := NewChecklist(path)
	require.NoError(t, h.runGlobal(context.Background(), checklist))
	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "Backups look fine")
}

func TestRunGlobal_SkipsDeliveryWhenSuppressed(t *testing.T) {
	dataDir := t.TempDir()
	path := filepath.Join(dataDir, "heartbeat.md")
	require.NoError(t, os.WriteFile(path, []byte("- check backups\n"), 0o644))

	s, err := store.Open(filepath.Join(dataDir, "omega.db"))
	require.NoError(t, err)
	defer s.Close()

	sender := &fakeSender{}
	h := &Heartbeat{
		Store: s, Sender: sender, Provider: &fakeProvider{text: "HEARTBEAT_OK"},
		Channel: "telegram", DataDir: dataDir,
	}

	checklist := NewChecklist(path)
	require.NoError(t, h.runGlobal(context.Background(), checklist))
	assert.Empty(t, sender.sent)
}
