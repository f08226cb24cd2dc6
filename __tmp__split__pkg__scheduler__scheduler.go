// Package scheduler runs the poll-based due-task loop (§4.7): reminder
// tasks are delivered as plain messages, action tasks re-invoke a
// provider and run the full marker pipeline.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/omegacortex/omega/pkg/marker"
	"github.com/omegacortex/omega/pkg/provider"
	"github.com/omegacortex/omega/pkg/store"
)

// Sender delivers a plain text message to a channel+reply target.
type Sender interface {
	Send(ctx context.Context, channel, replyTarget, text string) error
}

// Scheduler runs the poll loop described in §4.7.
type Scheduler struct {
	Store       *store.Store
	Sender      Sender
	Provider    provider.Provider
	PollSeconds int
	ActiveStart string // "HH:MM"
	ActiveEnd   string // "HH:MM"
	MaxTurns    int
}

// Run blocks until ctx is canceled, polling for due tasks every
// PollSeconds.
func (s *Scheduler) Run(ctx context.Context) {
	interval := time.Duration(s.PollSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	due, err := s.Store.DueTasks(ctx, now)
	if err != nil {
		slog.Error("scheduler: failed to fetch due tasks", "error", err)
		return
	}

	if !withinActiveHours(now, s.ActiveStart, s.ActiveEnd) {
		next := nextActiveStart(now, s.ActiveStart)
		for _, t := range due {
			if err := s.Store.DeferTask(ctx, t.ID, next); err != nil {
				slog.Error("scheduler: failed to defer task past quiet hours", "task", t.ID, "error", err)
			}
		}
		return
	}

	for _, t := range due {
		switch t.TaskType {
		case store.TaskReminder:
			s.dispatchReminder(ctx, t)
		case store.TaskAction:
			s.dispatchAction(ctx, t)
		}
	}
}

func (s *Scheduler) dispatchReminder(ctx context.Context, t *store.Task) {
	text := "Reminder: " + t.Description
	if err := s.Sender.Send(ctx, t.Channel, t.ReplyTarget, text); err != nil {
		slog.Error("scheduler: failed to deliver reminder", "task", t.ID, "error", err)
		return
	}
	if err := s.Store.CompleteTask(ctx, t.ID, t.Repeat); err != nil {
		slog.Error("scheduler: failed to complete reminder task", "task", t.ID, "error", err)
	}
}

func (s *Scheduler) dispatchAction(ctx context.Context, t *store.Task) {
	maxTurns := s.MaxTurns
	if maxTurns <= 0 {
		maxTurns = 30
	}

	c := &provider.Context{
		CurrentMessage: t.Description,
		Overrides:      provider.Overrides{MaxTurns: maxTurns},
	}

	result, err := s.Provider.Complete(ctx, c)
	if err != nil {
		if !s.Provider.IsTransientError(err) {
			_, _ = s.Store.RecordOutcome(ctx, t.SenderID, "scheduled-action", -1, err.Error(), "action", t.Project)
			if cerr := s.Store.CompleteTask(ctx, t.ID, t.Repeat); cerr != nil {
				slog.Error("scheduler: failed to complete failed action task", "task", t.ID, "error", cerr)
			}
		}
		slog.Error("scheduler: action task provider call failed", "task", t.ID, "error", err)
		return
	}

	processed, err := marker.Process(ctx, result.Text, marker.Deps{
		Store: s.Store, Channel: t.Channel, SenderID: t.SenderID, Project: t.Project,
	})
	if err != nil {
		slog.Error("scheduler: marker processing failed for action task", "task", t.ID, "error", err)
		return
	}

	if err := s.Sender.Send(ctx, t.Channel, t.ReplyTarget, processed.Text); err != nil {
		slog.Error("scheduler: failed to deliver action task result", "task", t.ID, "error", err)
		return
	}

	if result.SessionID != "" {
		_ = s.Store.SetProjectSession(ctx, t.Channel, t.SenderID, t.Project, result.SessionID)
	}
	if _, err := s.Store.RecordOutcome(ctx, t.SenderID, "scheduled-action", 1, "", "action", t.Project); err != nil {
		slog.Error("scheduler: failed to record action outcome", "task", t.ID, "error", err)
	}
	if err := s.Store.CompleteTask(ctx, t.ID, t.Repeat); err != nil {
		slog.Error("scheduler: failed to complete action task", "task", t.ID, "error", err)
	}
}

// withinActiveHours reports whether now's local clock time falls inside
// the [start, end) window, handling wraparound windows like 22:00-08:00.
func withinActiveHours(now time.Time, start, end string) bool {
	if start == "" || end == "" {
		return true
	}
	s, errS := parseHHMM(start)
	e, errE := parseHHMM(end)
	if errS != nil || errE != nil {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	if s <= e {
		return cur >= s && cur < e
	}
	// Wraparound window (e.g. 22:00-08:00): active outside [e, s).
	return cur >= s || cur < e
}

// nextActiveStart returns the next instant the active window begins,
// relative to now.
func nextActiveStart(now time.Time, start string) time.Time {
	s, err := parseHHMM(start)
	if err != nil {
		return now.Add(time.Hour)
	}
	candidate := time.Date(now.Year(), now.Month(), now.Day(), s/60, s%60, 0, 0, now.Location())
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}
	return candidate
}

func parseHHMM(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}


