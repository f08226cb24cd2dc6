// Package heartbeat runs the clock-aligned self-invocation loop (§4.8): a
// periodic checklist sweep that classifies itself into related groups,
// fans out one provider call per group, and joins the results in spawn
// order before delivering a single combined message.
package heartbeat

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omegacortex/omega/pkg/marker"
	"github.com/omegacortex/omega/pkg/provider"
	"github.com/omegacortex/omega/pkg/store"
)

// Sender delivers a plain text message to a channel+reply target.
type Sender interface {
	Send(ctx context.Context, channel, replyTarget, text string) error
}

// Checklist is the backing file for one heartbeat scope (global or
// per-project), implementing the marker.Checklist contract.
type Checklist struct {
	path string
	mu   sync.Mutex
}

func NewChecklist(path string) *Checklist { return &Checklist{path: path} }

func (c *Checklist) Exists() bool {
	_, err := os.Stat(c.path)
	return err == nil
}

func (c *Checklist) Lines() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLines()
}

// readLines reads the checklist file; the caller holds c.mu.
func (c *Checklist) readLines() ([]string, error) {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n"), nil
}

func (c *Checklist) write(lines []string) error {
	return os.WriteFile(c.path, []byte(strings.Join(lines, "\n")+"\n"), 0o644)
}

func (c *Checklist) Add(item string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines, _ := c.readLines()
	return c.write(append(lines, "- "+item))
}

func (c *Checklist) Remove(item string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines, _ := c.readLines()
	out := lines[:0]
	for _, l := range lines {
		if !strings.Contains(l, item) {
			out = append(out, l)
		}
	}
	return c.write(out)
}

func (c *Checklist) SuppressSection(name string) error {
	return c.toggleSection(name, true)
}

func (c *Checklist) UnsuppressSection(name string) error {
	return c.toggleSection(name, false)
}

func (c *Checklist) toggleSection(name string, suppress bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines, _ := c.readLines()
	inSection := false
	for i, l := range lines {
		trimmed := strings.TrimSpace(strings.TrimPrefix(l, "#"))
		if strings.EqualFold(trimmed, name) {
			inSection = true
			continue
		}
		if strings.HasPrefix(trimmed, "##") {
			inSection = false
		}
		if inSection {
			if suppress && !strings.HasPrefix(l, "# ") {
				lines[i] = "# " + l
			} else if !suppress && strings.HasPrefix(l, "# ") {
				lines[i] = strings.TrimPrefix(l, "# ")
			}
		}
	}
	return c.write(lines)
}

// Classifier splits a checklist into related groups using a fast model.
type Classifier interface {
	Classify(ctx context.Context, items []string) (groups [][]string, err error)
}

// Heartbeat drives the global and per-project checklist loops.
type Heartbeat struct {
	Store      *store.Store
	Sender     Sender
	Classifier Classifier
	Provider   provider.Provider
	Channel    string
	ReplyTarget string
	DataDir    string

	ActiveStart string
	ActiveEnd   string

	intervalSeconds atomic.Int64
}

// SetIntervalSeconds is called by the HEARTBEAT_INTERVAL: marker; the
// change takes effect at the next wake.
func (h *Heartbeat) SetIntervalSeconds(seconds int) {
	h.intervalSeconds.Store(int64(seconds))
}

func (h *Heartbeat) intervalOrDefault() int64 {
	if v := h.intervalSeconds.Load(); v > 0 {
		return v
	}
	return 30 * 60
}

// Run blocks until ctx is canceled, waking at each clock-aligned
// multiple of the current interval.
func (h *Heartbeat) Run(ctx context.Context) {
	for {
		wait := nextAlignedWake(time.Now(), h.intervalOrDefault())
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			h.tick(ctx)
		}
	}
}

// nextAlignedWake returns the duration until the next minute-of-day that
// is a multiple of intervalSeconds/60.
func nextAlignedWake(now time.Time, intervalSeconds int64) time.Duration {
	intervalMin := intervalSeconds / 60
	if intervalMin <= 0 {
		intervalMin = 1
	}
	minuteOfDay := int64(now.Hour()*60 + now.Minute())
	next := ((minuteOfDay / intervalMin) + 1) * intervalMin
	target := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).
		Add(time.Duration(next) * time.Minute)
	if !target.After(now) {
		target = target.Add(time.Duration(intervalMin) * time.Minute)
	}
	return target.Sub(now)
}

func (h *Heartbeat) tick(ctx context.Context) {
	if !withinActiveHours(time.Now(), h.ActiveStart, h.ActiveEnd) {
		return
	}

	checklist := NewChecklist(h.DataDir + "/heartbeat.md")
	if checklist.Exists() {
		if err := h.runGlobal(ctx, checklist); err != nil {
			slog.Error("heartbeat: global tick failed", "error", err)
		}
	}

	projects, err := h.activeProjects(ctx)
	if err != nil {
		slog.Error("heartbeat: failed to enumerate active projects", "error", err)
		return
	}
	for _, p := range projects {
		pChecklist := NewChecklist(h.DataDir + "/projects/" + p + "/heartbeat.md")
		if !pChecklist.Exists() {
			continue
		}
		if err := h.runProject(ctx, p, pChecklist); err != nil {
			slog.Error("heartbeat: project tick failed", "project", p, "error", err)
		}
	}
}

func (h *Heartbeat) activeProjects(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(h.DataDir + "/projects")
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

type heartbeatResult struct {
	Text      string
	ElapsedMs int64
}

// runGlobal classifies the checklist into groups, fans out one provider
// call per group, and joins in spawn order.
func (h *Heartbeat) runGlobal(ctx context.Context, checklist *Checklist) error {
	lines, err := checklist.Lines()
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}

	groups, err := h.classify(ctx, lines)
	if err != nil {
		return err
	}

	results := make([]*heartbeatResult, len(groups))
	var wg sync.WaitGroup
	for i, group := range groups {
		wg.Add(1)
		go func(i int, group []string) {
			defer wg.Done()
			results[i] = h.runGroup(ctx, group, "")
		}(i, group)
	}
	wg.Wait()

	return h.deliver(ctx, "", results)
}

func (h *Heartbeat) runProject(ctx context.Context, project string, checklist *Checklist) error {
	lines, err := checklist.Lines()
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	result := h.runGroup(ctx, lines, project)
	return h.deliver(ctx, project, []*heartbeatResult{result})
}

func (h *Heartbeat) classify(ctx context.Context, items []string) ([][]string, error) {
	if h.Classifier == nil || len(items) <= 3 {
		return [][]string{items}, nil
	}
	groups, err := h.Classifier.Classify(ctx, items)
	if err != nil || len(groups) == 0 {
		return [][]string{items}, nil
	}
	return groups, nil
}

func (h *Heartbeat) runGroup(ctx context.Context, items []string, project string) *heartbeatResult {
	start := time.Now()

	enrichment := h.buildEnrichment(ctx, project)
	prompt := enrichment
	if prompt != "" {
		prompt += "\n\n"
	}
	prompt += strings.Join(items, "\n")

	result, err := h.Provider.Complete(ctx, &provider.Context{CurrentMessage: prompt})
	if err != nil {
		slog.Error("heartbeat: provider call failed", "error", err)
		return nil
	}

	processed, err := marker.Process(ctx, result.Text, marker.Deps{
		Store: h.Store, Channel: h.Channel, Project: project,
		SetHeartbeatSecs: h.SetIntervalSeconds,
	})
	if err != nil {
		slog.Error("heartbeat: marker processing failed", "error", err)
		return nil
	}
	if processed.Suppressed || strings.TrimSpace(processed.Text) == "" {
		return nil
	}
	return &heartbeatResult{Text: processed.Text, ElapsedMs: time.Since(start).Milliseconds()}
}

func (h *Heartbeat) buildEnrichment(ctx context.Context, project string) string {
	// Enrichment recalls recent facts/lessons/outcomes for the scope, the
	// same sections BuildContext assembles for a regular message.
	ctxBuilt, err := h.Store.BuildContext(ctx, store.IncomingMessage{Channel: h.Channel, Project: project},
		store.ContextNeeds{Profile: true, Summaries: false, Outcomes: true}, 0)
	if err != nil {
		return ""
	}
	return ctxBuilt.SystemPrompt
}

func (h *Heartbeat) deliver(ctx context.Context, project string, results []*heartbeatResult) error {
	var texts []string
	for _, r := range results {
		if r != nil {
			texts = append(texts, r.Text)
		}
	}
	if len(texts) == 0 {
		return nil
	}
	msg := strings.Join(texts, "\n---\n")
	_ = project
	return h.Sender.Send(ctx, h.Channel, h.ReplyTarget, msg)
}

func withinActiveHours(now time.Time, start, end string) bool {
	if start == "" || end == "" {
		return true
	}
	s, errS := time.Parse("15:04", start)
	e, errE := time.Parse("15:04", end)
	if errS != nil || errE != nil {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	sMin := s.Hour()*60 + s.Minute()
	eMin := e.Hour()*60 + e.Minute()
	if sMin <= eMin {
		return cur >= sMin && cur < eMin
	}
	return cur >= sMin || cur < eMin
}


