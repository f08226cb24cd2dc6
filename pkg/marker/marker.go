// Package marker implements the inline side-effect protocol scanned out of
// every LLM response (§4.4): a closed set of `KEYWORD:` lines that create
// tasks, upsert facts, record outcomes, and drive the heartbeat checklist.
package marker

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/omegacortex/omega/pkg/store"
)

// Kind enumerates the closed set of recognized markers.
type Kind string

const (
	Schedule                  Kind = "SCHEDULE"
	ScheduleAction            Kind = "SCHEDULE_ACTION"
	CancelTask                Kind = "CANCEL_TASK"
	UpdateTask                Kind = "UPDATE_TASK"
	LangSwitch                Kind = "LANG_SWITCH"
	Personality               Kind = "PERSONALITY"
	HeartbeatAdd              Kind = "HEARTBEAT_ADD"
	HeartbeatRemove           Kind = "HEARTBEAT_REMOVE"
	HeartbeatInterval         Kind = "HEARTBEAT_INTERVAL"
	HeartbeatSuppressSection  Kind = "HEARTBEAT_SUPPRESS_SECTION"
	HeartbeatUnsuppressSection Kind = "HEARTBEAT_UNSUPPRESS_SECTION"
	ProjectActivate           Kind = "PROJECT_ACTIVATE"
	Reward                    Kind = "REWARD"
	Lesson                    Kind = "LESSON"
	SkillImprove              Kind = "SKILL_IMPROVE"
	BugReport                 Kind = "BUG_REPORT"
	BuildProposal             Kind = "BUILD_PROPOSAL"
	ActionOutcome             Kind = "ACTION_OUTCOME"
	HeartbeatOK               Kind = "HEARTBEAT_OK"
)

// midLineKinds are additionally matched when preceded by whitespace or
// punctuation mid-line, not just at the start of a trimmed line — the
// subset observed to appear inline in practice (§4.4).
var midLineKinds = []Kind{Schedule, Reward, Lesson}

// allKinds, longest-keyword-first so "SCHEDULE_ACTION:" is tried before
// "SCHEDULE:" when matching a line prefix.
var allKinds = []Kind{
	ScheduleAction, Schedule, CancelTask, UpdateTask, LangSwitch, Personality,
	HeartbeatSuppressSection, HeartbeatUnsuppressSection, HeartbeatInterval,
	HeartbeatAdd, HeartbeatRemove, ProjectActivate, Reward, Lesson,
	SkillImprove, BugReport, BuildProposal, ActionOutcome, HeartbeatOK,
}

// Result is a tagged union (via a marker interface) describing the
// outcome of one marker's side effect.
type Result interface{ isResult() }

type TaskCreated struct {
	ID, Description string
	DueAt            time.Time
	Repeat           store.Repeat
	SimilarWarning   string
}
type TaskFailed struct{ Desc, Reason string }
type TaskParseError struct{ Raw string }
type TaskCanceled struct{ ID string }
type TaskUpdated struct{ ID string }
type FactUpdated struct{ Key, Value string }
type OutcomeRecorded struct {
	Domain string
	Score  int
}
type LessonStored struct{ Domain, Rule string }
type HeartbeatChanged struct{ Detail string }
type Noted struct{ Detail string } // skill/bug/build-proposal/action-outcome journaling
type Suppressed struct{}           // HEARTBEAT_OK

func (TaskCreated) isResult()      {}
func (TaskFailed) isResult()       {}
func (TaskParseError) isResult()   {}
func (TaskCanceled) isResult()     {}
func (TaskUpdated) isResult()      {}
func (FactUpdated) isResult()      {}
func (OutcomeRecorded) isResult()  {}
func (LessonStored) isResult()     {}
func (HeartbeatChanged) isResult() {}
func (Noted) isResult()            {}
func (Suppressed) isResult()       {}

// ProcessResult is the outcome of Process: the stripped text, the side
// effects applied, and a human-readable confirmation summary appended to
// the outgoing message.
type ProcessResult struct {
	Text       string
	Results    []Result
	Summary    string
	Suppressed bool // HEARTBEAT_OK after strip reduced the text to empty
}

// Checklist abstracts the heartbeat checklist file so this package does
// not import pkg/heartbeat (which instead depends on this one).
type Checklist interface {
	Add(item string) error
	Remove(item string) error
	SuppressSection(name string) error
	UnsuppressSection(name string) error
}

// Deps bundles everything a marker side effect may need.
type Deps struct {
	Store             *store.Store
	Channel           string
	SenderID          string
	Project           string
	Checklist         Checklist            // may be nil if no heartbeat file is configured
	SetHeartbeatSecs  func(seconds int)     // HEARTBEAT_INTERVAL: sets the atomic interval
	JournalSkill      func(skill, feedback string) error
	JournalBug        func(text string) error
}

var lineRE = regexp.MustCompile(`^([A-Z_]+):\s?(.*)$`)

// Process extracts every marker from text, executes its side effect, then
// strips all marker lines (line-anchored plus the mid-line fallback for
// Schedule/Reward/Lesson) and appends a confirmation summary.
func Process(ctx context.Context, text string, d Deps) (ProcessResult, error) {
	var results []Result
	lines := strings.Split(text, "\n")
	var kept []string

	for _, raw := range lines {
		trimmed := strings.TrimSpace(raw)
		kind, payload, ok := matchLineStart(trimmed)
		if !ok {
			stripped, midResults := stripMidLine(ctx, raw, d)
			results = append(results, midResults...)
			if strings.TrimSpace(stripped) != "" {
				kept = append(kept, stripped)
			}
			continue
		}
		r, err := dispatch(ctx, kind, payload, d)
		if err != nil {
			return ProcessResult{}, err
		}
		results = append(results, r)
	}

	out := strings.TrimSpace(strings.Join(kept, "\n"))
	summary := confirmationSummary(results)
	if summary != "" {
		if out != "" {
			out += "\n"
		}
		out += summary
	}

	suppressed := hasHeartbeatOK(results) && out == summary
	return ProcessResult{Text: out, Results: results, Summary: summary, Suppressed: suppressed}, nil
}

func matchLineStart(trimmed string) (Kind, string, bool) {
	if trimmed == string(HeartbeatOK) {
		return HeartbeatOK, "", true
	}
	m := lineRE.FindStringSubmatch(trimmed)
	if m == nil {
		return "", "", false
	}
	kind := Kind(m[1])
	for _, k := range allKinds {
		if k == kind {
			return kind, m[2], true
		}
	}
	return "", "", false
}

// stripMidLine scans a line for mid-line marker occurrences (preceded by
// whitespace or punctuation) for the Schedule/Reward/Lesson subset,
// applies their side effects, and returns the line with the marker and its
// payload removed.
func stripMidLine(ctx context.Context, line string, d Deps) (string, []Result) {
	var results []Result
	for _, kind := range midLineKinds {
		prefix := string(kind) + ":"
		searchFrom := 0
		for {
			rel := strings.Index(line[searchFrom:], prefix)
			if rel == -1 {
				break
			}
			idx := searchFrom + rel
			if idx > 0 {
				prev := line[idx-1]
				if !(prev == ' ' || prev == '\t' || isPunct(prev)) {
					searchFrom = idx + len(prefix)
					continue
				}
			}
			rest := line[idx+len(prefix):]
			payload, remainder := splitPayload(rest)
			r, err := dispatch(ctx, kind, strings.TrimSpace(payload), d)
			if err == nil {
				results = append(results, r)
			}
			line = strings.TrimRight(line[:idx], " \t") + remainder
			searchFrom = 0
		}
	}
	return line, results
}

func isPunct(b byte) bool {
	switch b {
	case '.', ',', ';', ':', '!', '?', '(', ')':
		return true
	}
	return false
}

// splitPayload takes the text after a mid-line marker's colon and returns
// (payload-up-to-sentence-end, remainder-of-line).
func splitPayload(rest string) (payload, remainder string) {
	idx := strings.IndexAny(rest, ".\n")
	if idx == -1 {
		return rest, ""
	}
	return rest[:idx], rest[idx:]
}

func hasHeartbeatOK(results []Result) bool {
	for _, r := range results {
		if _, ok := r.(Suppressed); ok {
			return true
		}
	}
	return false
}

func confirmationSummary(results []Result) string {
	var parts []string
	var created []TaskCreated
	tasksFailed := 0
	for _, r := range results {
		switch v := r.(type) {
		case TaskCreated:
			created = append(created, v)
			if v.SimilarWarning != "" {
				parts = append(parts, v.SimilarWarning)
			}
		case TaskFailed:
			tasksFailed++
		case TaskCanceled:
			parts = append(parts, fmt.Sprintf("task %s canceled", shortID(v.ID)))
		case TaskUpdated:
			parts = append(parts, fmt.Sprintf("task %s updated", shortID(v.ID)))
		case FactUpdated:
			parts = append(parts, fmt.Sprintf("%s updated", v.Key))
		case OutcomeRecorded:
			parts = append(parts, fmt.Sprintf("outcome recorded (%s: %+d)", v.Domain, v.Score))
		case LessonStored:
			parts = append(parts, fmt.Sprintf("lesson learned (%s)", v.Domain))
		case HeartbeatChanged:
			parts = append(parts, v.Detail)
		}
	}
	var head []string
	if len(created) > 0 {
		head = append(head, fmt.Sprintf("%s confirmed: %s", pluralize(len(created), "task"), describeTasks(created)))
	}
	if tasksFailed > 0 {
		head = append(head, fmt.Sprintf("%s failed", pluralize(tasksFailed, "task")))
	}
	all := append(head, parts...)
	if len(all) == 0 {
		return ""
	}
	return strings.Join(all, "; ")
}

// describeTasks renders "Call mom — 2026-03-01T15:00:00 (once)" per task,
// joined for a multi-task confirmation.
func describeTasks(created []TaskCreated) string {
	descs := make([]string, len(created))
	for i, t := range created {
		descs[i] = fmt.Sprintf("%s — %s (%s)", t.Description, t.DueAt.Format("2006-01-02T15:04:05"), t.Repeat)
	}
	return strings.Join(descs, "; ")
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func dispatch(ctx context.Context, kind Kind, payload string, d Deps) (Result, error) {
	switch kind {
	case Schedule, ScheduleAction:
		return dispatchSchedule(ctx, kind, payload, d)
	case CancelTask:
		return dispatchCancelTask(ctx, payload, d)
	case UpdateTask:
		return dispatchUpdateTask(ctx, payload, d)
	case LangSwitch:
		return dispatchFact(ctx, store.FactPreferredLanguage, payload, d)
	case Personality:
		return dispatchFact(ctx, store.FactPersonality, payload, d)
	case HeartbeatAdd:
		return dispatchHeartbeat(func() error {
			if d.Checklist == nil {
				return nil
			}
			return d.Checklist.Add(payload)
		}, fmt.Sprintf("heartbeat item added: %s", payload))
	case HeartbeatRemove:
		return dispatchHeartbeat(func() error {
			if d.Checklist == nil {
				return nil
			}
			return d.Checklist.Remove(payload)
		}, fmt.Sprintf("heartbeat item removed: %s", payload))
	case HeartbeatInterval:
		return dispatchHeartbeatInterval(payload, d)
	case HeartbeatSuppressSection:
		return dispatchHeartbeat(func() error {
			if d.Checklist == nil {
				return nil
			}
			return d.Checklist.SuppressSection(payload)
		}, fmt.Sprintf("heartbeat section suppressed: %s", payload))
	case HeartbeatUnsuppressSection:
		return dispatchHeartbeat(func() error {
			if d.Checklist == nil {
				return nil
			}
			return d.Checklist.UnsuppressSection(payload)
		}, fmt.Sprintf("heartbeat section unsuppressed: %s", payload))
	case ProjectActivate:
		return dispatchFact(ctx, store.FactActiveProject, payload, d)
	case Reward:
		return dispatchReward(ctx, payload, d)
	case Lesson:
		return dispatchLesson(ctx, payload, d)
	case SkillImprove:
		return dispatchSkillImprove(payload, d)
	case BugReport:
		return dispatchBugReport(payload, d)
	case BuildProposal:
		return dispatchFact(ctx, store.FactPendingBuildConfirm, payload, d)
	case ActionOutcome:
		return Noted{Detail: payload}, nil
	case HeartbeatOK:
		return Suppressed{}, nil
	}
	return TaskParseError{Raw: string(kind)}, nil
}

func dispatchFact(ctx context.Context, key, value string, d Deps) (Result, error) {
	value = strings.TrimSpace(value)
	if err := d.Store.UpsertFact(ctx, d.SenderID, key, value); err != nil {
		return nil, err
	}
	return FactUpdated{Key: key, Value: value}, nil
}

func dispatchHeartbeat(fn func() error, detail string) (Result, error) {
	if err := fn(); err != nil {
		return nil, err
	}
	return HeartbeatChanged{Detail: detail}, nil
}

func dispatchHeartbeatInterval(payload string, d Deps) (Result, error) {
	n, err := strconv.Atoi(strings.TrimSpace(payload))
	if err != nil || n < 1 || n > 1440 {
		return TaskParseError{Raw: payload}, nil
	}
	if d.SetHeartbeatSecs != nil {
		d.SetHeartbeatSecs(n * 60)
	}
	return HeartbeatChanged{Detail: fmt.Sprintf("heartbeat interval set to %d minutes", n)}, nil
}

// parseISO8601 accepts both a zone-qualified RFC3339 timestamp and the bare
// local-time form ISO 8601 also allows ("2026-03-01T15:00:00", no offset).
func parseISO8601(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05", s)
}

func dispatchSchedule(ctx context.Context, kind Kind, payload string, d Deps) (Result, error) {
	fields := strings.Split(payload, "|")
	if len(fields) != 3 {
		return TaskParseError{Raw: payload}, nil
	}
	desc := strings.TrimSpace(fields[0])
	due, err := parseISO8601(strings.TrimSpace(fields[1]))
	if err != nil {
		return TaskFailed{Desc: desc, Reason: "invalid date: " + err.Error()}, nil
	}
	repeat := store.Repeat(strings.TrimSpace(fields[2]))

	taskType := store.TaskReminder
	if kind == ScheduleAction {
		taskType = store.TaskAction
	}

	pending, err := d.Store.PendingTasksFor(ctx, d.SenderID)
	if err != nil {
		return nil, err
	}
	warning := similarTaskWarning(desc, pending)

	t, err := d.Store.CreateTask(ctx, &store.Task{
		Channel: d.Channel, SenderID: d.SenderID, ReplyTarget: d.SenderID,
		Description: desc, DueAt: due, Repeat: repeat, TaskType: taskType, Project: d.Project,
	})
	if err != nil {
		return TaskFailed{Desc: desc, Reason: err.Error()}, nil
	}
	return TaskCreated{ID: t.ID, Description: desc, DueAt: due, Repeat: repeat, SimilarWarning: warning}, nil
}

func dispatchCancelTask(ctx context.Context, payload string, d Deps) (Result, error) {
	prefix := strings.TrimSpace(payload)
	if prefix == "" {
		return TaskParseError{Raw: payload}, nil
	}
	t, err := d.Store.FindTaskByIDPrefix(ctx, d.SenderID, prefix)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return TaskParseError{Raw: payload}, nil
	}
	if err := d.Store.CancelTask(ctx, t.ID); err != nil {
		return nil, err
	}
	return TaskCanceled{ID: t.ID}, nil
}

func dispatchUpdateTask(ctx context.Context, payload string, d Deps) (Result, error) {
	fields := strings.Split(payload, "|")
	if len(fields) == 0 {
		return TaskParseError{Raw: payload}, nil
	}
	prefix := strings.TrimSpace(fields[0])
	if prefix == "" {
		return TaskParseError{Raw: payload}, nil
	}
	t, err := d.Store.FindTaskByIDPrefix(ctx, d.SenderID, prefix)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return TaskParseError{Raw: payload}, nil
	}

	var desc string
	var due *time.Time
	var repeat store.Repeat
	if len(fields) > 1 {
		desc = strings.TrimSpace(fields[1])
	}
	if len(fields) > 2 && strings.TrimSpace(fields[2]) != "" {
		if parsed, err := parseISO8601(strings.TrimSpace(fields[2])); err == nil {
			due = &parsed
		}
	}
	if len(fields) > 3 {
		repeat = store.Repeat(strings.TrimSpace(fields[3]))
	}

	if err := d.Store.UpdateTaskFields(ctx, t.ID, desc, due, repeat); err != nil {
		return nil, err
	}
	return TaskUpdated{ID: t.ID}, nil
}

func dispatchReward(ctx context.Context, payload string, d Deps) (Result, error) {
	fields := strings.SplitN(payload, "|", 3)
	if len(fields) != 3 {
		return TaskParseError{Raw: payload}, nil
	}
	score, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil {
		return TaskParseError{Raw: payload}, nil
	}
	domain := strings.TrimSpace(fields[1])
	lesson := strings.TrimSpace(fields[2])
	if _, err := d.Store.RecordOutcome(ctx, d.SenderID, domain, score, lesson, "llm", d.Project); err != nil {
		return nil, err
	}
	return OutcomeRecorded{Domain: domain, Score: score}, nil
}

func dispatchLesson(ctx context.Context, payload string, d Deps) (Result, error) {
	fields := strings.SplitN(payload, "|", 2)
	if len(fields) != 2 {
		return TaskParseError{Raw: payload}, nil
	}
	domain := strings.TrimSpace(fields[0])
	rule := strings.TrimSpace(fields[1])
	if err := d.Store.StoreLesson(ctx, d.SenderID, domain, rule, d.Project); err != nil {
		return nil, err
	}
	return LessonStored{Domain: domain, Rule: rule}, nil
}

func dispatchSkillImprove(payload string, d Deps) (Result, error) {
	fields := strings.SplitN(payload, "|", 2)
	skill, feedback := payload, ""
	if len(fields) == 2 {
		skill, feedback = strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
	}
	if d.JournalSkill != nil {
		if err := d.JournalSkill(skill, feedback); err != nil {
			return nil, err
		}
	}
	return Noted{Detail: "skill feedback logged"}, nil
}

func dispatchBugReport(payload string, d Deps) (Result, error) {
	if d.JournalBug != nil {
		if err := d.JournalBug(payload); err != nil {
			return nil, err
		}
	}
	return Noted{Detail: "bug report logged"}, nil
}

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "to": true, "of": true, "and": true,
	"for": true, "in": true, "on": true, "at": true, "with": true, "my": true,
	"do": true, "is": true, "it": true, "this": true, "that": true,
}

// similarTaskWarning returns a human-readable warning if desc overlaps
// ≥50% of its significant words (after stop-word filtering) with any
// existing pending task's description.
func similarTaskWarning(desc string, pending []*store.Task) string {
	words := significantWords(desc)
	if len(words) == 0 {
		return ""
	}
	for _, t := range pending {
		other := significantWords(t.Description)
		if len(other) == 0 {
			continue
		}
		overlap := 0
		for w := range words {
			if other[w] {
				overlap++
			}
		}
		ratio := float64(overlap) / float64(len(words))
		if ratio >= 0.5 {
			return fmt.Sprintf("similar to existing task: %s", t.Description)
		}
	}
	return ""
}

func significantWords(text string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(text)) {
		w = strings.Trim(w, ".,;:!?()")
		if w == "" || stopWords[w] {
			continue
		}
		out[w] = true
	}
	return out
}
