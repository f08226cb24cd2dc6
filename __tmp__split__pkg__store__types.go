package store

import "time"

// ConversationStatus is the lifecycle state of a Conversation.
type ConversationStatus string

const (
	ConversationActive ConversationStatus = "active"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation groups a run of messages for one (channel, sender, project).
// At most one row may be ConversationActive per that triple.
type Conversation struct {
	ID           string
	Channel      string
	SenderID     string
	Project      string
	Status       ConversationStatus
	LastActivity time.Time
	Summary      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// MessageRole distinguishes the two roles a stored Message can carry.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// Message is one append-only turn of a Conversation.
type Message struct {
	ID             string
	ConversationID string
	Role           MessageRole
	Content        string
	MetadataJSON   string
	Timestamp      time.Time
}

// Fact is a (sender_id, key) → value row. Some keys are internal state
// (welcomed, active_project, preferred_language, onboarding_stage,
// pending_setup, pending_build_confirm); the rest are user-authored.
type Fact struct {
	SenderID  string
	Key       string
	Value     string
	UpdatedAt time.Time
}

// Internal fact keys reserved by the orchestrator; the summarizer rejects
// an LLM-proposed fact using any of these as a key.
const (
	FactWelcomed            = "welcomed"
	FactActiveProject       = "active_project"
	FactPreferredLanguage   = "preferred_language"
	FactOnboardingStage     = "onboarding_stage"
	FactPendingSetup        = "pending_setup"
	FactPendingBuildConfirm = "pending_build_confirm"
	FactPersonality         = "personality"
)

var reservedFactKeys = map[string]bool{
	FactWelcomed:            true,
	FactActiveProject:       true,
	FactPreferredLanguage:   true,
	FactOnboardingStage:     true,
	FactPendingSetup:        true,
	FactPendingBuildConfirm: true,
	FactPersonality:         true,
}

// IsReservedFactKey reports whether key is a system-owned fact name that
// the summarizer's free-text fact extraction must never overwrite.
func IsReservedFactKey(key string) bool { return reservedFactKeys[key] }

// Repeat is a Task's recurrence period.
type Repeat string

const (
	RepeatOnce    Repeat = "once"
	RepeatDaily   Repeat = "daily"
	RepeatWeekly  Repeat = "weekly"
	RepeatMonthly Repeat = "monthly"
)

// TaskType distinguishes a plain reminder from an autonomous action.
type TaskType string

const (
	TaskReminder TaskType = "reminder"
	TaskAction   TaskType = "action"
)

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
)

// Task is a scheduled reminder or autonomous action.
type Task struct {
	ID          string
	Channel     string
	SenderID    string
	ReplyTarget string
	Description string
	DueAt       time.Time
	Repeat      Repeat
	TaskType    TaskType
	Project     string
	Status      TaskStatus
	CreatedAt   time.Time
}

// Outcome is an append-only reward/penalty event.
type Outcome struct {
	ID        string
	SenderID  string
	Domain    string
	Score     int
	Lesson    string
	Source    string
	Project   string
	Timestamp time.Time
}

// Lesson is a content-addressed behavioral rule, deduped within
// (sender_id, domain, project); at most 10 are retained per that scope.
type Lesson struct {
	ID          string
	SenderID    string
	Domain      string
	Rule        string
	Project     string
	Occurrences int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ProjectSession stores the opaque provider session token for one
// (channel, sender_id, project) scope.
type ProjectSession struct {
	Channel   string
	SenderID  string
	Project   string
	SessionID string
	UpdatedAt time.Time
}

// AuditStatus is the outcome recorded for one inbound interaction.
type AuditStatus string

const (
	AuditOK     AuditStatus = "ok"
	AuditError  AuditStatus = "error"
	AuditDenied AuditStatus = "denied"
)

// AuditLog is one row per inbound interaction, written exactly once.
type AuditLog struct {
	ID            string
	Channel       string
	SenderID      string
	SenderName    string
	InputText     string
	OutputText    string
	ProviderUsed  string
	Model         string
	ProcessingMs  int64
	Status        AuditStatus
	DenialReason  string
	Timestamp     time.Time
}


