package monitor

import "time"

// Message is a standardized observability packet describing one user or
// assistant message, so that different monitors (CLI, log, dashboard) can
// display or persist it uniformly.
type Message struct {
	Timestamp   time.Time
	MessageType string // "USER" or "ASSISTANT"
	ChannelID   string
	Username    string
	Content     string
}

// Monitor is an observability plugin: Start and Stop bracket its lifetime
// and OnMessage receives each message passed to it. The gateway pipeline
// does not call OnMessage.
type Monitor interface {
	Start() error
	Stop() error
	OnMessage(msg Message)
}

// SetupEnvironment initializes the global slog logger at the given level,
// prints the startup banner, and returns the default CLI monitor.
func SetupEnvironment(logLevel string) Monitor {
	PrintBanner()
	SetupSlog(logLevel)
	return NewCLIMonitor()
}


