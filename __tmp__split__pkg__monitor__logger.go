package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type debugIDKey struct{}

// WithDebugID attaches a request-scoped debug id to ctx; CustomHandler
// renders it on every log line produced while that context is in scope.
func WithDebugID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, debugIDKey{}, id)
}

// DebugIDFromContext extracts the id set by WithDebugID, if any.
func DebugIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(debugIDKey{}).(string)
	return id, ok && id != ""
}

// CustomHandler implements slog.Handler, rendering "[TIME] [LEVEL] [DEBUG_ID] msg attrs...".
type CustomHandler struct {
	w     io.Writer
	opts  slog.HandlerOptions
	attrs []slog.Attr
}

func NewCustomHandler(w io.Writer, opts slog.HandlerOptions) *CustomHandler {
	return &CustomHandler{w: w, opts: opts}
}

func (h *CustomHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *CustomHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := bytes.NewBuffer(nil)

	fmt.Fprintf(buf, "[%s] [%s]", r.Time.Format("2006-01-02 15:04:05"), r.Level)

	if ctx != nil {
		if id, ok := DebugIDFromContext(ctx); ok {
			fmt.Fprintf(buf, " [%s]", id)
		}
	}

	fmt.Fprintf(buf, " %s", r.Message)

	for _, a := range h.attrs {
		h.appendAttr(buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, a)
		return true
	})

	buf.WriteString("\n")
	h.w.Write(buf.Bytes())
	return nil
}

func (h *CustomHandler) appendAttr(buf *bytes.Buffer, a slog.Attr) {
	buf.WriteString(" ")
	buf.WriteString(a.Key)
	buf.WriteString("=")

	val := a.Value.Resolve()
	switch val.Kind() {
	case slog.KindString:
		fmt.Fprintf(buf, "%q", val.String())
	case slog.KindTime:
		buf.WriteString(val.Time().Format(time.RFC3339))
	default:
		fmt.Fprintf(buf, "%v", val.Any())
	}
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CustomHandler{w: h.w, opts: h.opts, attrs: append(h.attrs, attrs...)}
}

func (h *CustomHandler) WithGroup(name string) slog.Handler {
	// Grouping is not needed by anything this handler currently logs.
	return h
}

// SetupSlog installs the global slog logger backed by CustomHandler at the
// given level ("debug", "info", "warn", "error"; default "info").
func SetupSlog(levelStr string) {
	var level slog.Level
	switch strings.ToLower(levelStr) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := NewCustomHandler(os.Stderr, slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// PrintBanner prints the startup banner.
func PrintBanner() {
	const banner = `
  ___  __  __ _____ ____    _
 / _ \|  \/  | ____/ ___|  / \
| | | | |\/| |  _|| |  _  / _ \
| |_| | |  | | |__| |_| |/ ___ \
 \___/|_|  |_|_____\____/_/   \_\
`
	fmt.Println(banner)
}


