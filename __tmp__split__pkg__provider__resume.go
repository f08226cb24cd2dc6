package provider

import (
	"context"
	"fmt"
	"log/slog"
)

// AutoResume wraps a Provider with the session-continuation retry
// described in §4.5: if Context.Overrides.SessionID is set, try
// continuation first; on a session-not-found error, retry without the
// session id up to MaxAttempts times.
type AutoResume struct {
	Inner       Provider
	MaxAttempts int
}

func (a *AutoResume) Complete(ctx context.Context, c *Context) (CompletionResult, error) {
	max := a.MaxAttempts
	if max <= 0 {
		max = 1
	}

	attempt := *c
	var lastErr error
	for i := 0; i <= max; i++ {
		res, err := a.Inner.Complete(ctx, &attempt)
		if err == nil {
			return res, nil
		}
		lastErr = err
		if attempt.Overrides.SessionID != "" && a.Inner.IsSessionNotFoundError(err) {
			slog.Warn("provider session not found, retrying without session", "attempt", i+1)
			attempt.Overrides.SessionID = ""
			continue
		}
		break
	}
	return CompletionResult{}, fmt.Errorf("auto-resume: all attempts failed: %w", lastErr)
}

func (a *AutoResume) IsTransientError(err error) bool       { return a.Inner.IsTransientError(err) }
func (a *AutoResume) IsSessionNotFoundError(err error) bool { return a.Inner.IsSessionNotFoundError(err) }


