// Package omegaerr defines the four-category error taxonomy shared by
// every component: Config, Memory, Provider, and Channel failures each
// carry a user-facing message and wrap the underlying cause.
package omegaerr

import "fmt"

// Category is one of the four closed error kinds the gateway recognizes.
type Category string

const (
	CategoryConfig   Category = "config"
	CategoryMemory   Category = "memory"
	CategoryProvider Category = "provider"
	CategoryChannel  Category = "channel"
)

// Error is the concrete type behind every categorized failure in the
// gateway. Message is meant for end users; Err (if present) carries the
// underlying cause for logs.
type Error struct {
	Category Category
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Category, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Category, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// UserFacing renders the message shown to the end user for categories
// that are surfaced at all (Channel errors are logged only, never shown).
func (e *Error) UserFacing() string {
	switch e.Category {
	case CategoryMemory:
		return "Memory error: " + e.Message
	case CategoryProvider:
		return "Provider error: " + e.Message
	case CategoryConfig:
		return "Configuration error: " + e.Message
	default:
		return e.Message
	}
}

func new_(cat Category, msg string, cause error) *Error {
	return &Error{Category: cat, Message: msg, Err: cause}
}

func Config(msg string, cause error) *Error   { return new_(CategoryConfig, msg, cause) }
func Memory(msg string, cause error) *Error   { return new_(CategoryMemory, msg, cause) }
func Provider(msg string, cause error) *Error { return new_(CategoryProvider, msg, cause) }
func Channel(msg string, cause error) *Error  { return new_(CategoryChannel, msg, cause) }

// Configf/Memoryf/... are printf-style conveniences, mirroring how the
// rest of the codebase wraps errors with fmt.Errorf.
func Configf(cause error, format string, args ...any) *Error {
	return new_(CategoryConfig, fmt.Sprintf(format, args...), cause)
}
func Memoryf(cause error, format string, args ...any) *Error {
	return new_(CategoryMemory, fmt.Sprintf(format, args...), cause)
}
func Providerf(cause error, format string, args ...any) *Error {
	return new_(CategoryProvider, fmt.Sprintf(format, args...), cause)
}
func Channelf(cause error, format string, args ...any) *Error {
	return new_(CategoryChannel, fmt.Sprintf(format, args...), cause)
}

// CategoryOf extracts the category of err if it is (or wraps) an *Error.
func CategoryOf(err error) (Category, bool) {
	var e *Error
	if as(err, &e) {
		return e.Category, true
	}
	return "", false
}

func as(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}


