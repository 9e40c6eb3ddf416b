// Package notify defines the user-visible status channel shared by the
// workflow and its hosts. Rendering lives with the host (see package tui).
package notify

// Level styles a notification.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelSuccess:
		return "success"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

// Notifier shows one status message to the user.
type Notifier interface {
	Notify(level Level, msg string)
}

// Func adapts a function to Notifier.
type Func func(level Level, msg string)

// Notify calls f.
func (f Func) Notify(level Level, msg string) { f(level, msg) }

// Discard drops every notification.
var Discard Notifier = Func(func(Level, string) {})
