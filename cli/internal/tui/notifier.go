package tui

import (
	"fmt"
	"io"
	"sync"

	"evolog/cli/internal/notify"
)

// Console writes notifications as single styled lines. Safe for concurrent use.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	styles Styles
	quiet  bool
}

// ConsoleOption configures a Console.
type ConsoleOption func(*Console)

// WithColor forces color on or off; the default follows HasColorSupport.
func WithColor(on bool) ConsoleOption {
	return func(c *Console) { c.styles = NewStyles(on) }
}

// WithQuiet drops info and success notifications.
func WithQuiet(quiet bool) ConsoleOption {
	return func(c *Console) { c.quiet = quiet }
}

// NewConsole returns a Console writing to w.
func NewConsole(w io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{w: w, styles: NewStyles(HasColorSupport())}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify implements notify.Notifier.
func (c *Console) Notify(level notify.Level, msg string) {
	if c.quiet && (level == notify.LevelInfo || level == notify.LevelSuccess) {
		return
	}
	var line string
	switch level {
	case notify.LevelSuccess:
		line = c.styles.Success.Render("✓ " + msg)
	case notify.LevelWarn:
		line = c.styles.Warn.Render("⚠ " + msg)
	case notify.LevelError:
		line = c.styles.Error.Render("✗ " + msg)
	default:
		line = c.styles.Info.Render(msg)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.w, line)
}

// Hint writes a muted secondary line, e.g. where the message was saved.
func (c *Console) Hint(msg string) {
	if c.quiet {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.w, c.styles.Muted.Render(msg))
}
