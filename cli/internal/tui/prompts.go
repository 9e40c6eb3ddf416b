package tui

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"evolog/cli/internal/changes"
	"evolog/cli/internal/config"
	"evolog/cli/internal/settings"
)

var (
	// ErrNotInteractive is returned when a prompt needs a terminal and stdin is not one.
	ErrNotInteractive = errors.New("interactive prompt requires a terminal")
	// ErrCanceled is returned when the user aborts a prompt (Esc or Ctrl-C).
	ErrCanceled = errors.New("prompt canceled")
)

// Unstaged choice labels.
const (
	LabelStageAll    = "Stage All & Generate"
	LabelUseUnstaged = "Read Unstaged"
	LabelCancel      = "Cancel"
)

// IsInteractive reports whether f is a terminal.
func IsInteractive(f *os.File) bool {
	return f != nil && term.IsTerminal(int(f.Fd()))
}

// Theme maps evolog's colors onto huh's base theme.
func Theme() *huh.Theme {
	t := huh.ThemeBase()
	if !HasColorSupport() {
		return t
	}
	t.Focused.Base = t.Focused.Base.BorderForeground(ColorPrimary)
	t.Focused.Title = t.Focused.Title.Foreground(ColorPrimary)
	t.Focused.SelectSelector = t.Focused.SelectSelector.Foreground(ColorPrimary)
	t.Focused.SelectedOption = t.Focused.SelectedOption.Foreground(ColorPrimary)
	t.Focused.ErrorMessage = t.Focused.ErrorMessage.Foreground(ColorError)
	t.Focused.ErrorIndicator = t.Focused.ErrorIndicator.Foreground(ColorError)
	t.Focused.Description = t.Focused.Description.Foreground(ColorMuted)
	t.Blurred.Title = t.Blurred.Title.Foreground(ColorMuted)
	return t
}

// runForm runs a huh form on the terminal. User aborts map to ErrCanceled.
func runForm(ctx context.Context, form *huh.Form) error {
	if !IsInteractive(os.Stdin) {
		return ErrNotInteractive
	}
	_, accessible := os.LookupEnv("ACCESSIBLE")
	err := form.WithTheme(Theme()).WithAccessible(accessible).RunWithContext(ctx)
	if errors.Is(err, huh.ErrUserAborted) || errors.Is(err, context.Canceled) {
		return ErrCanceled
	}
	if err != nil {
		return fmt.Errorf("prompt: %w", err)
	}
	return nil
}

// UnstagedOptions are the choices offered when only unstaged changes exist.
func UnstagedOptions() []huh.Option[changes.Choice] {
	return []huh.Option[changes.Choice]{
		huh.NewOption(LabelStageAll, changes.ChoiceStageAll),
		huh.NewOption(LabelUseUnstaged, changes.ChoiceUseUnstaged),
		huh.NewOption(LabelCancel, changes.ChoiceCancel),
	}
}

// UnstagedChooser asks on the terminal what to do with unstaged changes.
// Aborting the prompt counts as Cancel.
type UnstagedChooser struct{}

// ChooseUnstaged implements changes.Chooser.
func (UnstagedChooser) ChooseUnstaged(ctx context.Context) (changes.Choice, error) {
	choice := changes.ChoiceStageAll
	field := huh.NewSelect[changes.Choice]().
		Title("No staged changes found. What would you like to do?").
		Options(UnstagedOptions()...).
		Value(&choice)
	if err := runForm(ctx, huh.NewForm(huh.NewGroup(field))); err != nil {
		if errors.Is(err, ErrCanceled) {
			return changes.ChoiceCancel, nil
		}
		return changes.ChoiceCancel, err
	}
	return choice, nil
}

// HostInput prompts for the endpoint host, validated as an http(s) URL.
func HostInput(ctx context.Context, current string) (string, error) {
	value := current
	field := huh.NewInput().
		Title("Ollama host").
		Placeholder(config.DefaultHost).
		Value(&value).
		Validate(config.ValidateHost)
	if err := runForm(ctx, huh.NewForm(huh.NewGroup(field))); err != nil {
		return "", err
	}
	return value, nil
}

// ModelSelect prompts for a model among opts, starting on opts[selected].
func ModelSelect(ctx context.Context, opts []settings.Option, selected int) (string, error) {
	field, value := modelField(opts, selected)
	if err := runForm(ctx, huh.NewForm(huh.NewGroup(field))); err != nil {
		return "", err
	}
	return *value, nil
}

func modelField(opts []settings.Option, selected int) (*huh.Select[string], *string) {
	value := new(string)
	if selected >= 0 && selected < len(opts) {
		*value = opts[selected].Value
	}
	return huh.NewSelect[string]().Title("Model").Options(huhOptions(opts)...).Value(value), value
}

func huhOptions(opts []settings.Option) []huh.Option[string] {
	out := make([]huh.Option[string], 0, len(opts))
	for _, o := range opts {
		out = append(out, huh.NewOption(o.Label, o.Value))
	}
	return out
}
