package tui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/huh"

	"evolog/cli/internal/config"
	"evolog/cli/internal/notify"
	"evolog/cli/internal/settings"
)

// modelFetchTimeout bounds each model list fetch made while the host is edited.
const modelFetchTimeout = 5 * time.Second

// Panel is the interactive settings backend: one form with the host input
// and a model select filled from the endpoint at the host being edited. Saving goes through the
// Surface, so validation is shared with every other backend.
type Panel struct {
	Notifier notify.Notifier
}

// Render implements settings.Renderer. Aborting the form saves nothing.
func (p Panel) Render(ctx context.Context, s settings.Surface) error {
	n := p.Notifier
	if n == nil {
		n = notify.Discard
	}
	v, err := s.Values(ctx)
	if err != nil {
		return err
	}
	host := v.Host
	hostField := huh.NewInput().
		Title("Ollama host").
		Placeholder(config.DefaultHost).
		Value(&host).
		Validate(config.ValidateHost)
	model := v.Model
	modelField := huh.NewSelect[string]().
		Title("Model").
		OptionsFunc(modelOptionsFunc(ctx, s, &host, v.Model), &host).
		Value(&model)
	save := true
	confirm := huh.NewConfirm().Title("Save settings?").Affirmative("Save").Negative("Discard").Value(&save)

	form := huh.NewForm(huh.NewGroup(hostField, modelField, confirm).Title("EvoLog settings"))
	if err := runForm(ctx, form); err != nil {
		if errors.Is(err, ErrCanceled) {
			n.Notify(notify.LevelInfo, "Settings unchanged.")
			return nil
		}
		return err
	}
	if !save {
		n.Notify(notify.LevelInfo, "Settings unchanged.")
		return nil
	}
	if err := s.SetValues(ctx, settings.Values{Host: host, Model: model}); err != nil {
		return err
	}
	n.Notify(notify.LevelSuccess, "Settings saved.")
	return nil
}

// modelOptionsFunc lists the models served at *host each time it is called,
// so the select follows edits to the host field. An invalid or unreachable
// host yields the current model marked offline.
func modelOptionsFunc(ctx context.Context, s settings.Surface, host *string, current string) func() []huh.Option[string] {
	return func() []huh.Option[string] {
		var fetched []string
		if h := strings.TrimSpace(*host); config.ValidateHost(h) == nil {
			fetchCtx, cancel := context.WithTimeout(ctx, modelFetchTimeout)
			fetched = s.RefreshModels(fetchCtx, h)
			cancel()
		}
		opts, _ := settings.ModelOptions(fetched, current)
		return huhOptions(opts)
	}
}
