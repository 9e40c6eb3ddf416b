package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"evolog/cli/internal/erruser"
	"evolog/cli/internal/notify"
	"evolog/cli/internal/settings"
	"evolog/cli/internal/tui"
)

func (a *app) newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Open the settings panel (lists settings when not on a terminal)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := a.settingsService(cmd.Context())
			if err != nil {
				return err
			}
			var r settings.Renderer = settings.ListView{Out: a.stdout}
			if a.interactive() {
				r = tui.Panel{Notifier: a.console}
			}
			return r.Render(cmd.Context(), svc)
		},
	}
	cmd.AddCommand(a.newSettingsShowCmd())
	cmd.AddCommand(a.newSettingsModelsCmd())
	cmd.AddCommand(a.newSettingsHostCmd())
	cmd.AddCommand(a.newSettingsModelCmd())
	return cmd
}

func (a *app) newSettingsShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective host and model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.renderList(cmd, false)
		},
	}
	cmd.Flags().StringP("output", "o", settings.FormatText, "Output format: text, yaml or json")
	return cmd
}

func (a *app) newSettingsModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models served by the configured host",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.renderList(cmd, true)
		},
	}
	cmd.Flags().StringP("output", "o", settings.FormatText, "Output format: text, yaml or json")
	return cmd
}

func (a *app) renderList(cmd *cobra.Command, models bool) error {
	svc, err := a.settingsService(cmd.Context())
	if err != nil {
		return err
	}
	format, _ := cmd.Flags().GetString("output")
	return settings.ListView{Out: a.stdout, Format: format, Models: models}.Render(cmd.Context(), svc)
}

func (a *app) newSettingsHostCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "host [URL]",
		Short: "Set the Ollama host (prompts when URL is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.settingsService(ctx)
			if err != nil {
				return err
			}
			var host string
			if len(args) == 1 {
				host = args[0]
			} else {
				if !a.interactive() {
					return erruser.New("Provide the host URL, e.g. evolog settings host http://localhost:11434", nil)
				}
				v, err := svc.Values(ctx)
				if err != nil {
					return err
				}
				host, err = tui.HostInput(ctx, v.Host)
				if err != nil {
					return a.promptErr(err)
				}
			}
			if err := svc.SetHost(ctx, host); err != nil {
				return err
			}
			a.console.Notify(notify.LevelSuccess, fmt.Sprintf("Ollama host set to %s", host))
			return nil
		},
	}
}

func (a *app) newSettingsModelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "model [NAME]",
		Short: "Set the model (choose from the host's models when NAME is omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.settingsService(ctx)
			if err != nil {
				return err
			}
			var model string
			if len(args) == 1 {
				model = args[0]
			} else {
				if !a.interactive() {
					return erruser.New("Provide the model name, e.g. evolog settings model llama3.1:8b", nil)
				}
				v, err := svc.Values(ctx)
				if err != nil {
					return err
				}
				candidates := settings.ModelCandidates(svc.RefreshModels(ctx, v.Host))
				opts, selected := settings.ModelOptions(candidates, v.Model)
				model, err = tui.ModelSelect(ctx, opts, selected)
				if err != nil {
					return a.promptErr(err)
				}
			}
			if err := svc.SetModel(ctx, model); err != nil {
				return err
			}
			a.console.Notify(notify.LevelSuccess, fmt.Sprintf("Model set to %s", model))
			return nil
		},
	}
}

// promptErr treats an aborted prompt as a no-op.
func (a *app) promptErr(err error) error {
	if errors.Is(err, tui.ErrCanceled) {
		a.console.Notify(notify.LevelInfo, "Settings unchanged.")
		return nil
	}
	return err
}
