package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"evolog/cli/internal/changes"
	"evolog/cli/internal/commitmsg"
	"evolog/cli/internal/config"
	"evolog/cli/internal/erruser"
	"evolog/cli/internal/git"
	"evolog/cli/internal/lock"
	"evolog/cli/internal/notify"
	"evolog/cli/internal/tui"
)

const unstagedAsk = "ask"

func (a *app) newHelloCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hello",
		Short: "Show the greeting",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			commitmsg.New(commitmsg.Dependencies{Log: a.log, Notifier: a.console}).Greet()
		},
	}
}

func (a *app) newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "generate",
		Aliases: []string{"commit"},
		Short:   "Generate a commit message from staged (or unstaged) changes",
		Long: `Generate a commit message from the repository's changes.

Staged changes are used when present. With only unstaged changes evolog asks
whether to stage everything, use the unstaged diff, or cancel; --unstaged
answers that question up front for scripts.

The message is printed and saved as the pending commit message; commit with
"git commit -e -F <path>" using the path shown.`,
		Args: cobra.NoArgs,
		RunE: a.runGenerate,
	}
	cmd.Flags().String("host", "", "Ollama host URL (overrides config and env)")
	cmd.Flags().String("model", "", "Model name (overrides config and env)")
	cmd.Flags().Duration("timeout", 0, "Bound on the generation request, e.g. 90s (0 = no bound)")
	cmd.Flags().Int("max-diff-bytes", 0, "Truncate the diff to this many bytes (0 = send it whole)")
	cmd.Flags().String("unstaged", unstagedAsk, "With only unstaged changes: ask, stage, use or cancel")
	return cmd
}

// overridesFromFlags returns Overrides for the flags the user set.
func overridesFromFlags(cmd *cobra.Command) *config.Overrides {
	o := &config.Overrides{}
	set := false
	if f := cmd.Flags().Lookup("host"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetString("host")
		o.Host = &v
		set = true
	}
	if f := cmd.Flags().Lookup("model"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetString("model")
		o.Model = &v
		set = true
	}
	if f := cmd.Flags().Lookup("timeout"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetDuration("timeout")
		o.Timeout = &v
		set = true
	}
	if f := cmd.Flags().Lookup("max-diff-bytes"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetInt("max-diff-bytes")
		o.MaxDiffBytes = &v
		set = true
	}
	if !set {
		return nil
	}
	return o
}

// chooserFor maps --unstaged to a Chooser. "ask" prompts on a terminal and
// cancels with a hint otherwise.
func (a *app) chooserFor(mode string) (changes.Chooser, error) {
	if mode == unstagedAsk {
		if a.interactive() {
			return tui.UnstagedChooser{}, nil
		}
		return changes.ChooserFunc(func(context.Context) (changes.Choice, error) {
			a.console.Notify(notify.LevelWarn, "Only unstaged changes found; rerun with --unstaged=stage or --unstaged=use.")
			return changes.ChoiceCancel, nil
		}), nil
	}
	choice, err := changes.ParseChoice(mode)
	if err != nil {
		return nil, erruser.New("Invalid --unstaged value; use ask, stage, use or cancel.", err)
	}
	return changes.FixedChooser(choice), nil
}

func (a *app) runGenerate(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	mode, _ := cmd.Flags().GetString("unstaged")
	chooser, err := a.chooserFor(mode)
	if err != nil {
		return err
	}
	if t, _ := cmd.Flags().GetDuration("timeout"); t < 0 {
		return erruser.New("--timeout must not be negative.", nil)
	}
	if n, _ := cmd.Flags().GetInt("max-diff-bytes"); n < 0 {
		return erruser.New("--max-diff-bytes must not be negative.", nil)
	}
	store, repo, err := a.configStore(ctx, overridesFromFlags(cmd))
	if err != nil {
		return err
	}

	orch := commitmsg.New(commitmsg.Dependencies{
		Log:       a.log,
		Notifier:  a.console,
		Generator: a.ollamaClient(),
		Config:    store,
		Repo:      repo,
		Chooser:   chooser,
		Locker:    repoLocker(repo),
	})
	res := orch.Run(ctx)
	a.log.Info().
		Str("state", res.State.String()).
		Str("kind", res.Kind.String()).
		Str("source", res.Source.String()).
		Dur("elapsed", res.Elapsed).
		Msg("generate finished")

	switch res.State {
	case commitmsg.StateDone:
		if res.Message == "" {
			return nil
		}
		fmt.Fprintln(a.stdout, res.Message)
		if path, err := repo.PendingMessagePath(ctx); err == nil {
			a.console.Hint(fmt.Sprintf("Saved to %s. Commit with: git commit -e -F %s", path, path))
		}
		return nil
	case commitmsg.StateCancelled:
		return nil
	default:
		if res.Kind == commitmsg.KindInsertionFailed && res.Message != "" {
			// The text is still useful; print it for manual use.
			fmt.Fprintln(a.stdout, res.Message)
		}
		if d := erruser.Details(res.Err); d != "" {
			fmt.Fprintf(a.stderr, "Details: %s\n", d)
		}
		return errExit(1)
	}
}

// repoLocker takes the generation lock in the repository's state directory.
func repoLocker(repo *git.Repo) commitmsg.Locker {
	return commitmsg.LockerFunc(func(ctx context.Context) (func(), error) {
		dir, err := repo.StateDir(ctx)
		if err != nil {
			return nil, err
		}
		return lock.Acquire(dir)
	})
}
