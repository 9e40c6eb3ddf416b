package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"evolog/cli/internal/ollama"
)

// doctorTimeout bounds the reachability check.
const doctorTimeout = 10 * time.Second

func (a *app) newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Verify environment (Git repository, Ollama host, model)",
		Args:  cobra.NoArgs,
		RunE:  a.runDoctor,
	}
}

func (a *app) runDoctor(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	store, repo, err := a.configStore(ctx, nil)
	if err != nil {
		return err
	}
	if root, err := repo.Root(ctx); err != nil {
		fmt.Fprintln(a.stdout, "Git: no repository here")
	} else {
		fmt.Fprintf(a.stdout, "Git: %s\n", root)
	}
	cfg, err := store.Load(ctx)
	if err != nil {
		return err
	}

	checkCtx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()
	result, err := a.ollamaClient().Check(checkCtx, cfg.Host, cfg.Model)
	if err != nil {
		if errors.Is(err, ollama.ErrUnreachable) {
			fmt.Fprintf(a.stderr, "Ollama unreachable at %s. Is the server running? For local: ollama serve.\n", cfg.Host)
			fmt.Fprintf(a.stderr, "Details: %v\n", err)
			return errExit(2)
		}
		fmt.Fprintln(a.stderr, err.Error())
		return errExit(1)
	}
	fmt.Fprintf(a.stdout, "Ollama OK at %s\n", cfg.Host)
	if !result.ModelPresent {
		fmt.Fprintf(a.stderr, "Model %q not found. Pull it with: ollama pull %s\n", cfg.Model, cfg.Model)
		return errExit(1)
	}
	fmt.Fprintf(a.stdout, "Model: %s\n", cfg.Model)
	return nil
}
