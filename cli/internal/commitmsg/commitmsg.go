// Package commitmsg runs the generate-commit-message workflow: resolve which
// diff to use, build the prompt, ask the model, and deliver the text to the
// repository's pending commit message. Every state change is reported to the
// user through a notify.Notifier and recorded in the diagnostic log.
package commitmsg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"evolog/cli/internal/changes"
	"evolog/cli/internal/config"
	"evolog/cli/internal/diff"
	"evolog/cli/internal/erruser"
	"evolog/cli/internal/notify"
	"evolog/cli/internal/prompt"
)

// Greeting is shown by the "show greeting" command.
const Greeting = "EvoLog-AI: Hello World!"

// flightKey allows one active generation per Orchestrator.
const flightKey = "generate"

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, host, model, prompt string) (string, error)
}

// ConfigSource returns the effective configuration; it is read on every run.
type ConfigSource interface {
	Load(ctx context.Context) (*config.Config, error)
}

// Repository is the version-control collaborator.
type Repository interface {
	changes.Reader
	// Ready returns once the repository can accept a commit message.
	Ready(ctx context.Context) error
	SetCommitMessage(ctx context.Context, msg string) error
}

// Locker takes the cross-process generation lock. A held lock must be
// reported with an error wrapping lock.ErrLocked.
type Locker interface {
	Lock(ctx context.Context) (release func(), err error)
}

// LockerFunc adapts a function to Locker.
type LockerFunc func(ctx context.Context) (func(), error)

// Lock calls f.
func (f LockerFunc) Lock(ctx context.Context) (func(), error) { return f(ctx) }

// Dependencies is everything a run touches. Log, Notifier, Chooser and
// Locker are optional.
type Dependencies struct {
	Log       zerolog.Logger
	Notifier  notify.Notifier
	Generator Generator
	Config    ConfigSource
	Repo      Repository
	// Chooser decides what to do when only unstaged changes exist; nil cancels.
	Chooser changes.Chooser
	Locker  Locker
}

// Result is the outcome of one run.
type Result struct {
	State  State
	Source changes.Source
	// Message is the generated text; kept on insertion failure for recovery.
	Message string
	Kind    Kind
	// Err carries a user-facing message (erruser) wrapping the cause.
	Err       error
	Summary   diff.Summary
	Truncated bool
	Elapsed   time.Duration
}

// Orchestrator runs the workflow. Safe for concurrent use: overlapping Run
// calls share the active run's Result.
type Orchestrator struct {
	deps   Dependencies
	log    zerolog.Logger
	flight singleflight.Group

	mu     sync.Mutex
	active bool
}

// New builds an Orchestrator. Generator, Config and Repo are required.
func New(deps Dependencies) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notify.Discard
	}
	return &Orchestrator{
		deps: deps,
		log:  deps.Log.With().Str("component", "commitmsg").Logger(),
	}
}

// Greet shows the greeting notification.
func (o *Orchestrator) Greet() {
	o.log.Info().Msg("greeting")
	o.deps.Notifier.Notify(notify.LevelInfo, Greeting)
}

// Run executes one generation. When a run is already active in this process
// the call joins it and returns its Result; the run keeps the context of the
// call that started it, so cancelling that call cancels every joiner too. A
// joiner whose own ctx ends first stops waiting and gets StateCancelled while
// the active run continues.
func (o *Orchestrator) Run(ctx context.Context) Result {
	o.mu.Lock()
	joined := o.active
	o.active = true
	ch := o.flight.DoChan(flightKey, func() (any, error) {
		res := o.run(ctx)
		o.mu.Lock()
		o.flight.Forget(flightKey)
		o.active = false
		o.mu.Unlock()
		return res, nil
	})
	o.mu.Unlock()

	if !joined {
		return (<-ch).Val.(Result)
	}
	o.log.Debug().Msg("joined active generation")
	select {
	case r := <-ch:
		return r.Val.(Result)
	case <-ctx.Done():
		o.log.Debug().Msg("stopped waiting for active generation")
		return Result{State: StateCancelled}
	}
}

func (o *Orchestrator) run(ctx context.Context) (res Result) {
	start := time.Now()
	defer func() { res.Elapsed = time.Since(start) }()

	cfg, err := o.deps.Config.Load(ctx)
	if err != nil {
		return o.fail(res, fmt.Errorf("%w: %w", ErrConfig, err))
	}
	log := o.log.With().Str("host", cfg.Host).Str("model", cfg.Model).Logger()

	if o.deps.Locker != nil {
		release, err := o.deps.Locker.Lock(ctx)
		if err != nil {
			return o.fail(res, err)
		}
		defer release()
	}

	o.transition(StateResolvingChanges, notify.LevelInfo, "Reading changes...")
	chooser := &promptingChooser{o: o, inner: o.deps.Chooser}
	resolved, err := changes.Resolve(ctx, o.deps.Repo, chooser)
	switch {
	case errors.Is(err, changes.ErrNoChanges):
		return o.finish(res, StateDone, notify.LevelWarn, "No changes detected.")
	case errors.Is(err, changes.ErrNothingToAnalyze):
		return o.finish(res, StateDone, notify.LevelWarn, "No changes available to analyze.")
	case errors.Is(err, changes.ErrCancelled), isCanceled(ctx, err):
		return o.finish(res, StateCancelled, notify.LevelInfo, "Operation cancelled by user.")
	case err != nil:
		return o.fail(res, err)
	}
	res.Source = resolved.Source
	files := diff.Parse(resolved.Text)
	res.Summary = diff.SummarizeFiles(files)
	log.Debug().Strs("files", diff.Paths(files)).Int("hunks", res.Summary.Hunks).Msg("changes resolved")

	text, truncated := prompt.TruncateDiff(resolved.Text, cfg.MaxDiffBytes)
	if truncated {
		res.Truncated = true
		log.Warn().Int("diff_bytes", len(resolved.Text)).Int("max_diff_bytes", cfg.MaxDiffBytes).Msg("diff truncated")
		o.deps.Notifier.Notify(notify.LevelWarn, fmt.Sprintf("Diff truncated to %d bytes.", cfg.MaxDiffBytes))
	}
	p := prompt.Build(text)
	if warn := prompt.CheckContext(p, cfg.ContextLimit, cfg.WarnThreshold); warn != "" {
		log.Warn().Int("estimated_tokens", prompt.EstimateTokens(p)).Msg("prompt near context limit")
		o.deps.Notifier.Notify(notify.LevelWarn, warn)
	}

	status := fmt.Sprintf("Generating commit message with %s from %s changes", cfg.Model, res.Source)
	if !res.Summary.Empty() {
		status += fmt.Sprintf(" (%s)", res.Summary)
	}
	o.transition(StateGenerating, notify.LevelInfo, status+"...")
	genCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	msg, err := o.deps.Generator.Generate(genCtx, cfg.Host, cfg.Model, p)
	if err != nil {
		if isCanceled(ctx, err) {
			return o.finish(res, StateCancelled, notify.LevelInfo, "Operation cancelled by user.")
		}
		return o.fail(res, err)
	}
	res.Message = msg
	log.Debug().Int("message_bytes", len(msg)).Msg("generated")

	o.transition(StateDelivering, notify.LevelInfo, "Inserting commit message...")
	if err := o.deliver(ctx, msg); err != nil {
		log.Error().Str("message", msg).Msg("generated message not inserted")
		return o.fail(res, errors.Join(ErrInsertionFailed, err))
	}
	return o.finish(res, StateDone, notify.LevelSuccess, "Commit message inserted!")
}

func (o *Orchestrator) deliver(ctx context.Context, msg string) error {
	if err := o.deps.Repo.Ready(ctx); err != nil {
		return err
	}
	return o.deps.Repo.SetCommitMessage(ctx, msg)
}

// transition reports an intermediate state.
func (o *Orchestrator) transition(s State, level notify.Level, msg string) {
	o.log.Info().Str("state", s.String()).Msg(msg)
	o.deps.Notifier.Notify(level, msg)
}

func (o *Orchestrator) finish(res Result, s State, level notify.Level, msg string) Result {
	o.transition(s, level, msg)
	res.State = s
	return res
}

func (o *Orchestrator) fail(res Result, err error) Result {
	kind := Classify(err)
	headline := failureMessage(kind, err)
	o.log.Error().Err(err).Str("state", StateFailed.String()).Str("kind", kind.String()).Msg(headline)
	o.deps.Notifier.Notify(notify.LevelError, headline)
	res.State = StateFailed
	res.Kind = kind
	res.Err = erruser.New(headline, err)
	return res
}

// failureMessage picks the text shown for a failure. Kinds whose cause already
// carries a user-facing message reuse it.
func failureMessage(kind Kind, err error) string {
	switch kind {
	case KindNetwork:
		return "Could not reach the Ollama server. Check the host setting and that Ollama is running."
	case KindMalformedResponse:
		return "Ollama returned a response that could not be read."
	case KindEmptyResponse:
		return "Ollama returned no commit message."
	case KindInsertionFailed:
		return "Failed to insert commit message."
	case KindBusy:
		return "Another commit message generation is already running."
	case KindNoRepository, KindConfig:
		var u *erruser.Err
		if errors.As(err, &u) {
			return u.Msg
		}
		if kind == KindConfig {
			return "Configuration is invalid."
		}
		return "No Git repository found."
	default:
		return "Failed to generate commit message."
	}
}

// isCanceled reports whether err stems from the caller cancelling ctx (for
// example Ctrl-C), as opposed to a timeout or a transport failure.
func isCanceled(ctx context.Context, err error) bool {
	return err != nil && errors.Is(ctx.Err(), context.Canceled)
}

// promptingChooser enters StatePrompting before consulting the user.
type promptingChooser struct {
	o     *Orchestrator
	inner changes.Chooser
}

func (p *promptingChooser) ChooseUnstaged(ctx context.Context) (changes.Choice, error) {
	p.o.transition(StatePrompting, notify.LevelInfo, "No staged changes found.")
	if p.inner == nil {
		return changes.ChoiceCancel, nil
	}
	choice, err := p.inner.ChooseUnstaged(ctx)
	if err != nil {
		return changes.ChoiceCancel, err
	}
	p.o.log.Debug().Str("choice", choice.String()).Msg("unstaged changes choice")
	return choice, nil
}
