// Package changes decides which diff a commit message is generated from:
// staged changes win; with only unstaged changes the user chooses to stage
// everything, use the unstaged diff, or cancel.
package changes

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Source says which diff a Resolution carries.
type Source int

const (
	SourceNone Source = iota
	SourceStaged
	SourceUnstaged
)

func (s Source) String() string {
	switch s {
	case SourceStaged:
		return "staged"
	case SourceUnstaged:
		return "unstaged"
	default:
		return "none"
	}
}

// Choice is the user's answer when only unstaged changes exist.
type Choice int

const (
	ChoiceCancel Choice = iota
	ChoiceStageAll
	ChoiceUseUnstaged
)

func (c Choice) String() string {
	switch c {
	case ChoiceStageAll:
		return "stage"
	case ChoiceUseUnstaged:
		return "use"
	default:
		return "cancel"
	}
}

// ParseChoice maps "stage", "use" and "cancel" to a Choice.
func ParseChoice(s string) (Choice, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "stage", "stage-all":
		return ChoiceStageAll, nil
	case "use", "unstaged":
		return ChoiceUseUnstaged, nil
	case "cancel":
		return ChoiceCancel, nil
	}
	return ChoiceCancel, fmt.Errorf("unknown choice %q (want stage, use or cancel)", s)
}

var (
	// ErrNoChanges means neither staged nor unstaged changes exist.
	ErrNoChanges = errors.New("no changes detected")
	// ErrNothingToAnalyze means the chosen diff turned out blank, e.g. staging
	// produced no staged content.
	ErrNothingToAnalyze = errors.New("no changes available to analyze")
	// ErrCancelled means the user declined to continue.
	ErrCancelled = errors.New("operation cancelled by user")
)

// Reader is the part of the version-control collaborator the resolver needs.
type Reader interface {
	StagedDiff(ctx context.Context) (string, error)
	UnstagedDiff(ctx context.Context) (string, error)
	StageAll(ctx context.Context) error
}

// Chooser asks the user what to do when only unstaged changes exist.
// Returning an error aborts resolution with that error.
type Chooser interface {
	ChooseUnstaged(ctx context.Context) (Choice, error)
}

// ChooserFunc adapts a function to Chooser.
type ChooserFunc func(ctx context.Context) (Choice, error)

// ChooseUnstaged calls f.
func (f ChooserFunc) ChooseUnstaged(ctx context.Context) (Choice, error) { return f(ctx) }

// FixedChooser always answers with the same choice; used by non-interactive hosts.
type FixedChooser Choice

// ChooseUnstaged returns the fixed choice.
func (c FixedChooser) ChooseUnstaged(context.Context) (Choice, error) { return Choice(c), nil }

// Resolution is the diff text to generate from and where it came from.
type Resolution struct {
	Text   string
	Source Source
}

// Set holds both diffs as read in one pass.
type Set struct {
	Staged   string
	Unstaged string
}

// Read fetches the staged and unstaged diffs concurrently.
func Read(ctx context.Context, r Reader) (Set, error) {
	var set Set
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		d, err := r.StagedDiff(gctx)
		if err != nil {
			return fmt.Errorf("read staged diff: %w", err)
		}
		set.Staged = d
		return nil
	})
	g.Go(func() error {
		d, err := r.UnstagedDiff(gctx)
		if err != nil {
			return fmt.Errorf("read unstaged diff: %w", err)
		}
		set.Unstaged = d
		return nil
	})
	if err := g.Wait(); err != nil {
		return Set{}, err
	}
	return set, nil
}

// Resolve picks the diff to use. Blank means no non-whitespace character.
//
//   - both blank: ErrNoChanges, chooser not consulted;
//   - staged non-blank: staged text, chooser not consulted;
//   - only unstaged: the chooser decides. ChoiceStageAll stages everything
//     and re-reads the staged diff; ChoiceUseUnstaged uses the unstaged diff;
//     ChoiceCancel returns ErrCancelled.
//
// A chosen diff that is blank yields ErrNothingToAnalyze.
func Resolve(ctx context.Context, r Reader, chooser Chooser) (Resolution, error) {
	set, err := Read(ctx, r)
	if err != nil {
		return Resolution{}, err
	}
	hasStaged := !IsBlank(set.Staged)
	hasUnstaged := !IsBlank(set.Unstaged)
	if !hasStaged && !hasUnstaged {
		return Resolution{}, ErrNoChanges
	}
	if hasStaged {
		return Resolution{Text: set.Staged, Source: SourceStaged}, nil
	}

	if chooser == nil {
		return Resolution{}, ErrCancelled
	}
	choice, err := chooser.ChooseUnstaged(ctx)
	if err != nil {
		return Resolution{}, err
	}

	var res Resolution
	switch choice {
	case ChoiceStageAll:
		if err := r.StageAll(ctx); err != nil {
			return Resolution{}, fmt.Errorf("stage all: %w", err)
		}
		staged, err := r.StagedDiff(ctx)
		if err != nil {
			return Resolution{}, fmt.Errorf("read staged diff: %w", err)
		}
		res = Resolution{Text: staged, Source: SourceStaged}
	case ChoiceUseUnstaged:
		res = Resolution{Text: set.Unstaged, Source: SourceUnstaged}
	default:
		return Resolution{}, ErrCancelled
	}

	if IsBlank(res.Text) {
		return Resolution{}, ErrNothingToAnalyze
	}
	return res, nil
}

// IsBlank reports whether s has no non-whitespace character.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
