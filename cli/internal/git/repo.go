// Package git is the version-control collaborator: it reads staged and
// unstaged diffs, stages changes and holds the pending commit message for the
// repository containing a working directory.
package git

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"evolog/cli/internal/erruser"
)

// ErrNoRepository is returned when the working directory is not inside a git
// repository or git itself is unavailable.
var ErrNoRepository = errors.New("no git repository")

// Repo is the git repository containing dir. The repository is resolved on
// every call, so a Repo can be built before the directory is a repository.
type Repo struct {
	dir string
	// readyPoll is how often Ready re-checks the index lock.
	readyPoll time.Duration
	// readyWait bounds how long Ready waits for the index lock.
	readyWait time.Duration
}

// Open returns the repository handle for dir. It does not touch the disk.
func Open(dir string) *Repo {
	return &Repo{dir: dir, readyPoll: 50 * time.Millisecond, readyWait: 5 * time.Second}
}

// Root returns the absolute path of the working tree root, running
// "git rev-parse --show-toplevel" in the handle's directory. Outside a
// repository the error wraps ErrNoRepository.
func (r *Repo) Root(ctx context.Context) (string, error) {
	out, err := runGit(ctx, r.dir, "rev-parse", "--show-toplevel")
	if err != nil {
		return "", noRepository(err)
	}
	return filepath.Abs(strings.TrimSpace(out))
}

// GitDir returns the absolute path of the repository's git directory.
func (r *Repo) GitDir(ctx context.Context) (string, error) {
	out, err := runGit(ctx, r.dir, "rev-parse", "--absolute-git-dir")
	if err != nil {
		return "", noRepository(err)
	}
	return filepath.Clean(strings.TrimSpace(out)), nil
}

// StagedDiff returns the diff of the index against HEAD (empty tree on an
// unborn branch).
func (r *Repo) StagedDiff(ctx context.Context) (string, error) {
	return r.diff(ctx, "--cached")
}

// UnstagedDiff returns the diff of the working tree against the index.
// Untracked files are not included.
func (r *Repo) UnstagedDiff(ctx context.Context) (string, error) {
	return r.diff(ctx)
}

func (r *Repo) diff(ctx context.Context, extra ...string) (string, error) {
	root, err := r.Root(ctx)
	if err != nil {
		return "", err
	}
	args := append([]string{"diff", "--no-color", "--no-ext-diff"}, extra...)
	out, err := runGit(ctx, root, args...)
	if err != nil {
		return "", erruser.New("Could not read git changes.", err)
	}
	return out, nil
}

// StageAll stages every change in the working tree, including untracked and
// deleted files ("git add -A").
func (r *Repo) StageAll(ctx context.Context) error {
	root, err := r.Root(ctx)
	if err != nil {
		return err
	}
	if _, err := runGit(ctx, root, "add", "-A"); err != nil {
		return erruser.New("Could not stage changes.", err)
	}
	return nil
}

// noRepository wraps a rev-parse failure so callers can match ErrNoRepository.
func noRepository(err error) error {
	return erruser.New("This directory is not inside a Git repository.", errors.Join(ErrNoRepository, err))
}

// indexLocked reports whether another git process holds the index lock.
func indexLocked(gitDir string) bool {
	_, err := os.Stat(filepath.Join(gitDir, "index.lock"))
	return err == nil
}
