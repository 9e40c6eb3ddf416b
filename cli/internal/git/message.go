package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"evolog/cli/internal/erruser"
)

// Pending commit message location, relative to the git directory.
const (
	stateDirName       = "evolog"
	pendingMessageName = "COMMIT_MSG"
)

// ErrNotReady is returned by Ready when the repository stays busy (index
// locked by another git process) past the wait bound.
var ErrNotReady = errors.New("git repository busy")

// StateDir returns <git-dir>/evolog, the directory holding the pending message
// and the generation lock.
func (r *Repo) StateDir(ctx context.Context) (string, error) {
	gitDir, err := r.GitDir(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(gitDir, stateDirName), nil
}

// PendingMessagePath returns the file SetCommitMessage writes; use it with
// "git commit -e -F <path>".
func (r *Repo) PendingMessagePath(ctx context.Context) (string, error) {
	dir, err := r.StateDir(ctx)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, pendingMessageName), nil
}

// Ready reports when the repository can accept a commit message: the git
// directory resolves, the state directory exists and no other git process
// holds the index lock. It polls the lock until it clears, ctx ends or the
// wait bound passes.
func (r *Repo) Ready(ctx context.Context) error {
	dir, err := r.StateDir(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return erruser.New("Could not prepare the commit message directory.", err)
	}
	gitDir := filepath.Dir(dir)
	if !indexLocked(gitDir) {
		return nil
	}

	deadline := time.NewTimer(r.readyWait)
	defer deadline.Stop()
	tick := time.NewTicker(r.readyPoll)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return erruser.New("Another git process is using this repository.", ErrNotReady)
		case <-tick.C:
			if !indexLocked(gitDir) {
				return nil
			}
		}
	}
}

// SetCommitMessage replaces the pending commit message. The file is written
// to a temp file and renamed so readers never see a partial message.
func (r *Repo) SetCommitMessage(ctx context.Context, msg string) error {
	path, err := r.PendingMessagePath(ctx)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return erruser.New("Could not prepare the commit message directory.", err)
	}
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), pendingMessageName+".*")
	if err != nil {
		return erruser.New("Could not write the commit message.", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(msg); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return erruser.New("Could not write the commit message.", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return erruser.New("Could not write the commit message.", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return erruser.New("Could not write the commit message.", fmt.Errorf("rename %s: %w", tmpName, err))
	}
	return nil
}
