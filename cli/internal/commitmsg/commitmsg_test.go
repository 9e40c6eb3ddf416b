package commitmsg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evolog/cli/internal/changes"
	"evolog/cli/internal/config"
	"evolog/cli/internal/erruser"
	"evolog/cli/internal/git"
	"evolog/cli/internal/lock"
	"evolog/cli/internal/notify"
	"evolog/cli/internal/ollama"
)

type fakeRepo struct {
	mu       sync.Mutex
	staged   string
	unstaged string
	readErr  error
	readyErr error
	setErr   error
	message  string
	setCalls int
}

func (r *fakeRepo) StagedDiff(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.staged, r.readErr
}

func (r *fakeRepo) UnstagedDiff(context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.unstaged, r.readErr
}

func (r *fakeRepo) StageAll(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.staged, r.unstaged = r.unstaged, ""
	return nil
}

func (r *fakeRepo) Ready(context.Context) error { return r.readyErr }

func (r *fakeRepo) SetCommitMessage(_ context.Context, msg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setCalls++
	if r.setErr != nil {
		return r.setErr
	}
	r.message = msg
	return nil
}

type fakeConfig struct {
	cfg config.Config
	err error
}

func (f fakeConfig) Load(context.Context) (*config.Config, error) {
	if f.err != nil {
		return nil, f.err
	}
	c := f.cfg
	return &c, nil
}

type recorder struct {
	mu      sync.Mutex
	entries []string
}

func (r *recorder) Notify(level notify.Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, level.String()+": "+msg)
}

func (r *recorder) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return ""
	}
	return r.entries[len(r.entries)-1]
}

// endpoint is an httptest Ollama that counts /api/generate calls.
type endpoint struct {
	*httptest.Server
	calls atomic.Int32
	body  atomic.Value
}

func newEndpoint(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *endpoint {
	t.Helper()
	e := &endpoint{}
	e.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.calls.Add(1)
		b, _ := io.ReadAll(r.Body)
		e.body.Store(string(b))
		handler(w, r)
	}))
	t.Cleanup(e.Close)
	return e
}

func reply(body string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, body)
	}
}

func testConfig(host string) config.Config {
	c := config.DefaultConfig()
	c.Host = host
	c.Model = "llama3.1:8b"
	return c
}

func newOrchestrator(repo *fakeRepo, host string, chooser changes.Chooser, n notify.Notifier) *Orchestrator {
	return New(Dependencies{
		Log:       zerolog.Nop(),
		Notifier:  n,
		Generator: ollama.NewClient(nil, zerolog.Nop()),
		Config:    fakeConfig{cfg: testConfig(host)},
		Repo:      repo,
		Chooser:   chooser,
	})
}

func TestRun_stagedEndToEnd(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, reply(`{"response":"fix: add login validation"}`))
	repo := &fakeRepo{staged: "+ added login validation", unstaged: "+ other"}
	rec := &recorder{}

	res := newOrchestrator(repo, e.URL, changes.FixedChooser(changes.ChoiceCancel), rec).Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, KindNone, res.Kind)
	assert.Equal(t, changes.SourceStaged, res.Source)
	assert.Equal(t, "fix: add login validation", res.Message)
	assert.Equal(t, "fix: add login validation", repo.message)
	assert.EqualValues(t, 1, e.calls.Load())

	var sent map[string]any
	require.NoError(t, json.Unmarshal([]byte(e.body.Load().(string)), &sent))
	assert.Equal(t, "llama3.1:8b", sent["model"])
	assert.Equal(t, false, sent["stream"])
	assert.Contains(t, sent["prompt"], "+ added login validation")
	assert.NotContains(t, sent["prompt"], "+ other")

	assert.Equal(t, []string{
		"info: Reading changes...",
		"info: Generating commit message with llama3.1:8b from staged changes...",
		"info: Inserting commit message...",
		"success: Commit message inserted!",
	}, rec.entries)
}

func TestRun_summaryInStatus(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, reply(`{"response":"fix: validate login"}`))
	staged := "diff --git a/login.go b/login.go\n" +
		"--- a/login.go\n" +
		"+++ b/login.go\n" +
		"@@ -1,2 +1,2 @@\n" +
		" package login\n" +
		"+func Validate() {}\n" +
		"-var x = 1\n"
	rec := &recorder{}

	res := newOrchestrator(&fakeRepo{staged: staged}, e.URL, nil, rec).Run(context.Background())

	require.NoError(t, res.Err)
	assert.Equal(t, 1, res.Summary.Files)
	assert.Contains(t, rec.entries,
		"info: Generating commit message with llama3.1:8b from staged changes (1 file, +1 -1)...")
}

func TestRun_unstagedCancel(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, reply(`{"response":"unused"}`))
	repo := &fakeRepo{unstaged: "+ typo fix"}
	rec := &recorder{}

	res := newOrchestrator(repo, e.URL, changes.FixedChooser(changes.ChoiceCancel), rec).Run(context.Background())

	assert.Equal(t, StateCancelled, res.State)
	require.NoError(t, res.Err)
	assert.Zero(t, e.calls.Load(), "no HTTP call on cancel")
	assert.Zero(t, repo.setCalls, "commit field untouched")
	assert.Contains(t, rec.entries, "info: No staged changes found.")
	assert.Equal(t, "info: Operation cancelled by user.", rec.last())
}

func TestRun_nilChooserCancels(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, reply(`{"response":"unused"}`))
	res := newOrchestrator(&fakeRepo{unstaged: "+ x"}, e.URL, nil, nil).Run(context.Background())
	assert.Equal(t, StateCancelled, res.State)
	assert.Zero(t, e.calls.Load())
}

func TestRun_unstagedChoices(t *testing.T) {
	t.Parallel()
	for _, tc := range []struct {
		choice     changes.Choice
		wantSource changes.Source
	}{
		{changes.ChoiceStageAll, changes.SourceStaged},
		{changes.ChoiceUseUnstaged, changes.SourceUnstaged},
	} {
		t.Run(tc.choice.String(), func(t *testing.T) {
			t.Parallel()
			e := newEndpoint(t, reply(`{"response":"docs: fix typo"}`))
			repo := &fakeRepo{unstaged: "+ typo fix"}
			res := newOrchestrator(repo, e.URL, changes.FixedChooser(tc.choice), nil).Run(context.Background())
			require.NoError(t, res.Err)
			assert.Equal(t, StateDone, res.State)
			assert.Equal(t, tc.wantSource, res.Source)
			assert.Equal(t, "docs: fix typo", repo.message)
		})
	}
}

func TestRun_noChanges(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, reply(`{"response":"unused"}`))
	rec := &recorder{}
	repo := &fakeRepo{staged: " \n", unstaged: "\t"}

	res := newOrchestrator(repo, e.URL, changes.FixedChooser(changes.ChoiceStageAll), rec).Run(context.Background())

	assert.Equal(t, StateDone, res.State)
	require.NoError(t, res.Err)
	assert.Empty(t, res.Message)
	assert.Zero(t, e.calls.Load(), "no HTTP call without changes")
	assert.Zero(t, repo.setCalls)
	assert.Equal(t, "warn: No changes detected.", rec.last())
}

func TestRun_failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		handler  func(http.ResponseWriter, *http.Request)
		wantKind Kind
	}{
		{name: "empty", handler: reply(`{}`), wantKind: KindEmptyResponse},
		{name: "malformed", handler: reply(`not json`), wantKind: KindMalformedResponse},
		{
			name: "endpoint error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `{"error":"model 'llama3.1:8b' not found"}`)
			},
			wantKind: KindEmptyResponse,
		},
		{
			name: "gateway page",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
				_, _ = io.WriteString(w, "<html>bad gateway</html>")
			},
			wantKind: KindMalformedResponse,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := newEndpoint(t, tt.handler)
			repo := &fakeRepo{staged: "+ x"}
			rec := &recorder{}
			res := newOrchestrator(repo, e.URL, nil, rec).Run(context.Background())
			assert.Equal(t, StateFailed, res.State)
			assert.Equal(t, tt.wantKind, res.Kind)
			require.Error(t, res.Err)
			assert.Zero(t, repo.setCalls)
			assert.True(t, strings.HasPrefix(rec.last(), "error: "), rec.last())
		})
	}
}

func TestRun_networkFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.NotFoundHandler())
	host := srv.URL
	srv.Close()

	res := newOrchestrator(&fakeRepo{staged: "+ x"}, host, nil, nil).Run(context.Background())
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, KindNetwork, res.Kind)
	assert.ErrorIs(t, res.Err, ollama.ErrUnreachable)
}

func TestRun_timeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	e := newEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	cfg := testConfig(e.URL)
	cfg.Timeout = 50 * time.Millisecond
	o := New(Dependencies{
		Generator: ollama.NewClient(nil, zerolog.Nop()),
		Config:    fakeConfig{cfg: cfg},
		Repo:      &fakeRepo{staged: "+ x"},
	})
	res := o.Run(context.Background())
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, KindNetwork, res.Kind)
}

func TestRun_callerCancelDuringGeneration(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	e := newEndpoint(t, func(w http.ResponseWriter, r *http.Request) {
		cancel()
		<-r.Context().Done()
	})
	res := newOrchestrator(&fakeRepo{staged: "+ x"}, e.URL, nil, nil).Run(ctx)
	assert.Equal(t, StateCancelled, res.State)
	assert.NoError(t, res.Err)
}

func TestRun_insertionFailureKeepsMessage(t *testing.T) {
	t.Parallel()
	for _, repo := range []*fakeRepo{
		{staged: "+ x", readyErr: erruser.New("Another git process is using this repository.", git.ErrNotReady)},
		{staged: "+ x", setErr: erruser.New("This directory is not inside a Git repository.", git.ErrNoRepository)},
	} {
		e := newEndpoint(t, reply(`{"response":"feat: add login"}`))
		rec := &recorder{}
		res := newOrchestrator(repo, e.URL, nil, rec).Run(context.Background())
		assert.Equal(t, StateFailed, res.State)
		assert.Equal(t, KindInsertionFailed, res.Kind)
		assert.Equal(t, "feat: add login", res.Message)
		assert.Empty(t, repo.message)
		assert.Equal(t, "error: Failed to insert commit message.", rec.last())
	}
}

func TestRun_noRepository(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, reply(`{"response":"unused"}`))
	repo := &fakeRepo{readErr: erruser.New("This directory is not inside a Git repository.", git.ErrNoRepository)}
	rec := &recorder{}
	res := newOrchestrator(repo, e.URL, nil, rec).Run(context.Background())
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, KindNoRepository, res.Kind)
	assert.Zero(t, e.calls.Load())
	assert.Equal(t, "error: This directory is not inside a Git repository.", rec.last())
}

func TestRun_configError(t *testing.T) {
	t.Parallel()
	o := New(Dependencies{
		Generator: ollama.NewClient(nil, zerolog.Nop()),
		Config:    fakeConfig{err: erruser.New("EVOLOG_TIMEOUT must be a valid duration.", errors.New("bad"))},
		Repo:      &fakeRepo{staged: "+ x"},
	})
	res := o.Run(context.Background())
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, KindConfig, res.Kind)
	assert.Equal(t, "EVOLOG_TIMEOUT must be a valid duration.", res.Err.Error())
}

func TestRun_busyLock(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, reply(`{"response":"unused"}`))
	dir := t.TempDir()
	held, err := lock.Acquire(dir)
	require.NoError(t, err)
	defer held()

	o := New(Dependencies{
		Generator: ollama.NewClient(nil, zerolog.Nop()),
		Config:    fakeConfig{cfg: testConfig(e.URL)},
		Repo:      &fakeRepo{staged: "+ x"},
		Locker:    LockerFunc(func(context.Context) (func(), error) { return lock.Acquire(dir) }),
	})
	res := o.Run(context.Background())
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, KindBusy, res.Kind)
	assert.Zero(t, e.calls.Load())
}

func TestRun_lockReleasedAfterRun(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, reply(`{"response":"chore: bump"}`))
	dir := t.TempDir()
	o := New(Dependencies{
		Generator: ollama.NewClient(nil, zerolog.Nop()),
		Config:    fakeConfig{cfg: testConfig(e.URL)},
		Repo:      &fakeRepo{staged: "+ x"},
		Locker:    LockerFunc(func(context.Context) (func(), error) { return lock.Acquire(dir) }),
	})
	for i := 0; i < 2; i++ {
		res := o.Run(context.Background())
		require.Equal(t, StateDone, res.State, "run %d", i)
	}
}

func TestRun_truncatesDiff(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, reply(`{"response":"feat: big change"}`))
	cfg := testConfig(e.URL)
	cfg.MaxDiffBytes = 10
	rec := &recorder{}
	o := New(Dependencies{
		Notifier:  rec,
		Generator: ollama.NewClient(nil, zerolog.Nop()),
		Config:    fakeConfig{cfg: cfg},
		Repo:      &fakeRepo{staged: "+ " + strings.Repeat("abcdef", 100)},
	})
	res := o.Run(context.Background())
	require.Equal(t, StateDone, res.State)
	assert.True(t, res.Truncated)
	assert.Contains(t, rec.entries, "warn: Diff truncated to 10 bytes.")
	assert.NotContains(t, e.body.Load().(string), strings.Repeat("abcdef", 2))
}

// slowGenerator blocks until released so overlapping runs can be observed.
type slowGenerator struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (g *slowGenerator) Generate(ctx context.Context, _, _, _ string) (string, error) {
	if g.calls.Add(1) == 1 {
		close(g.started)
	}
	select {
	case <-g.release:
		return "feat: once", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func TestRun_singleFlight(t *testing.T) {
	t.Parallel()
	gen := &slowGenerator{started: make(chan struct{}), release: make(chan struct{})}
	repo := &fakeRepo{staged: "+ x"}
	o := New(Dependencies{
		Generator: gen,
		Config:    fakeConfig{cfg: testConfig("http://unused:1")},
		Repo:      repo,
	})

	results := make(chan Result, 2)
	go func() { results <- o.Run(context.Background()) }()
	<-gen.started
	go func() { results <- o.Run(context.Background()) }()
	// Give the second call time to join before releasing.
	time.Sleep(50 * time.Millisecond)
	close(gen.release)

	for i := 0; i < 2; i++ {
		res := <-results
		assert.Equal(t, StateDone, res.State)
		assert.Equal(t, "feat: once", res.Message)
	}
	assert.EqualValues(t, 1, gen.calls.Load())
	assert.Equal(t, 1, repo.setCalls)
}

func TestRun_joinerCancelStopsWaiting(t *testing.T) {
	t.Parallel()
	gen := &slowGenerator{started: make(chan struct{}), release: make(chan struct{})}
	o := New(Dependencies{
		Generator: gen,
		Config:    fakeConfig{cfg: testConfig("http://unused:1")},
		Repo:      &fakeRepo{staged: "+ x"},
	})

	first := make(chan Result, 1)
	go func() { first <- o.Run(context.Background()) }()
	<-gen.started

	ctx, cancel := context.WithCancel(context.Background())
	second := make(chan Result, 1)
	go func() { second <- o.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case res := <-second:
		assert.Equal(t, StateCancelled, res.State)
	case <-time.After(2 * time.Second):
		t.Fatal("joiner kept waiting after its context was cancelled")
	}

	close(gen.release)
	res := <-first
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "feat: once", res.Message)
	assert.EqualValues(t, 1, gen.calls.Load())
}

func TestRun_sequentialRunsStartFresh(t *testing.T) {
	t.Parallel()
	e := newEndpoint(t, reply(`{"response":"fix: again"}`))
	o := newOrchestrator(&fakeRepo{staged: "+ x"}, e.URL, nil, nil)
	for i := 0; i < 2; i++ {
		assert.Equal(t, StateDone, o.Run(context.Background()).State)
	}
	assert.EqualValues(t, 2, e.calls.Load())
}

func TestGreet(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	New(Dependencies{Notifier: rec}).Greet()
	assert.Equal(t, []string{"info: EvoLog-AI: Hello World!"}, rec.entries)
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err  error
		want Kind
	}{
		{nil, KindNone},
		{fmt.Errorf("x: %w", ollama.ErrUnreachable), KindNetwork},
		{context.DeadlineExceeded, KindNetwork},
		{fmt.Errorf("x: %w", ollama.ErrMalformedResponse), KindMalformedResponse},
		{fmt.Errorf("x: %w", ollama.ErrEmptyResponse), KindEmptyResponse},
		{errors.Join(git.ErrNoRepository, errors.New("exit 128")), KindNoRepository},
		{errors.Join(ErrInsertionFailed, git.ErrNoRepository), KindInsertionFailed},
		{fmt.Errorf("%w: bad", ErrConfig), KindConfig},
		{lock.ErrLocked, KindBusy},
		{errors.New("other"), KindUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "prompting", StatePrompting.String())
	assert.Equal(t, "insertion-failed", KindInsertionFailed.String())
}
