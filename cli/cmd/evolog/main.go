package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"evolog/cli/internal/config"
	"evolog/cli/internal/erruser"
	"evolog/cli/internal/git"
	"evolog/cli/internal/logging"
	"evolog/cli/internal/ollama"
	"evolog/cli/internal/settings"
	"evolog/cli/internal/tui"
	"evolog/cli/internal/version"
)

// errExit is an error that carries an exit code for the CLI. Use errors.As to detect it.
type errExit int

func (e errExit) Error() string {
	return "exit " + strconv.Itoa(int(e))
}

// app holds the process-facing pieces a command touches. Tests build one
// with buffers, a temp config file and a fixed working directory.
type app struct {
	stdout io.Writer
	stderr io.Writer
	// stdin gates interactive prompts; nil means never interactive.
	stdin *os.File
	// dir is the working directory; "" means os.Getwd.
	dir string
	// env is passed to config loading; nil means os.Environ.
	env []string
	// globalConfig overrides the global config path.
	globalConfig string
	httpClient   *http.Client

	verbose bool
	quiet   bool
	noColor bool
	logFile string

	log       zerolog.Logger
	logCloser io.Closer
	console   *tui.Console
}

func newApp() *app {
	return &app{
		stdout: os.Stdout,
		stderr: os.Stderr,
		stdin:  os.Stdin,
		log:    zerolog.Nop(),
	}
}

func main() {
	os.Exit(Run())
}

// Run is the entry point for the CLI. It is exported for testing so that
// main.go can meet per-file coverage requirements.
func Run() int {
	return runCLI(os.Args[1:])
}

func runCLI(args []string) int {
	return newApp().run(args)
}

func (a *app) run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := &cobra.Command{
		Use:     "evolog",
		Short:   "Generate commit messages from your changes with a local Ollama model",
		Version: version.String(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.setup()
			return nil
		},
	}
	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Mirror the diagnostic log to stderr at debug level")
	pf.BoolVarP(&a.quiet, "quiet", "q", false, "Only show warnings and errors")
	pf.BoolVar(&a.noColor, "no-color", false, "Disable colored output")
	pf.StringVar(&a.logFile, "log-file", "", "Diagnostic log file (default: user cache dir, or EVOLOG_LOG_FILE)")

	rootCmd.AddCommand(a.newHelloCmd())
	rootCmd.AddCommand(a.newGenerateCmd())
	rootCmd.AddCommand(a.newSettingsCmd())
	rootCmd.AddCommand(a.newDoctorCmd())
	rootCmd.AddCommand(a.newVersionCmd())
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.SetArgs(args)
	rootCmd.SetOut(a.stdout)
	rootCmd.SetErr(a.stderr)

	err := rootCmd.ExecuteContext(ctx)
	if a.logCloser != nil {
		_ = a.logCloser.Close()
	}
	if err != nil {
		var exitErr errExit
		if errors.As(err, &exitErr) {
			return int(exitErr)
		}
		fmt.Fprintln(a.stderr, err)
		if d := erruser.Details(err); d != "" {
			fmt.Fprintf(a.stderr, "Details: %s\n", d)
		}
		return 1
	}
	return 0
}

// setup builds the logger and the console once flags are parsed.
func (a *app) setup() {
	a.console = tui.NewConsole(a.stderr, tui.WithColor(!a.noColor && tui.HasColorSupport()), tui.WithQuiet(a.quiet))
	logger, closer, err := logging.New(logging.Options{
		Path:    a.logFile,
		Verbose: a.verbose,
		Quiet:   a.quiet,
		Console: a.stderr,
		NoColor: a.noColor,
	})
	a.log, a.logCloser = logger, closer
	if err != nil && a.verbose {
		fmt.Fprintf(a.stderr, "diagnostic log unavailable: %v\n", err)
	}
	a.log.Debug().Str("version", version.String()).Msg("start")
}

func (a *app) workDir() (string, error) {
	if a.dir != "" {
		return a.dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", erruser.New("Could not determine current directory.", err)
	}
	return cwd, nil
}

// configStore returns a store for the repository containing the working
// directory. Outside a repository only the global file and env apply.
func (a *app) configStore(ctx context.Context, overrides *config.Overrides) (*config.Store, *git.Repo, error) {
	dir, err := a.workDir()
	if err != nil {
		return nil, nil, err
	}
	repo := git.Open(dir)
	root, err := repo.Root(ctx)
	if err != nil {
		a.log.Debug().Err(err).Msg("no repository; repo config skipped")
		root = ""
	}
	return config.NewStore(config.LoadOptions{
		RepoRoot:         root,
		GlobalConfigPath: a.globalConfig,
		Env:              a.env,
		Overrides:        overrides,
	}), repo, nil
}

func (a *app) ollamaClient() *ollama.Client {
	return ollama.NewClient(a.httpClient, a.log)
}

func (a *app) settingsService(ctx context.Context) (*settings.Service, error) {
	store, _, err := a.configStore(ctx, nil)
	if err != nil {
		return nil, err
	}
	return settings.NewService(store, a.ollamaClient(), a.log, a.console), nil
}

func (a *app) interactive() bool {
	return tui.IsInteractive(a.stdin)
}

func (a *app) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the evolog version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(a.stdout, version.String())
		},
	}
}
