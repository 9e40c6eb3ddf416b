// Package config provides evolog configuration with a defined load order:
// CLI flags > environment variables > repo config > global config > defaults.
//
// Paths:
//   - Repo: .evolog/config.toml (relative to repo root)
//   - Global: XDG config dir, e.g. ~/.config/evolog/config.toml (see os.UserConfigDir)
//
// Both files keep their keys in an [evolog] table:
//
//	[evolog]
//	ollamaHost = "http://localhost:11434"
//	ollamaModel = "mistral-large-3:675b-cloud"
//	timeout = "5m"
//
// Environment variables (override config files when set):
//   - EVOLOG_OLLAMA_HOST, EVOLOG_OLLAMA_MODEL,
//   - EVOLOG_TIMEOUT (Go duration string or integer seconds; 0 disables the bound),
//   - EVOLOG_MAX_DIFF_BYTES (0 = send the whole diff),
//   - EVOLOG_CONTEXT_LIMIT, EVOLOG_WARN_THRESHOLD (prompt size warning).
package config

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"evolog/cli/internal/erruser"
)

// Section is the TOML table holding evolog keys.
const Section = "evolog"

// Key names inside Section.
const (
	KeyHost  = "ollamaHost"
	KeyModel = "ollamaModel"
)

// Config holds all evolog configuration.
type Config struct {
	Host  string
	Model string
	// Timeout bounds one generation request; 0 means no bound.
	Timeout time.Duration
	// MaxDiffBytes truncates the diff before prompting; 0 sends it whole.
	MaxDiffBytes int
	// ContextLimit and WarnThreshold drive the prompt-size warning (0 limit disables it).
	ContextLimit  int
	WarnThreshold float64
}

// Overrides represents optional CLI flag overrides. Non-nil pointer means
// "override with this value".
type Overrides struct {
	Host         *string
	Model        *string
	Timeout      *time.Duration
	MaxDiffBytes *int
}

// LoadOptions configures Load. All fields are optional.
type LoadOptions struct {
	// RepoRoot is the repository root; if set, repo config is RepoRoot/.evolog/config.toml.
	RepoRoot string
	// GlobalConfigPath is the global config file path; if empty, XDG path is used.
	GlobalConfigPath string
	// Env is the environment key=value slice; if nil, os.Environ() is used.
	Env []string
	// Overrides are applied last (highest precedence).
	Overrides *Overrides
}

const (
	DefaultHost  = "http://localhost:11434"
	DefaultModel = "mistral-large-3:675b-cloud"

	_defaultTimeout       = 5 * time.Minute
	_defaultContextLimit  = 32768
	_defaultWarnThreshold = 0.9
)

// errIntOverflow is returned when an int64 value does not fit in int (e.g. on 32-bit or huge TOML/env values).
var errIntOverflow = errors.New("value out of range for int")

// int64ToInt converts n to int. It returns an error if n is outside the range of int.
func int64ToInt(n int64) (int, error) {
	if n < int64(math.MinInt) || n > int64(math.MaxInt) {
		return 0, errIntOverflow
	}
	return int(n), nil
}

// DefaultConfig returns the default configuration (no I/O).
func DefaultConfig() Config {
	return Config{
		Host:          DefaultHost,
		Model:         DefaultModel,
		Timeout:       _defaultTimeout,
		MaxDiffBytes:  0,
		ContextLimit:  _defaultContextLimit,
		WarnThreshold: _defaultWarnThreshold,
	}
}

// ValidateHost accepts absolute http(s) URLs with a host, e.g. http://localhost:11434.
func ValidateHost(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil {
		return erruser.New("Please enter a valid URL (e.g., http://localhost:11434)", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return erruser.New("Please enter a valid URL (e.g., http://localhost:11434)", nil)
	}
	return nil
}

// GlobalConfigPath returns the XDG global config path.
func GlobalConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", erruser.New("Could not determine config directory.", err)
	}
	return filepath.Join(dir, "evolog", "config.toml"), nil
}

// RepoConfigPath returns the repo config path for repoRoot.
func RepoConfigPath(repoRoot string) string {
	return filepath.Join(repoRoot, ".evolog", "config.toml")
}

// Load loads configuration with precedence: defaults < global file < repo file < env < overrides.
// Missing config files are ignored. Invalid TOML or invalid env values return an error.
func Load(ctx context.Context, opts LoadOptions) (*Config, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.Env == nil {
		opts.Env = os.Environ()
	}
	cfg := DefaultConfig()

	globalPath := opts.GlobalConfigPath
	if globalPath == "" {
		p, err := GlobalConfigPath()
		if err != nil {
			return nil, err
		}
		globalPath = p
	}
	if err := mergeFile(&cfg, globalPath); err != nil {
		return nil, err
	}

	if opts.RepoRoot != "" {
		if err := mergeFile(&cfg, RepoConfigPath(opts.RepoRoot)); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(&cfg, opts.Env); err != nil {
		return nil, err
	}

	applyOverrides(&cfg, opts.Overrides)
	return &cfg, nil
}

// fileSection mirrors the [evolog] table. Pointers distinguish "absent" from zero.
type fileSection struct {
	Host          *string  `toml:"ollamaHost"`
	Model         *string  `toml:"ollamaModel"`
	Timeout       *string  `toml:"timeout"`
	MaxDiffBytes  *int64   `toml:"maxDiffBytes"`
	ContextLimit  *int64   `toml:"contextLimit"`
	WarnThreshold *float64 `toml:"warnThreshold"`
}

type fileLayout struct {
	Evolog fileSection `toml:"evolog"`
}

// mergeFile reads path and merges into cfg. Empty host/model strings keep the
// previous value. Missing file is skipped (no error).
func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return erruser.New("Could not read configuration file.", err)
	}
	var file fileLayout
	if _, err := toml.Decode(string(data), &file); err != nil {
		return erruser.New(fmt.Sprintf("Invalid configuration in %s.", path), err)
	}
	sec := file.Evolog
	if sec.Host != nil && *sec.Host != "" {
		cfg.Host = *sec.Host
	}
	if sec.Model != nil && *sec.Model != "" {
		cfg.Model = *sec.Model
	}
	if sec.Timeout != nil && *sec.Timeout != "" {
		d, err := parseDuration(*sec.Timeout)
		if err != nil {
			return erruser.New("Configuration timeout is invalid.", err)
		}
		cfg.Timeout = d
	}
	if sec.MaxDiffBytes != nil && *sec.MaxDiffBytes >= 0 {
		v, err := int64ToInt(*sec.MaxDiffBytes)
		if err != nil {
			return erruser.New("Configuration maxDiffBytes value out of range.", err)
		}
		cfg.MaxDiffBytes = v
	}
	if sec.ContextLimit != nil && *sec.ContextLimit >= 0 {
		v, err := int64ToInt(*sec.ContextLimit)
		if err != nil {
			return erruser.New("Configuration contextLimit value out of range.", err)
		}
		cfg.ContextLimit = v
	}
	if sec.WarnThreshold != nil && *sec.WarnThreshold >= 0 && *sec.WarnThreshold <= 1 {
		cfg.WarnThreshold = *sec.WarnThreshold
	}
	return nil
}

func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty duration")
	}
	// Try Go duration first (e.g. "5m", "30s")
	d, err := time.ParseDuration(s)
	if err == nil {
		if d < 0 {
			return 0, fmt.Errorf("negative duration %q", s)
		}
		return d, nil
	}
	// Try integer seconds
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return time.Duration(n) * time.Second, nil
}

// env key names for config
const (
	envHost          = "EVOLOG_OLLAMA_HOST"
	envModel         = "EVOLOG_OLLAMA_MODEL"
	envTimeout       = "EVOLOG_TIMEOUT"
	envMaxDiffBytes  = "EVOLOG_MAX_DIFF_BYTES"
	envContextLimit  = "EVOLOG_CONTEXT_LIMIT"
	envWarnThreshold = "EVOLOG_WARN_THRESHOLD"
)

func applyEnv(cfg *Config, env []string) error {
	vals := make(map[string]string)
	for _, e := range env {
		key, val, ok := strings.Cut(e, "=")
		if !ok || strings.TrimSpace(key) == "" {
			continue
		}
		vals[strings.TrimSpace(key)] = strings.TrimSpace(val)
	}
	if v := vals[envHost]; v != "" {
		cfg.Host = v
	}
	if v := vals[envModel]; v != "" {
		cfg.Model = v
	}
	if v := vals[envTimeout]; v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return erruser.New(envTimeout+" must be a valid duration.", err)
		}
		cfg.Timeout = d
	}
	if v := vals[envMaxDiffBytes]; v != "" {
		n, err := parseNonNegativeInt(v)
		if err != nil {
			return erruser.New(envMaxDiffBytes+" must be a non-negative number.", err)
		}
		cfg.MaxDiffBytes = n
	}
	if v := vals[envContextLimit]; v != "" {
		n, err := parseNonNegativeInt(v)
		if err != nil {
			return erruser.New(envContextLimit+" must be a non-negative number.", err)
		}
		cfg.ContextLimit = n
	}
	if v := vals[envWarnThreshold]; v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f < 0 || f > 1 {
			return erruser.New(envWarnThreshold+" must be a number between 0 and 1.", err)
		}
		cfg.WarnThreshold = f
	}
	return nil
}

func parseNonNegativeInt(s string) (int, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative value %d", n)
	}
	return int64ToInt(n)
}

func applyOverrides(cfg *Config, o *Overrides) {
	if o == nil {
		return
	}
	if o.Host != nil && *o.Host != "" {
		cfg.Host = *o.Host
	}
	if o.Model != nil && *o.Model != "" {
		cfg.Model = *o.Model
	}
	if o.Timeout != nil && *o.Timeout >= 0 {
		cfg.Timeout = *o.Timeout
	}
	if o.MaxDiffBytes != nil && *o.MaxDiffBytes >= 0 {
		cfg.MaxDiffBytes = *o.MaxDiffBytes
	}
}
