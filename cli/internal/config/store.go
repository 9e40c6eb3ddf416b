package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"evolog/cli/internal/erruser"
)

// Store reads configuration fresh on every Load and writes host/model edits
// to the global config file. It keeps no cached values.
type Store struct {
	opts LoadOptions
}

// NewStore returns a Store using opts for every Load.
func NewStore(opts LoadOptions) *Store {
	return &Store{opts: opts}
}

// Load reads the effective configuration.
func (s *Store) Load(ctx context.Context) (*Config, error) {
	return Load(ctx, s.opts)
}

// Path returns the file Save writes.
func (s *Store) Path() (string, error) {
	if s.opts.GlobalConfigPath != "" {
		return s.opts.GlobalConfigPath, nil
	}
	return GlobalConfigPath()
}

// Edit names the settings a Save changes; nil fields are left as they are
// in the global file.
type Edit struct {
	Host  *string
	Model *string
}

// Empty reports whether e changes nothing.
func (e Edit) Empty() bool { return e.Host == nil && e.Model == nil }

// Save writes the fields set in e to the global config file. Other keys and
// tables in the file are preserved. The file is replaced atomically.
func (s *Store) Save(ctx context.Context, e Edit) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if e.Empty() {
		return nil
	}
	path, err := s.Path()
	if err != nil {
		return err
	}

	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return erruser.New(fmt.Sprintf("Invalid configuration in %s.", path), err)
		}
	case !os.IsNotExist(err):
		return erruser.New("Could not read configuration file.", err)
	}

	section, _ := doc[Section].(map[string]any)
	if section == nil {
		section = map[string]any{}
	}
	if e.Host != nil {
		section[KeyHost] = *e.Host
	}
	if e.Model != nil {
		section[KeyModel] = *e.Model
	}
	doc[Section] = section

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return erruser.New("Could not create configuration directory.", err)
	}
	tmp, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return erruser.New("Could not write configuration file.", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return erruser.New("Could not write configuration file.", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return erruser.New("Could not write configuration file.", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return erruser.New("Could not write configuration file.", err)
	}
	return nil
}
