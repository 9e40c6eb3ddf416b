// Package settings is the settings surface: it reads and writes the endpoint
// host and model and offers the endpoint's model list as choices. Rendering
// is pluggable (Renderer); the generate workflow never depends on it.
package settings

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"evolog/cli/internal/config"
	"evolog/cli/internal/erruser"
	"evolog/cli/internal/notify"
)

// OfflineSuffix marks the current model when the model list could not be fetched.
const OfflineSuffix = " (offline?)"

// FixedModels is offered by "edit model" when the endpoint lists nothing.
var FixedModels = []string{
	"mistral-large-3:675b-cloud",
	"llama3.1:8b",
	"codellama:7b",
	"phi3:medium",
	"gemma2:2b",
}

// Values are the two user-editable settings.
type Values struct {
	Host  string `json:"host" yaml:"host"`
	Model string `json:"model" yaml:"model"`
}

// Surface is the settings capability shared by every rendering backend.
type Surface interface {
	Values(ctx context.Context) (Values, error)
	SetValues(ctx context.Context, v Values) error
	RefreshModels(ctx context.Context, host string) []string
}

// Store persists configuration; *config.Store implements it.
type Store interface {
	Load(ctx context.Context) (*config.Config, error)
	Save(ctx context.Context, e config.Edit) error
}

// ModelLister lists the models an endpoint serves; *ollama.Client implements it.
type ModelLister interface {
	ListModels(ctx context.Context, host string) []string
}

// Service implements Surface over a Store and a ModelLister.
type Service struct {
	store    Store
	lister   ModelLister
	log      zerolog.Logger
	notifier notify.Notifier
}

// NewService returns a Service. notifier receives a warning when a saved
// value is shadowed by a higher-precedence source; nil discards it.
func NewService(store Store, lister ModelLister, logger zerolog.Logger, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.Discard
	}
	return &Service{
		store:    store,
		lister:   lister,
		log:      logger.With().Str("component", "settings").Logger(),
		notifier: notifier,
	}
}

// Values reads the current settings. Unset values come back as defaults.
func (s *Service) Values(ctx context.Context) (Values, error) {
	cfg, err := s.store.Load(ctx)
	if err != nil {
		return Values{}, err
	}
	v := Values{Host: cfg.Host, Model: cfg.Model}
	if v.Host == "" {
		v.Host = config.DefaultHost
	}
	if v.Model == "" {
		v.Model = config.DefaultModel
	}
	return v, nil
}

// SetValues validates v and saves the fields that differ from the current
// values. The host must be an absolute http(s) URL; the model must be
// non-empty.
func (s *Service) SetValues(ctx context.Context, v Values) error {
	cur, err := s.Values(ctx)
	if err != nil {
		return err
	}
	var e config.Edit
	if h := strings.TrimSpace(v.Host); h != cur.Host {
		e.Host = &h
	}
	if m := strings.TrimSpace(v.Model); m != cur.Model {
		e.Model = &m
	}
	return s.save(ctx, e)
}

// SetHost saves only the host.
func (s *Service) SetHost(ctx context.Context, host string) error {
	host = strings.TrimSpace(host)
	return s.save(ctx, config.Edit{Host: &host})
}

// SetModel saves only the model.
func (s *Service) SetModel(ctx context.Context, model string) error {
	model = strings.TrimSpace(model)
	return s.save(ctx, config.Edit{Model: &model})
}

func (s *Service) save(ctx context.Context, e config.Edit) error {
	if e.Empty() {
		return nil
	}
	if e.Host != nil {
		if err := config.ValidateHost(*e.Host); err != nil {
			return err
		}
	}
	if e.Model != nil && *e.Model == "" {
		return erruser.New("Please choose a model.", nil)
	}
	if err := s.store.Save(ctx, e); err != nil {
		return err
	}
	ev := s.log.Info()
	if e.Host != nil {
		ev = ev.Str("host", *e.Host)
	}
	if e.Model != nil {
		ev = ev.Str("model", *e.Model)
	}
	ev.Msg("settings saved")
	s.warnShadowed(ctx, e)
	return nil
}

// warnShadowed tells the user when a saved value is not the effective one
// because a higher-precedence source sets it.
func (s *Service) warnShadowed(ctx context.Context, e config.Edit) {
	cur, err := s.Values(ctx)
	if err != nil {
		s.log.Warn().Err(err).Msg("reload after save")
		return
	}
	if e.Host != nil && cur.Host != *e.Host {
		s.notifier.Notify(notify.LevelWarn, fmt.Sprintf(
			"Host saved, but a repository config, env var or flag sets it; %s stays in effect.", cur.Host))
	}
	if e.Model != nil && cur.Model != *e.Model {
		s.notifier.Notify(notify.LevelWarn, fmt.Sprintf(
			"Model saved, but a repository config, env var or flag sets it; %s stays in effect.", cur.Model))
	}
}

// RefreshModels fetches the model list from host. It never fails; an
// unreachable endpoint yields an empty list.
func (s *Service) RefreshModels(ctx context.Context, host string) []string {
	models := s.lister.ListModels(ctx, host)
	s.log.Debug().Str("host", host).Int("count", len(models)).Msg("models refreshed")
	return models
}

// ModelCandidates returns fetched, or FixedModels when fetched is empty.
func ModelCandidates(fetched []string) []string {
	if len(fetched) > 0 {
		return fetched
	}
	return append([]string(nil), FixedModels...)
}

// Option is one selectable model.
type Option struct {
	Label string
	Value string
}

// ModelOptions turns a fetched model list into choices and returns the index
// of the current model. With nothing fetched, the only choice is the current
// model labelled as possibly offline. A current model missing from the list
// selects the first entry.
func ModelOptions(fetched []string, current string) ([]Option, int) {
	if len(fetched) == 0 {
		return []Option{{Label: current + OfflineSuffix, Value: current}}, 0
	}
	opts := make([]Option, 0, len(fetched))
	selected := 0
	for i, name := range fetched {
		opts = append(opts, Option{Label: name, Value: name})
		if name == current {
			selected = i
		}
	}
	return opts, selected
}
