package settings

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Renderer presents a Surface to the user.
type Renderer interface {
	Render(ctx context.Context, s Surface) error
}

// Output formats understood by ListView.
const (
	FormatText = "text"
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// ListView prints the settings as a read-only list.
type ListView struct {
	Out    io.Writer
	Format string
	// Models also fetches and lists the endpoint's models.
	Models bool
}

type listDoc struct {
	Host   string   `json:"host" yaml:"host"`
	Model  string   `json:"model" yaml:"model"`
	Models []string `json:"models,omitempty" yaml:"models,omitempty"`
}

// Render implements Renderer.
func (l ListView) Render(ctx context.Context, s Surface) error {
	v, err := s.Values(ctx)
	if err != nil {
		return err
	}
	doc := listDoc{Host: v.Host, Model: v.Model}
	if l.Models {
		doc.Models = s.RefreshModels(ctx, v.Host)
	}

	switch l.Format {
	case FormatYAML:
		enc := yaml.NewEncoder(l.Out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode settings: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(l.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case FormatText, "":
		return writeText(l.Out, doc, l.Models)
	default:
		return fmt.Errorf("unknown output format %q (want text, yaml or json)", l.Format)
	}
}

func writeText(w io.Writer, doc listDoc, withModels bool) error {
	if _, err := fmt.Fprintf(w, "Host: %s\nModel: %s\n", doc.Host, doc.Model); err != nil {
		return err
	}
	if !withModels {
		return nil
	}
	if len(doc.Models) == 0 {
		_, err := fmt.Fprintf(w, "Models: none available%s\n", OfflineSuffix)
		return err
	}
	if _, err := fmt.Fprintln(w, "Models:"); err != nil {
		return err
	}
	for _, m := range doc.Models {
		marker := " "
		if m == doc.Model {
			marker = "*"
		}
		if _, err := fmt.Fprintf(w, "  %s %s\n", marker, m); err != nil {
			return err
		}
	}
	return nil
}
