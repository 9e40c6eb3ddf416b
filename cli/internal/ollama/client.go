// Package ollama provides an HTTP client for the Ollama API: text generation,
// model listing and a health/model check.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"

	"evolog/cli/internal/version"
)

// DefaultPort is used when an http host names no port.
const DefaultPort = "11434"

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 32 << 20

const (
	generatePath = "/api/generate"
	tagsPath     = "/api/tags"
)

var (
	// ErrUnreachable indicates the server could not be reached: invalid host,
	// connection refused, or the exchange aborted mid-transfer. Check also
	// reports non-200 replies with it.
	ErrUnreachable = errors.New("ollama server unreachable")
	// ErrMalformedResponse indicates the reply body was not the expected JSON.
	ErrMalformedResponse = errors.New("ollama returned a malformed response")
	// ErrEmptyResponse indicates valid JSON without a usable "response" text.
	ErrEmptyResponse = errors.New("no response from ollama")
)

// Client calls the Ollama API. The host is passed per call so configuration
// edits take effect on the next request. Zero value is not valid; use NewClient.
type Client struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// CheckResult is the result of a health/model check.
type CheckResult struct {
	Reachable    bool     // Server responded with 200.
	ModelPresent bool     // Requested model name appears in the tags list.
	ModelNames   []string // All model names from /api/tags (for diagnostics).
}

// NewClient builds an Ollama client. If httpClient is nil, a client without a
// client-level timeout is used; bound requests with the context instead.
func NewClient(httpClient *http.Client, logger zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient, log: logger.With().Str("component", "ollama").Logger()}
}

// generateRequest is the exact wire body of a non-streaming generation.
type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// EndpointURL resolves path against host. Any path already on host is
// replaced. An http host without a port gets DefaultPort.
func EndpointURL(host, path string) (string, error) {
	base, err := url.Parse(strings.TrimSpace(host))
	if err != nil {
		return "", fmt.Errorf("parse host %q: %w", host, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("host %q is not an absolute URL", host)
	}
	u := base.ResolveReference(&url.URL{Path: path})
	if u.Scheme == "http" && u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), DefaultPort)
	}
	return u.String(), nil
}

// Generate sends prompt to model at host and returns the generated text.
// Errors wrap ErrUnreachable, ErrMalformedResponse or ErrEmptyResponse.
func (c *Client) Generate(ctx context.Context, host, model, prompt string) (string, error) {
	endpoint, err := EndpointURL(host, generatePath)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", errors.Join(ErrUnreachable, err))
	}
	payload, err := json.Marshal(generateRequest{Model: model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("ollama generate: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("ollama generate request: %w", errors.Join(ErrUnreachable, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	c.log.Debug().Str("url", endpoint).Str("model", model).Int("prompt_bytes", len(prompt)).Msg("generate request")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", errors.Join(ErrUnreachable, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("ollama generate: read response: %w", errors.Join(ErrUnreachable, err))
	}
	c.log.Debug().Int("status", resp.StatusCode).Int("body_bytes", len(body)).Msg("generate response")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError(resp, body)
	}

	var out api.GenerateResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("ollama generate: %w: %w", ErrMalformedResponse, err)
	}
	text := strings.TrimSpace(out.Response)
	if text == "" {
		return "", fmt.Errorf("ollama generate: %w", ErrEmptyResponse)
	}
	return text, nil
}

// statusError converts a non-2xx reply. Ollama reports failures as
// {"error": "..."}; that text is kept so the user sees e.g. "model not found".
// A body that is not JSON is malformed whatever the status; JSON without
// error text counts as empty.
func statusError(resp *http.Response, body []byte) error {
	se := api.StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	if err := json.Unmarshal(body, &se); err != nil {
		return fmt.Errorf("ollama generate: %w: HTTP %d: %w", ErrMalformedResponse, resp.StatusCode, err)
	}
	if se.ErrorMessage == "" {
		return fmt.Errorf("ollama generate: %w: HTTP %d", ErrEmptyResponse, resp.StatusCode)
	}
	return fmt.Errorf("ollama generate: %w: %w", ErrEmptyResponse, se)
}

// ListModels returns the model names served at host, in endpoint order. It
// never fails: any network, status or parse problem is logged and yields an
// empty slice.
func (c *Client) ListModels(ctx context.Context, host string) []string {
	resp, err := c.tags(ctx, host)
	if err != nil {
		c.log.Warn().Err(err).Str("host", host).Msg("failed to fetch models")
		return []string{}
	}
	return modelNames(resp)
}

// Check verifies the server is reachable and whether the given model is present.
// It GETs /api/tags and parses the response. On connection/HTTP error returns ErrUnreachable (via %w).
func (c *Client) Check(ctx context.Context, host, model string) (*CheckResult, error) {
	resp, err := c.tags(ctx, host)
	if err != nil {
		return nil, err
	}
	names := modelNames(resp)
	modelPresent := false
	for _, n := range names {
		if n == model {
			modelPresent = true
			break
		}
	}
	return &CheckResult{
		Reachable:    true,
		ModelPresent: modelPresent,
		ModelNames:   names,
	}, nil
}

func (c *Client) tags(ctx context.Context, host string) (*api.ListResponse, error) {
	endpoint, err := EndpointURL(host, tagsPath)
	if err != nil {
		return nil, fmt.Errorf("ollama tags: %w", errors.Join(ErrUnreachable, err))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("ollama tags request: %w", err)
	}
	req.Header.Set("User-Agent", version.UserAgent())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama tags: %w", errors.Join(ErrUnreachable, err))
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama tags: %w: HTTP %d", ErrUnreachable, resp.StatusCode)
	}
	var body api.ListResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("ollama tags: %w: %w", ErrMalformedResponse, err)
	}
	return &body, nil
}

func modelNames(resp *api.ListResponse) []string {
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		if m.Name == "" {
			continue
		}
		names = append(names, m.Name)
	}
	return names
}
