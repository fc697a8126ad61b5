// Package aiclient implements the AIExtractionClient (C2): an abstract HTTP
// call to an external entity-extraction service with prompt templates,
// timeouts, and retry/backoff.
package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/knoguchi/ingestor/internal/domain"
	"github.com/knoguchi/ingestor/internal/ingerrors"
)

// Template names spec.md §4.2 enumerates.
const (
	TemplateEntityExtraction = "entity_extraction"
	TemplateTextEntities     = "text_entities"
	TemplateTextEntitiesCustom = "text_entities_custom"
	TemplateCode             = "code"
	TemplateImage            = "image"
	TemplatePDF              = "pdf"
	TemplateGeneric          = "generic"
)

// Options configures a single extraction call.
type Options struct {
	ContentType string
	EntityTypes []string
	Context     string
	Language    string
	MaxTokens   int
	Temperature float32
	TimeoutMs   int
}

// Result is the shape the AI backend must return: a JSON object with an
// entities array, each entity carrying its mentions.
type Result struct {
	Entities []domain.ExtractedEntity
}

// entityWire/mentionWire mirror Result's JSON shape exactly as the backend
// must produce it (spec.md §4.2).
type entityWire struct {
	Name        string        `json:"name"`
	Type        string        `json:"type"`
	Description string        `json:"description,omitempty"`
	Mentions    []mentionWire `json:"mentions"`
}

type mentionWire struct {
	Context   string  `json:"context"`
	Position  int     `json:"position"`
	Relevance float64 `json:"relevance"`
}

type responseWire struct {
	Entities []entityWire `json:"entities"`
}

// Client is the production AIExtractionClient: a real HTTP client with
// retries, grounded on the teacher's internal/llm/ollama.go functional-option
// + JSON POST/decode idiom, generalized from an Ollama-specific client to an
// arbitrary entity-extraction endpoint (spec.md treats the backend wire
// protocol as abstract).
type Client struct {
	endpoint   string
	credential string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    int
}

// Option is a functional option for configuring Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.httpClient = h } }
func WithModel(model string) Option        { return func(c *Client) { c.model = model } }
func WithRetries(n int) Option             { return func(c *Client) { c.retries = n } }
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1) }
}

// New constructs a Client. endpoint/credential come from Config.AIEndpoint /
// Config.AICredential; an empty credential means "missing-credentials",
// surfaced immediately per spec.md §4.2 rather than attempted and retried.
func New(endpoint, credential, model string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		credential: credential,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
		retries:    3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze constructs a prompt from the named template (augmented by opts)
// and calls the backend, validating the JSON shape of the response.
func (c *Client) Analyze(ctx context.Context, text, templateName string, opts Options) (Result, error) {
	if c.credential == "" {
		return Result{}, ingerrors.New(ingerrors.Validation, "missing-credentials")
	}

	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	prompt := buildPrompt(templateName, text, opts)

	var result Result
	permanent := false
	operation := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			permanent = true
			return backoff.Permanent(ingerrors.Wrap(ingerrors.Transient, "rate limiter wait", err))
		}
		r, err := c.call(ctx, prompt)
		if err != nil {
			_, permanent = err.(*backoff.PermanentError)
			return err
		}
		result = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.RandomizationFactor = 0.2 // ±20% jitter
	bo.Multiplier = 2
	policy := backoff.WithMaxRetries(bo, uint64(c.retries))

	err := backoff.Retry(operation, backoff.WithContext(policy, ctx))
	if err != nil {
		// Retry hands back a permanent error's inner error, which keeps its
		// own kind (Validation, Corruption, ...).
		if permanent {
			return Result{}, err
		}
		return Result{}, ingerrors.Wrap(ingerrors.Upstream, "ai extraction failed after retries", err)
	}
	return result, nil
}

// ExtractEntities is a thin wrapper choosing TemplateEntityExtraction and
// layering contentType into Options, per spec.md §4.2's second contract entry.
func (c *Client) ExtractEntities(ctx context.Context, text, contentType string, opts Options) (Result, error) {
	opts.ContentType = contentType
	return c.Analyze(ctx, text, TemplateEntityExtraction, opts)
}

func (c *Client) call(ctx context.Context, prompt string) (Result, error) {
	body, err := json.Marshal(map[string]any{
		"model":  c.model,
		"prompt": prompt,
	})
	if err != nil {
		return Result{}, backoff.Permanent(ingerrors.Wrap(ingerrors.Validation, "marshal request", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/extract", bytes.NewReader(body))
	if err != nil {
		return Result{}, backoff.Permanent(ingerrors.Wrap(ingerrors.Validation, "build request", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.credential)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// network/timeout errors are retriable.
		return Result{}, ingerrors.Wrap(ingerrors.Transient, "ai request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, ingerrors.Wrap(ingerrors.Transient, "read ai response", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Result{}, ingerrors.Wrap(ingerrors.Transient, fmt.Sprintf("ai backend status %d", resp.StatusCode), fmt.Errorf("%s", data))
	case resp.StatusCode >= 400:
		return Result{}, backoff.Permanent(ingerrors.Wrap(ingerrors.Corruption, fmt.Sprintf("ai backend status %d", resp.StatusCode), fmt.Errorf("%s", data)))
	}

	var wire responseWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return Result{}, backoff.Permanent(ingerrors.Wrap(ingerrors.Corruption, "malformed ai response", err))
	}

	entities := make([]domain.ExtractedEntity, 0, len(wire.Entities))
	for _, e := range wire.Entities {
		mentions := make([]domain.ExtractedMention, 0, len(e.Mentions))
		for _, m := range e.Mentions {
			mentions = append(mentions, domain.ExtractedMention{Context: m.Context, Position: m.Position, Relevance: m.Relevance})
		}
		entities = append(entities, domain.ExtractedEntity{
			Name:        e.Name,
			Type:        domain.EntityType(e.Type),
			Description: e.Description,
			Mentions:    mentions,
		})
	}
	return Result{Entities: entities}, nil
}
