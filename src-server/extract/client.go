package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	StatusAttempting = "Attempting to get event details... (Try %d/%d)"
	StatusSuccess    = "Successfully extracted %d event(s)."
	StatusTerminal   = "Error: %s - this error cannot be retried."
	StatusRetrying   = "Error occurred (%s), retrying in %.0f seconds..."
	StatusMaxRetries = "Error: Max retries reached. Failed to create event."
)

// RawEvent is one event object as the model returned it.
type RawEvent = map[string]any

// StatusFunc receives human readable progress lines.
type StatusFunc func(string)

type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxBackoff time.Duration
	Generation GenerationConfig
}

func DefaultConfig() Config {
	return Config{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxBackoff: 10 * time.Second,
		Generation: DefaultGenerationConfig(),
	}
}

// Client asks an LLM provider for the events described in free text and
// images, retrying transient failures with exponential backoff.
type Client struct {
	slot      chan struct{}
	transport Transport
	config    Config
	location  *time.Location
	maskedKey string
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	onRetry   func(attempt int, err error)
}

type Option func(*Client)

func WithConfig(config Config) Option {
	return func(c *Client) { c.config = config }
}

// WithLocation sets the timezone the prompt reports to the model.
func WithLocation(loc *time.Location) Option {
	return func(c *Client) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithMaskedKey sets the key shown in logs when the provider rejects it.
func WithMaskedKey(masked string) Option {
	return func(c *Client) { c.maskedKey = masked }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Client) { c.sleep = sleep }
}

// WithRetryHook is called before every backoff sleep.
func WithRetryHook(hook func(attempt int, err error)) Option {
	return func(c *Client) { c.onRetry = hook }
}

func NewClient(transport Transport, opts ...Option) *Client {
	c := &Client{
		slot:      make(chan struct{}, 1),
		transport: transport,
		config:    DefaultConfig(),
		location:  time.Local,
		maskedKey: "<empty>",
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.config.MaxRetries < 1 {
		c.config.MaxRetries = 1
	}
	return c
}

// Extract returns the raw event objects found in description and images.
// Calls on the same Client run one at a time; a caller waiting for its turn
// gives up as soon as ctx is done.
func (c *Client) Extract(ctx context.Context, description string, images []Image, status StatusFunc) ([]RawEvent, error) {
	select {
	case c.slot <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("(*Client).Extract: %w", ctx.Err())
	}
	defer func() { <-c.slot }()

	if status == nil {
		status = func(string) {}
	}
	prompt := BuildPrompt(description, c.now().In(c.location))
	maxRetries := c.config.MaxRetries
	schedule := c.newSchedule()

	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("(*Client).Extract: %w", err)
		}
		status(fmt.Sprintf(StatusAttempting, attempt+1, maxRetries))
		slog.Debug("extraction attempt", "attempt", attempt+1, "max", maxRetries)

		events, err := c.attempt(ctx, prompt, images)
		if err == nil {
			slog.Debug("extracted events", "count", len(events))
			status(fmt.Sprintf(StatusSuccess, len(events)))
			return events, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("(*Client).Extract: %w", ctxErr)
		}
		name := errorName(err)
		slog.Debug("extraction attempt failed", "attempt", attempt+1, "type", name, "error", err)

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		if IsAPIKeyError(err) {
			return nil, wrapAPIKeyError(err, c.maskedKey)
		}
		if Classify(err) == Terminal {
			status(fmt.Sprintf(StatusTerminal, name))
			return nil, err
		}
		if attempt >= maxRetries-1 {
			status(StatusMaxRetries)
			return nil, &RetryExhaustedError{Attempts: maxRetries, LastErr: err}
		}

		delay := schedule.NextBackOff()
		status(fmt.Sprintf(StatusRetrying, name, delay.Seconds()))
		if c.onRetry != nil {
			c.onRetry(attempt+1, err)
		}
		if err := c.sleep(ctx, delay); err != nil {
			return nil, fmt.Errorf("(*Client).Extract: %w", err)
		}
	}
	// unreachable: the last attempt always returns
	return nil, &RetryExhaustedError{Attempts: maxRetries}
}

// newSchedule yields BaseDelay, 2*BaseDelay, 4*BaseDelay... capped at
// MaxBackoff. A non-positive MaxBackoff leaves the schedule uncapped.
func (c *Client) newSchedule() *backoff.ExponentialBackOff {
	maxInterval := c.config.MaxBackoff
	if maxInterval <= 0 {
		maxInterval = time.Duration(math.MaxInt64)
	}
	initial := min(c.config.BaseDelay, maxInterval)
	schedule := &backoff.ExponentialBackOff{
		InitialInterval:     initial,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         maxInterval,
	}
	schedule.Reset()
	return schedule
}

func (c *Client) attempt(ctx context.Context, prompt string, images []Image) ([]RawEvent, error) {
	history, err := c.uploadImages(ctx, images)
	if err != nil {
		return nil, err
	}
	reply, err := c.transport.Generate(ctx, Request{
		System:  SystemPrompt,
		History: history,
		Prompt:  prompt,
		Config:  c.config.Generation,
	})
	if err != nil {
		return nil, err
	}
	text, err := reply.Normalize()
	if err != nil {
		return nil, err
	}
	slog.Debug("raw model response", "text", text)
	return ParseEvents(text)
}

// uploadImages uploads every image for this attempt. A rejected key stops the
// attempt; any other upload failure only drops that image.
func (c *Client) uploadImages(ctx context.Context, images []Image) ([]Turn, error) {
	if len(images) == 0 {
		return nil, nil
	}
	parts := make([]Part, 0, len(images))
	for _, image := range images {
		part, err := c.transport.Upload(ctx, image)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return nil, apiErr
			}
			if IsAPIKeyError(err) {
				return nil, wrapAPIKeyError(err, c.maskedKey)
			}
			slog.Warn("failed to upload image", "image", image.Name, "error", err)
			continue
		}
		parts = append(parts, part)
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return []Turn{{Role: "user", Parts: parts}}, nil
}

// ParseEvents decodes the model's answer. Markdown code fences are stripped,
// and a single object is treated as a one element list.
func ParseEvents(text string) ([]RawEvent, error) {
	cleaned := stripFences(text)

	var decoded any
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		slog.Debug("failed to decode JSON", "error", err, "text", cleaned)
		return nil, &ResponseError{Message: fmt.Sprintf("LLM returned invalid JSON: %v", err), Err: err}
	}

	switch v := decoded.(type) {
	case map[string]any:
		return []RawEvent{v}, nil
	case []any:
		events := make([]RawEvent, 0, len(v))
		for i, entry := range v {
			obj, ok := entry.(map[string]any)
			if !ok {
				slog.Warn("dropping non-object entry from model response", "index", i, "value", entry)
				continue
			}
			events = append(events, obj)
		}
		return events, nil
	default:
		return nil, &ResponseError{Message: fmt.Sprintf("LLM returned JSON %T, expected an array of events", decoded)}
	}
}

func stripFences(text string) string {
	cleaned := strings.TrimSpace(text)
	if !strings.HasPrefix(cleaned, "```") {
		return cleaned
	}
	if i := strings.Index(cleaned, "\n"); i >= 0 {
		cleaned = cleaned[i+1:]
	} else {
		cleaned = cleaned[3:]
	}
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
