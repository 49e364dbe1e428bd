package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/csverma610/medkit/internal/schema"
)

const (
	DefaultTemperature = 0.2
	DefaultTimeout     = 120 * time.Second
	DefaultMaxRetries  = 3
	defaultRetryBase   = 500 * time.Millisecond

	systemPrompt = "You are a careful medical information assistant. Answer only with a single JSON object that matches the requested schema. Do not add commentary or Markdown."
)

var (
	// ErrGeneration marks any failure of the generation service.
	ErrGeneration = errors.New("llm: generation failed")
	// ErrEmptyResponse is returned when the service answers without content.
	ErrEmptyResponse = errors.New("llm: empty response")
	// ErrNotConfigured is returned when a Generator has no client or model.
	ErrNotConfigured = errors.New("llm: generator not configured")
)

// GenerationError wraps the last error of a failed generation.
type GenerationError struct {
	Model    string
	Attempts int
	Err      error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generate with %s after %d attempt(s): %v", e.Model, e.Attempts, e.Err)
}

// Unwrap exposes both ErrGeneration and the cause to errors.Is/As.
func (e *GenerationError) Unwrap() []error { return []error{ErrGeneration, e.Err} }

// Generator asks a chat model for a structured result.
type Generator struct {
	Client Client
	Model  string
	// Temperature overrides DefaultTemperature when non-nil. A zero value
	// asks for deterministic sampling.
	Temperature *float32
	// Timeout bounds each attempt. Zero means DefaultTimeout.
	Timeout time.Duration
	// MaxRetries is the number of attempts. Zero means DefaultMaxRetries.
	MaxRetries int
	// RetryBase is the first backoff interval. Zero means 500ms.
	RetryBase time.Duration
	// SystemPrompt overrides the default system message when non-empty.
	SystemPrompt string
	Verbose      bool
}

// Generate sends prompt to g's model with the JSON Schema of T as the
// response format and decodes the answer into T. Transient failures are
// retried with exponential backoff; client errors other than 429 are not.
func Generate[T any](ctx context.Context, g *Generator, prompt string) (T, error) {
	var zero T
	if g == nil || g.Client == nil || strings.TrimSpace(g.Model) == "" {
		return zero, ErrNotConfigured
	}
	req := g.request(prompt, schema.Name[T](), schema.Describe[T]())
	codec := schema.NewCodec[T]("")

	timeout := g.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	tries := g.MaxRetries
	if tries <= 0 {
		tries = DefaultMaxRetries
	}
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = defaultRetryBase
	if g.RetryBase > 0 {
		eb.InitialInterval = g.RetryBase
	}

	lg := log.With().Str("model", g.Model).Str("schema", req.ResponseFormat.JSONSchema.Name).Logger()
	if g.Verbose {
		lg.Debug().Str("prompt", prompt).Msg("generation request")
	}

	attempts := 0
	op := func() (T, error) {
		attempts++
		actx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		resp, err := g.Client.CreateChatCompletion(actx, req)
		if err != nil {
			if ctx.Err() != nil || !retryable(err) {
				return zero, backoff.Permanent(err)
			}
			return zero, err
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return zero, ErrEmptyResponse
		}
		return codec.Decode([]byte(resp.Choices[0].Message.Content))
	}
	v, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithNotify(func(err error, d time.Duration) {
			lg.Warn().Err(err).Dur("retry_in", d).Msg("generation attempt failed")
		}),
	)
	if err != nil {
		return zero, &GenerationError{Model: g.Model, Attempts: attempts, Err: err}
	}
	lg.Debug().Int("attempts", attempts).Msg("generation complete")
	return v, nil
}

func (g *Generator) request(prompt, name string, s json.Marshaler) openai.ChatCompletionRequest {
	system := systemPrompt
	if strings.TrimSpace(g.SystemPrompt) != "" {
		system = g.SystemPrompt
	}
	temp := float32(DefaultTemperature)
	if g.Temperature != nil {
		temp = *g.Temperature
	}
	if temp == 0 {
		// go-openai omits a zero temperature from the request body.
		temp = math.SmallestNonzeroFloat32
	}
	return openai.ChatCompletionRequest{
		Model: g.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: temp,
		N:           1,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: s,
			},
		},
	}
}

// retryable reports whether err is worth another attempt: transport errors,
// 429 and 5xx are; other HTTP statuses and cancellations are not.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	if status == 0 {
		return true
	}
	return status == http.StatusTooManyRequests || status >= 500
}
