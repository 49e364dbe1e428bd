// Package generators contains the medkit generator modules. Each module builds
// a prompt, asks the generation service for a typed result and caches that
// result in its own module store.
package generators

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/csverma610/medkit/internal/cache"
	"github.com/csverma610/medkit/internal/llm"
	"github.com/csverma610/medkit/internal/registry"
	"github.com/csverma610/medkit/internal/schema"
)

// ErrInvalidInput is returned before any cache or generation work when a
// request is malformed.
var ErrInvalidInput = errors.New("generators: invalid input")

const maxAge = 150

// Runner carries what every module needs: the registry for model lookup, the
// generation client and the cache options shared by all module stores.
type Runner struct {
	Registry *registry.Registry
	Client   llm.Client
	// Model overrides the registry model for every module when non-empty.
	Model string
	// Cache holds the shared store options. Module and Path are derived per
	// module.
	Cache   cache.Options
	Metrics *cache.Metrics
	Logger  *zerolog.Logger

	Timeout    time.Duration
	MaxRetries int
	RetryBase  time.Duration
	Verbose    bool
}

func (r *Runner) logger() zerolog.Logger {
	if r.Logger != nil {
		return *r.Logger
	}
	return log.Logger
}

// Session opens a cache session for module. The caller closes it.
func (r *Runner) Session(module string) *cache.Cache {
	opts := r.Cache
	opts.Path = ""
	return cache.New(cache.NewConfig(module, opts), cache.WithLogger(r.logger()), cache.WithMetrics(r.Metrics))
}

// generator resolves the model for module, falling back to fallback when the
// registry does not know the module.
func (r *Runner) generator(module, fallback string) *llm.Generator {
	model := strings.TrimSpace(r.Model)
	if model == "" {
		model = r.Registry.ModelFor(module, fallback)
	}
	return &llm.Generator{
		Client:     r.Client,
		Model:      model,
		Timeout:    r.Timeout,
		MaxRetries: r.MaxRetries,
		RetryBase:  r.RetryBase,
		Verbose:    r.Verbose,
	}
}

// fetch is the shared get-or-generate step for one typed result.
func fetch[T any](ctx context.Context, c *cache.Cache, g *llm.Generator, codec schema.Codec[T], components []string, prompt string) (T, error) {
	return cache.Fetch(ctx, c, codec, components, func(ctx context.Context) (T, error) {
		return llm.Generate[T](ctx, g, prompt)
	})
}

func requireName(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidInput, field)
	}
	return nil
}

func checkAge(age *int) error {
	if age != nil && (*age < 0 || *age > maxAge) {
		return fmt.Errorf("%w: age must be between 0 and %d years", ErrInvalidInput, maxAge)
	}
	return nil
}

func ageComponent(age *int) string {
	if age == nil {
		return ""
	}
	return strconv.Itoa(*age)
}

// promptContext joins the non-empty parts into sentences.
func promptContext(parts ...string) string {
	var kept []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			kept = append(kept, strings.TrimSpace(p))
		}
	}
	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, ". ") + "."
}

func labeled(label, v string) string {
	if strings.TrimSpace(v) == "" {
		return ""
	}
	return label + ": " + strings.TrimSpace(v)
}

func ageLabel(age *int) string {
	if age == nil {
		return ""
	}
	return fmt.Sprintf("Patient age: %d years", *age)
}
