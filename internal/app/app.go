// Package app wires configuration, the module registry, the generation
// client and the module caches into the medkit command surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/csverma610/medkit/internal/cache"
	"github.com/csverma610/medkit/internal/generators"
	"github.com/csverma610/medkit/internal/llm"
	"github.com/csverma610/medkit/internal/registry"
)

// ErrUsage marks a malformed command line. The CLI maps it to exit code 2.
var ErrUsage = errors.New("usage error")

type App struct {
	cfg      Config
	registry *registry.Registry
	client   llm.Client
	runner   *generators.Runner
	mp       *sdkmetric.MeterProvider
}

// Option customizes App construction.
type Option func(*App)

// WithClient replaces the OpenAI-compatible client built from Config.
func WithClient(c llm.Client) Option {
	return func(a *App) { a.client = c }
}

func New(ctx context.Context, cfg Config, opts ...Option) (*App, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	reg, err := loadRegistry(cfg.RegistryFile)
	if err != nil {
		return nil, err
	}
	a := &App{cfg: cfg, registry: reg}
	for _, o := range opts {
		o(a)
	}
	if a.client == nil {
		a.client = llm.NewOpenAIProvider(cfg.LLMBaseURL, cfg.LLMAPIKey, newLLMHTTPClient())
	}

	var meterOpt *cache.Metrics
	if cfg.Metrics {
		mp, meter, err := newMeterProvider(os.Stderr)
		if err != nil {
			return nil, err
		}
		a.mp = mp
		meterOpt, err = cache.NewMetrics(meter)
		if err != nil {
			_ = shutdownMeterProvider(mp)
			return nil, fmt.Errorf("cache metrics: %w", err)
		}
	} else {
		// Global meter provider; a no-op unless something else installed one.
		meterOpt, err = cache.NewMetrics(nil)
		if err != nil {
			return nil, fmt.Errorf("cache metrics: %w", err)
		}
	}

	lg := log.Logger
	a.runner = &generators.Runner{
		Registry:   reg,
		Client:     a.client,
		Model:      strings.TrimSpace(cfg.LLMModel),
		Cache:      a.cacheOptions(),
		Metrics:    meterOpt,
		Logger:     &lg,
		Timeout:    cfg.LLMTimeout,
		MaxRetries: cfg.MaxRetries,
		Verbose:    cfg.Verbose,
	}
	return a, nil
}

func loadRegistry(path string) (*registry.Registry, error) {
	if strings.TrimSpace(path) == "" {
		return registry.Default()
	}
	reg, err := registry.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load registry %s: %w", path, err)
	}
	return reg, nil
}

func (a *App) cacheOptions() cache.Options {
	root := strings.TrimSpace(a.cfg.CacheDir)
	if root == "" {
		root = cache.DefaultRoot()
	}
	return cache.Options{
		Root:                 root,
		CapacityMB:           a.cfg.CacheCapacityMB,
		NoStore:              a.cfg.NoCache,
		Overwrite:            a.cfg.CacheOverwrite,
		CompressionThreshold: a.cfg.CompressionThreshold,
		TestMode:             a.cfg.CacheTestMode,
	}
}

func (a *App) cacheConfig(module string) cache.Config {
	return cache.NewConfig(module, a.cacheOptions())
}

// Close flushes metrics. It is safe to call on a nil App.
func (a *App) Close() error {
	if a == nil {
		return nil
	}
	return shutdownMeterProvider(a.mp)
}

// preflight lists models to surface connectivity problems early. It never
// fails the run.
func (a *App) preflight(ctx context.Context) {
	lister, ok := a.client.(llm.ModelLister)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	models, err := lister.ListModels(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("LLM model list failed; continuing")
		return
	}
	if len(models.Models) == 0 {
		log.Warn().Msg("LLM returned zero models")
		return
	}
	log.Debug().Int("count", len(models.Models)).Msg("LLM models available")
}

// purgeExpired drops entries older than CacheMaxAge from module's store
// before a run. Failures are logged only.
func (a *App) purgeExpired(ctx context.Context, module string) {
	if a.cfg.CacheMaxAge <= 0 {
		return
	}
	cfg := a.cacheConfig(module)
	if !cfg.Enabled() {
		return
	}
	n, err := cache.PurgeByAge(ctx, cfg, a.cfg.CacheMaxAge)
	if err != nil {
		log.Warn().Err(err).Str("module", module).Msg("cache purge failed")
		return
	}
	if n > 0 {
		log.Info().Int("removed", n).Str("module", module).Dur("max_age", a.cfg.CacheMaxAge).Msg("purged expired cache entries")
	}
}

// Run dispatches one command line (without the program name) and writes
// human-readable output to stdout.
func (a *App) Run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", ErrUsage)
	}
	name, rest := args[0], args[1:]
	switch name {
	case "modules":
		return a.runModules(rest, stdout)
	case "cache":
		return a.runCache(ctx, rest, stdout)
	case "version":
		_, err := fmt.Fprintln(stdout, VersionString())
		return err
	}
	cmd, ok := moduleCommands[name]
	if !ok {
		if _, err := a.registry.Require(name); err != nil {
			return err
		}
		return fmt.Errorf("%w: module %s is registered but has no command in this build", ErrUsage, name)
	}
	return a.runModule(ctx, cmd, name, rest, stdout)
}
