package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/csverma610/medkit/internal/app"
)

func main() {
	os.Exit(realMain(os.Args[1:], os.Stdout, os.Stderr))
}

// realMain parses global flags, layers configuration and runs one command.
// It returns the process exit code.
func realMain(argv []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("medkit", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		app.Usage(stderr)
		fmt.Fprintln(stderr, "\nflags:")
		fs.PrintDefaults()
	}

	var (
		cfg        app.Config
		configFile string
		envFiles   string
	)
	fs.StringVar(&configFile, "config", os.Getenv("MEDKIT_CONFIG"), "Path to YAML or JSON config file")
	fs.StringVar(&envFiles, "env", ".env", "Comma-separated dotenv files to load before reading env")
	fs.StringVar(&cfg.LLMBaseURL, "llm.base", "", "OpenAI-compatible base URL")
	fs.StringVar(&cfg.LLMModel, "llm.model", "", "Model override for every module (default: registry model)")
	fs.StringVar(&cfg.LLMAPIKey, "llm.key", "", "API key for the OpenAI-compatible server")
	fs.DurationVar(&cfg.LLMTimeout, "llm.timeout", 0, "Per-attempt generation timeout (default 2m)")
	fs.IntVar(&cfg.MaxRetries, "llm.retries", 3, "Generation attempts before giving up")
	fs.StringVar(&cfg.RegistryFile, "registry", "", "YAML module table overlaid on the built-in registry")
	fs.StringVar(&cfg.CacheDir, "cache.dir", "", "Directory holding module stores (default $MEDKIT_HOME/storage or ./storage)")
	fs.IntVar(&cfg.CacheCapacityMB, "cache.capacityMB", 0, "Store capacity in MB (default 500)")
	fs.IntVar(&cfg.CompressionThreshold, "cache.compressThreshold", 0, "Compress values larger than this many bytes (default 100, negative disables)")
	fs.DurationVar(&cfg.CacheMaxAge, "cache.maxAge", 0, "Purge entries older than this before a run; 0 disables")
	fs.BoolVar(&cfg.NoCache, "no-cache", false, "Disable the result cache")
	fs.BoolVar(&cfg.CacheOverwrite, "overwrite", false, "Regenerate and overwrite cached results")
	fs.StringVar(&cfg.OutputDir, "output.dir", "outputs", "Directory for result files")
	fs.StringVar(&cfg.OutputPath, "output", "", "Explicit result file path")
	fs.BoolVar(&cfg.JSON, "json", false, "Print the JSON result to stdout")
	fs.BoolVar(&cfg.Verbose, "v", false, "Verbose logging")
	fs.StringVar(&cfg.LogFile, "log.file", "", "Also append JSON logs to this file")
	fs.BoolVar(&cfg.Metrics, "metrics", false, "Export cache metrics to stderr")
	if err := fs.Parse(argv); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}

	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	if err := loadConfig(&cfg, explicit, configFile, envFiles); err != nil {
		fmt.Fprintf(stderr, "medkit: %v\n", err)
		return 2
	}

	closer, err := app.SetupLogging(stderr, cfg.Verbose, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(stderr, "medkit: %v\n", err)
		return 1
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err = run(ctx, cfg, fs.Args(), stdout)
	if err != nil {
		log.Error().Err(err).Msg("run failed")
		if app.ExitCode(err) == 2 {
			app.Usage(stderr)
		}
	}
	return app.ExitCode(err)
}

// loadConfig layers dotenv, file and env values under the flags the user
// set explicitly. Flags left at their defaults yield to env and file values.
func loadConfig(cfg *app.Config, explicit map[string]bool, configFile, envFiles string) error {
	var paths []string
	for _, p := range strings.Split(envFiles, ",") {
		if s := strings.TrimSpace(p); s != "" {
			paths = append(paths, s)
		}
	}
	if err := app.LoadEnvFiles(paths...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	var layered app.Config
	if strings.TrimSpace(configFile) != "" {
		fc, err := app.LoadConfigFile(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		app.ApplyFileConfig(&layered, fc)
	}
	app.ApplyEnvOverrides(&layered)
	overlayUnset(cfg, layered, explicit)
	return app.ValidateConfig(*cfg)
}

// overlayUnset copies non-zero values from src into dst for every field whose
// flag was not set on the command line.
func overlayUnset(dst *app.Config, src app.Config, explicit map[string]bool) {
	str := func(name string, d *string, s string) {
		if !explicit[name] && s != "" {
			*d = s
		}
	}
	num := func(name string, d *int, s int) {
		if !explicit[name] && s != 0 {
			*d = s
		}
	}
	dur := func(name string, d *time.Duration, s time.Duration) {
		if !explicit[name] && s != 0 {
			*d = s
		}
	}
	boolean := func(name string, d *bool, s bool) {
		if !explicit[name] && s {
			*d = true
		}
	}
	str("llm.base", &dst.LLMBaseURL, src.LLMBaseURL)
	str("llm.model", &dst.LLMModel, src.LLMModel)
	str("llm.key", &dst.LLMAPIKey, src.LLMAPIKey)
	dur("llm.timeout", &dst.LLMTimeout, src.LLMTimeout)
	num("llm.retries", &dst.MaxRetries, src.MaxRetries)
	str("registry", &dst.RegistryFile, src.RegistryFile)
	str("cache.dir", &dst.CacheDir, src.CacheDir)
	num("cache.capacityMB", &dst.CacheCapacityMB, src.CacheCapacityMB)
	num("cache.compressThreshold", &dst.CompressionThreshold, src.CompressionThreshold)
	dur("cache.maxAge", &dst.CacheMaxAge, src.CacheMaxAge)
	boolean("no-cache", &dst.NoCache, src.NoCache)
	boolean("overwrite", &dst.CacheOverwrite, src.CacheOverwrite)
	str("output.dir", &dst.OutputDir, src.OutputDir)
	boolean("json", &dst.JSON, src.JSON)
	boolean("v", &dst.Verbose, src.Verbose)
	str("log.file", &dst.LogFile, src.LogFile)
	boolean("metrics", &dst.Metrics, src.Metrics)
}

func run(ctx context.Context, cfg app.Config, args []string, stdout io.Writer) error {
	start := time.Now()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init app: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("shutdown")
		}
	}()
	err = a.Run(ctx, args, stdout)
	log.Debug().Dur("elapsed", time.Since(start)).Msg("done")
	return err
}
