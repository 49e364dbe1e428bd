package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadEnvFiles_LoadsKeyValues(t *testing.T) {
	t.Setenv("FOO", "")
	t.Setenv("BAR", "")
	t.Setenv("BAZ", "")

	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "\n# sample dotenv file\nFOO=alpha\nexport BAR=\"beta\"\nBAZ='gamma delta'\nmalformed\n=novalue\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write dotenv: %v", err)
	}
	if err := LoadEnvFiles(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	for k, want := range map[string]string{"FOO": "alpha", "BAR": "beta", "BAZ": "gamma delta"} {
		if got := os.Getenv(k); got != want {
			t.Fatalf("%s=%q, want %q", k, got, want)
		}
	}
}

func TestLoadEnvFiles_OverrideOrder(t *testing.T) {
	t.Setenv("K", "")
	dir := t.TempDir()
	a := filepath.Join(dir, ".env.a")
	b := filepath.Join(dir, ".env.b")
	if err := os.WriteFile(a, []byte("K=first\n"), 0o600); err != nil {
		t.Fatalf("write a: %v", err)
	}
	if err := os.WriteFile(b, []byte("K=second\n"), 0o600); err != nil {
		t.Fatalf("write b: %v", err)
	}
	if err := LoadEnvFiles(a, b); err != nil {
		t.Fatalf("LoadEnvFiles error: %v", err)
	}
	if got := os.Getenv("K"); got != "second" {
		t.Fatalf("override order failed: got %q, want second", got)
	}
}

func TestApplyEnvToConfig_FillsUnsetOnly(t *testing.T) {
	t.Setenv("LLM_BASE_URL", "http://env.example/v1")
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("CACHE_DIR", "/tmp/medkit-cache")
	t.Setenv("CACHE_MAX_AGE", "48h")
	t.Setenv("CACHE_CAPACITY_MB", "64")
	t.Setenv("NO_CACHE", "yes")
	t.Setenv("CACHE_OVERWRITE", "0")
	t.Setenv("VERBOSE", "on")

	cfg := Config{LLMModel: "flag-model"}
	ApplyEnvToConfig(&cfg)
	if cfg.LLMModel != "flag-model" {
		t.Fatalf("explicit model overwritten: %q", cfg.LLMModel)
	}
	if cfg.LLMBaseURL != "http://env.example/v1" || cfg.CacheDir != "/tmp/medkit-cache" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.CacheMaxAge != 48*time.Hour || cfg.CacheCapacityMB != 64 {
		t.Fatalf("numeric env not applied: %+v", cfg)
	}
	if !cfg.NoCache || cfg.CacheOverwrite || !cfg.Verbose {
		t.Fatalf("boolean env not applied: %+v", cfg)
	}
}

func TestApplyEnvOverrides_EnvWinsAndFalseyClears(t *testing.T) {
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("NO_CACHE", "false")
	t.Setenv("CACHE_MAX_AGE", "not-a-duration")
	t.Setenv("LLM_MAX_RETRIES", "6")
	t.Setenv("OUTPUT_DIR", "env-out")
	cfg := Config{LLMModel: "file-model", NoCache: true, CacheMaxAge: time.Hour, MaxRetries: 3, OutputDir: "outputs"}
	ApplyEnvOverrides(&cfg)
	if cfg.MaxRetries != 6 || cfg.OutputDir != "env-out" {
		t.Fatalf("retries/output env not applied: %+v", cfg)
	}
	if cfg.LLMModel != "env-model" {
		t.Fatalf("LLMModel=%q, want env-model", cfg.LLMModel)
	}
	if cfg.NoCache {
		t.Fatal("NO_CACHE=false should clear NoCache")
	}
	if cfg.CacheMaxAge != time.Hour {
		t.Fatalf("invalid duration should be ignored, got %v", cfg.CacheMaxAge)
	}
	ApplyEnvOverrides(nil)
}
