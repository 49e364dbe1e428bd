package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/csverma610/medkit/internal/app"
	"github.com/csverma610/medkit/internal/cache"
	"github.com/csverma610/medkit/internal/generators"
	"github.com/csverma610/medkit/internal/llm/llmstub"
)

func stubServer(t *testing.T) (*llmstub.Server, string) {
	t.Helper()
	s := llmstub.New("stub-model")
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return s, srv.URL + "/v1"
}

// Smoke test: run() talks to an OpenAI-compatible server, writes the result
// and serves the second request from the module store.
func TestRun_AgainstStub_CachesResult(t *testing.T) {
	stub, base := stubServer(t)
	dir := t.TempDir()
	cfg := app.Config{
		LLMBaseURL:    base,
		LLMAPIKey:     "test",
		CacheDir:      filepath.Join(dir, "storage"),
		OutputDir:     filepath.Join(dir, "outputs"),
		CacheTestMode: cache.Never,
	}
	args := []string{"drug_drug_interaction", "-age", "70", "Warfarin", "Aspirin"}
	for i := 0; i < 2; i++ {
		if err := run(context.Background(), cfg, args, &bytes.Buffer{}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	if stub.Calls() != 1 {
		t.Fatalf("expected one completion, got %d", stub.Calls())
	}
	b, err := os.ReadFile(filepath.Join(dir, "outputs", "warfarin_aspirin_drug_drug_interaction.json"))
	if err != nil {
		t.Fatalf("output missing: %v", err)
	}
	var res generators.InteractionResult
	if err := json.Unmarshal(b, &res); err != nil || res.InteractionDetails == nil {
		t.Fatalf("bad output: %v", err)
	}
}

// Under go test the cache is bypassed unless a test opts in.
func TestRun_TestModeBypassesStore(t *testing.T) {
	stub, base := stubServer(t)
	dir := t.TempDir()
	cfg := app.Config{
		LLMBaseURL: base,
		CacheDir:   filepath.Join(dir, "storage"),
		OutputDir:  filepath.Join(dir, "outputs"),
		JSON:       true,
	}
	var out bytes.Buffer
	for i := 0; i < 2; i++ {
		out.Reset()
		if err := run(context.Background(), cfg, []string{"disease_info", "Hypertension"}, &out); err != nil {
			t.Fatalf("run: %v", err)
		}
	}
	if stub.Calls() != 18 {
		t.Fatalf("expected every section regenerated, got %d calls", stub.Calls())
	}
	if _, err := os.Stat(filepath.Join(dir, "storage", "disease_info.db")); !os.IsNotExist(err) {
		t.Fatalf("store must not be created in test mode, stat err=%v", err)
	}
	if !strings.Contains(out.String(), `"icd_10_code": "I10"`) {
		t.Fatalf("stdout missing JSON result:\n%s", out.String())
	}
}

func TestRealMain_ExitCodes(t *testing.T) {
	t.Setenv("MEDKIT_CONFIG", "")
	_, base := stubServer(t)
	dir := t.TempDir()
	common := []string{"-env", "", "-llm.base", base, "-cache.dir", filepath.Join(dir, "s"), "-output.dir", filepath.Join(dir, "o")}

	cases := []struct {
		name string
		args []string
		want int
	}{
		{"modules", []string{"modules"}, 0},
		{"version", []string{"version"}, 0},
		{"generate", []string{"surgical_tool_info", "Scalpel"}, 0},
		{"no command", nil, 2},
		{"unknown module", []string{"no_such_module"}, 2},
		{"invalid age", []string{"drug_food_interaction", "-age", "-3", "Warfarin"}, 2},
		{"bad flag", []string{"-nope"}, 2},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			args := append(append([]string{}, common...), c.args...)
			if got := realMain(args, &bytes.Buffer{}, &bytes.Buffer{}); got != c.want {
				t.Fatalf("exit code = %d, want %d", got, c.want)
			}
		})
	}
}

func TestRealMain_GenerationFailureExitsOne(t *testing.T) {
	t.Setenv("MEDKIT_CONFIG", "")
	dir := t.TempDir()
	srv := httptest.NewServer(nil)
	base := srv.URL + "/v1"
	srv.Close()
	args := []string{"-env", "", "-llm.base", base, "-llm.retries", "1", "-cache.dir", filepath.Join(dir, "s"), "-output.dir", filepath.Join(dir, "o"), "surgical_tool_info", "Scalpel"}
	if got := realMain(args, &bytes.Buffer{}, &bytes.Buffer{}); got != 1 {
		t.Fatalf("exit code = %d, want 1", got)
	}
}

func TestLoadConfig_Layering(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "medkit.yaml")
	if err := os.WriteFile(file, []byte("llm:\n  model: file-model\n  base: http://file/v1\ncache:\n  capacityMB: 12\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("LLM_BASE_URL=http://env/v1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LLM_BASE_URL", "")
	t.Setenv("LLM_MODEL", "")

	cfg := app.Config{LLMAPIKey: "flag-key", OutputDir: "outputs", MaxRetries: 3}
	if err := loadConfig(&cfg, map[string]bool{"llm.key": true}, file, envFile); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.LLMModel != "file-model" {
		t.Fatalf("file value lost: %q", cfg.LLMModel)
	}
	if cfg.LLMBaseURL != "http://env/v1" {
		t.Fatalf("env should beat file: %q", cfg.LLMBaseURL)
	}
	if cfg.LLMAPIKey != "flag-key" || cfg.CacheCapacityMB != 12 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfig_EnvBeatsFlagDefaultsWithoutFile(t *testing.T) {
	t.Setenv("OUTPUT_DIR", "env-outputs")
	t.Setenv("LLM_MAX_RETRIES", "5")
	t.Setenv("LLM_MODEL", "env-model")
	t.Setenv("NO_CACHE", "1")

	cfg := app.Config{LLMModel: "flag-model", OutputDir: "outputs", MaxRetries: 3}
	if err := loadConfig(&cfg, map[string]bool{"llm.model": true}, "", ""); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.OutputDir != "env-outputs" || cfg.MaxRetries != 5 {
		t.Fatalf("env should replace flag defaults: dir=%q retries=%d", cfg.OutputDir, cfg.MaxRetries)
	}
	if cfg.LLMModel != "flag-model" {
		t.Fatalf("explicit flag should beat env: %q", cfg.LLMModel)
	}
	if !cfg.NoCache {
		t.Fatal("NO_CACHE from env not applied")
	}

	cfg = app.Config{OutputDir: "outputs", MaxRetries: 3}
	if err := loadConfig(&cfg, map[string]bool{"output.dir": true, "llm.retries": true}, "", ""); err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.OutputDir != "outputs" || cfg.MaxRetries != 3 {
		t.Fatalf("explicit default-valued flags should win: dir=%q retries=%d", cfg.OutputDir, cfg.MaxRetries)
	}
}
