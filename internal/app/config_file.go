package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// FileConfig represents the single-file configuration schema.
type FileConfig struct {
	LLM struct {
		BaseURL    string        `yaml:"base" json:"base"`
		Model      string        `yaml:"model" json:"model"`
		APIKey     string        `yaml:"key" json:"key"`
		Timeout    time.Duration `yaml:"timeout" json:"timeout"`
		MaxRetries int           `yaml:"maxRetries" json:"maxRetries"`
	} `yaml:"llm" json:"llm"`

	Registry string `yaml:"registry" json:"registry"`

	Cache struct {
		Dir                  string        `yaml:"dir" json:"dir"`
		CapacityMB           int           `yaml:"capacityMB" json:"capacityMB"`
		CompressionThreshold int           `yaml:"compressionThreshold" json:"compressionThreshold"`
		MaxAge               time.Duration `yaml:"maxAge" json:"maxAge"`
		Disable              bool          `yaml:"disable" json:"disable"`
		Overwrite            bool          `yaml:"overwrite" json:"overwrite"`
	} `yaml:"cache" json:"cache"`

	Output struct {
		Dir  string `yaml:"dir" json:"dir"`
		JSON bool   `yaml:"json" json:"json"`
	} `yaml:"output" json:"output"`

	Verbose bool   `yaml:"verbose" json:"verbose"`
	LogFile string `yaml:"logFile" json:"logFile"`
	Metrics bool   `yaml:"metrics" json:"metrics"`
}

// LoadConfigFile reads YAML or JSON into FileConfig.
func LoadConfigFile(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(b, &fc); err != nil {
			return fc, fmt.Errorf("parse json: %w", err)
		}
	default:
		if err := yaml.Unmarshal(b, &fc); err != nil {
			if jerr := json.Unmarshal(b, &fc); jerr != nil {
				return fc, fmt.Errorf("parse config: %v (yaml) / %v (json)", err, jerr)
			}
		}
	}
	return fc, nil
}

// ApplyFileConfig overlays values from fc into cfg for any fields that are
// still unset or at their flag default. Flags should already be parsed.
func ApplyFileConfig(cfg *Config, fc FileConfig) {
	if cfg == nil {
		return
	}
	const (
		outputDirDefault  = "outputs"
		maxRetriesDefault = 3
	)

	if cfg.LLMBaseURL == "" && fc.LLM.BaseURL != "" {
		cfg.LLMBaseURL = fc.LLM.BaseURL
	}
	if cfg.LLMModel == "" && fc.LLM.Model != "" {
		cfg.LLMModel = fc.LLM.Model
	}
	if cfg.LLMAPIKey == "" && fc.LLM.APIKey != "" {
		cfg.LLMAPIKey = fc.LLM.APIKey
	}
	if cfg.LLMTimeout == 0 && fc.LLM.Timeout > 0 {
		cfg.LLMTimeout = fc.LLM.Timeout
	}
	if (cfg.MaxRetries == 0 || cfg.MaxRetries == maxRetriesDefault) && fc.LLM.MaxRetries > 0 {
		cfg.MaxRetries = fc.LLM.MaxRetries
	}
	if cfg.RegistryFile == "" && fc.Registry != "" {
		cfg.RegistryFile = fc.Registry
	}

	if cfg.CacheDir == "" && fc.Cache.Dir != "" {
		cfg.CacheDir = fc.Cache.Dir
	}
	if cfg.CacheCapacityMB == 0 && fc.Cache.CapacityMB > 0 {
		cfg.CacheCapacityMB = fc.Cache.CapacityMB
	}
	if cfg.CompressionThreshold == 0 && fc.Cache.CompressionThreshold != 0 {
		cfg.CompressionThreshold = fc.Cache.CompressionThreshold
	}
	if cfg.CacheMaxAge == 0 && fc.Cache.MaxAge > 0 {
		cfg.CacheMaxAge = fc.Cache.MaxAge
	}
	if !cfg.NoCache && fc.Cache.Disable {
		cfg.NoCache = true
	}
	if !cfg.CacheOverwrite && fc.Cache.Overwrite {
		cfg.CacheOverwrite = true
	}

	if (cfg.OutputDir == "" || cfg.OutputDir == outputDirDefault) && fc.Output.Dir != "" {
		cfg.OutputDir = fc.Output.Dir
	}
	if !cfg.JSON && fc.Output.JSON {
		cfg.JSON = true
	}
	if !cfg.Verbose && fc.Verbose {
		cfg.Verbose = true
	}
	if cfg.LogFile == "" && fc.LogFile != "" {
		cfg.LogFile = fc.LogFile
	}
	if !cfg.Metrics && fc.Metrics {
		cfg.Metrics = true
	}
}

// ValidateConfig performs minimal validation of settings that would otherwise
// fail late.
func ValidateConfig(cfg Config) error {
	if cfg.CacheCapacityMB < 0 {
		return errors.New("config: cache capacity must not be negative")
	}
	if cfg.CompressionThreshold < 0 {
		return errors.New("config: compression threshold must not be negative")
	}
	if cfg.CacheMaxAge < 0 {
		return errors.New("config: cache max age must not be negative")
	}
	if cfg.MaxRetries < 0 {
		return errors.New("config: max retries must not be negative")
	}
	if cfg.LLMTimeout < 0 {
		return errors.New("config: llm timeout must not be negative")
	}
	if strings.TrimSpace(cfg.OutputPath) != "" && strings.HasSuffix(cfg.OutputPath, string(os.PathSeparator)) {
		return errors.New("config: output path must name a file")
	}
	return nil
}
