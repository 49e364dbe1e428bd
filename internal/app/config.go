package app

import "time"

// Config holds runtime configuration for the application.
type Config struct {
	// LLM
	LLMBaseURL string
	LLMModel   string
	LLMAPIKey  string
	LLMTimeout time.Duration
	MaxRetries int

	// Registry overlay file (YAML). Empty uses the built-in table only.
	RegistryFile string

	// Storage
	CacheDir             string
	CacheCapacityMB      int
	CompressionThreshold int
	CacheMaxAge          time.Duration
	NoCache              bool
	CacheOverwrite       bool
	// CacheTestMode overrides test-mode detection for module stores. Nil
	// keeps the default detection.
	CacheTestMode func() bool

	// Output
	OutputDir  string
	OutputPath string
	JSON       bool

	// Behavior
	Verbose bool
	LogFile string
	Metrics bool
}
