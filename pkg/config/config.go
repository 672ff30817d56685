// Package config builds the immutable runtime configuration for surf.
// Configuration is read once at startup from environment variables, with an
// optional YAML overlay file, and passed explicitly into the components that
// need it. Nothing in this package is consulted after process start.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Engine identifiers accepted for PrimaryEngine.
const (
	EngineBrowser = "browser"
	EngineCLI     = "cli"
)

// Config is the complete runtime configuration. It is constructed once by
// Load and treated as read-only afterwards.
type Config struct {
	// Port is the HTTP listen port for surfd.
	Port string

	// PrimaryEngine selects which backend is tried first: "browser" for the
	// scriptable engine, "cli" for the external automation tool.
	PrimaryEngine string

	// AgentEnabled allows the engine's autonomous agent strategy.
	AgentEnabled bool

	// CLIFallbackEnabled allows falling back to the external CLI tool after
	// the engine strategies fail.
	CLIFallbackEnabled bool

	// CLIBinary is the external automation tool executable.
	CLIBinary string

	// CLIHeadless runs the external tool without a visible browser window.
	CLIHeadless bool

	// SuccessMarkers are glob patterns matched (case-insensitively) against
	// each line of the external tool's combined output to detect logical
	// task success. Defaults cover "success: true" and "done: true".
	SuccessMarkers []string

	// OpenAIAPIKey authenticates the engine's act/agent model calls.
	OpenAIAPIKey string

	// OpenAIBaseURL overrides the OpenAI-compatible endpoint. Empty means
	// the provider default.
	OpenAIBaseURL string

	// Model is the model used for act-selector resolution and agent planning.
	Model string

	// Headless runs the scriptable engine's browser headlessly.
	Headless bool

	// Retries is the number of retries around the whole strategy chain.
	// Total attempts = Retries + 1.
	Retries int

	// RetryBackoff is the base linear backoff between chain retries.
	RetryBackoff time.Duration

	// DefaultMaxSteps is used when a request does not supply max_steps.
	DefaultMaxSteps int

	// Timeouts are the configured (pre-floor) budget values.
	Timeouts Timeouts
}

// Timeouts holds the configured duration for each named budget. Zero values
// are raised to each budget's floor by the orchestrator.
type Timeouts struct {
	Init       time.Duration
	Navigation time.Duration
	Action     time.Duration
	Agent      time.Duration
	CLI        time.Duration
	Overall    time.Duration
}

// overlay is the YAML file shape. Only fields present in the file override
// the environment-derived values. Timeout values are duration strings
// ("45s", "3m") since yaml.v3 has no native time.Duration decoding.
type overlay struct {
	PrimaryEngine  *string  `yaml:"primary_engine"`
	AgentEnabled   *bool    `yaml:"agent_enabled"`
	CLIFallback    *bool    `yaml:"cli_fallback"`
	CLIBinary      *string  `yaml:"cli_binary"`
	Model          *string  `yaml:"model"`
	Headless       *bool    `yaml:"headless"`
	SuccessMarkers []string `yaml:"success_markers"`
	Timeouts       struct {
		Init       string `yaml:"init"`
		Navigation string `yaml:"navigation"`
		Action     string `yaml:"action"`
		Agent      string `yaml:"agent"`
		CLI        string `yaml:"cli"`
		Overall    string `yaml:"overall"`
	} `yaml:"timeouts"`
}

// Load reads configuration from the environment. If configPath is non-empty
// the YAML file at that path is applied on top.
func Load(configPath string) (Config, error) {
	cfg := Config{
		Port:               getEnv("SURF_PORT", "8719"),
		PrimaryEngine:      getEnv("SURF_PRIMARY_ENGINE", EngineBrowser),
		AgentEnabled:       getEnvBool("SURF_AGENT_ENABLED", true),
		CLIFallbackEnabled: getEnvBool("SURF_CLI_FALLBACK", true),
		CLIBinary:          getEnv("SURF_CLI_BINARY", "browserctl"),
		CLIHeadless:        getEnvBool("SURF_CLI_HEADLESS", true),
		SuccessMarkers:     []string{"*success: true*", "*done: true*"},
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:      os.Getenv("OPENAI_BASE_URL"),
		Model:              getEnv("SURF_MODEL", "gpt-4o-mini"),
		Headless:           getEnvBool("SURF_HEADLESS", true),
		Retries:            getEnvInt("SURF_RETRIES", 1),
		RetryBackoff:       getEnvDuration("SURF_RETRY_BACKOFF", 500*time.Millisecond),
		DefaultMaxSteps:    getEnvInt("SURF_DEFAULT_MAX_STEPS", 12),
		Timeouts: Timeouts{
			Init:       getEnvDuration("SURF_TIMEOUT_INIT", 20*time.Second),
			Navigation: getEnvDuration("SURF_TIMEOUT_NAVIGATION", 25*time.Second),
			Action:     getEnvDuration("SURF_TIMEOUT_ACTION", 30*time.Second),
			Agent:      getEnvDuration("SURF_TIMEOUT_AGENT", 90*time.Second),
			CLI:        getEnvDuration("SURF_TIMEOUT_CLI", 120*time.Second),
			Overall:    getEnvDuration("SURF_TIMEOUT_OVERALL", 300*time.Second),
		},
	}

	if configPath != "" {
		if err := applyOverlay(&cfg, configPath); err != nil {
			return Config{}, err
		}
	}

	if cfg.PrimaryEngine != EngineBrowser && cfg.PrimaryEngine != EngineCLI {
		return Config{}, fmt.Errorf("invalid primary engine %q", cfg.PrimaryEngine)
	}
	return cfg, nil
}

// Validate checks that the credentials required by the enabled strategies are
// present. It is called once before the orchestrator is constructed; a
// missing credential is fatal and never retried.
func (c Config) Validate() error {
	if c.PrimaryEngine == EngineBrowser && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when the browser engine is primary")
	}
	return nil
}

// HasOpenAICredential reports whether a model credential is configured.
// Exposed for the health endpoint; the key itself is never reported.
func (c Config) HasOpenAICredential() bool {
	return c.OpenAIAPIKey != ""
}

func applyOverlay(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var o overlay
	if err := yaml.Unmarshal(data, &o); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	if o.PrimaryEngine != nil {
		cfg.PrimaryEngine = *o.PrimaryEngine
	}
	if o.AgentEnabled != nil {
		cfg.AgentEnabled = *o.AgentEnabled
	}
	if o.CLIFallback != nil {
		cfg.CLIFallbackEnabled = *o.CLIFallback
	}
	if o.CLIBinary != nil {
		cfg.CLIBinary = *o.CLIBinary
	}
	if o.Model != nil {
		cfg.Model = *o.Model
	}
	if o.Headless != nil {
		cfg.Headless = *o.Headless
	}
	if len(o.SuccessMarkers) > 0 {
		cfg.SuccessMarkers = o.SuccessMarkers
	}
	for _, override := range []struct {
		raw  string
		dest *time.Duration
	}{
		{o.Timeouts.Init, &cfg.Timeouts.Init},
		{o.Timeouts.Navigation, &cfg.Timeouts.Navigation},
		{o.Timeouts.Action, &cfg.Timeouts.Action},
		{o.Timeouts.Agent, &cfg.Timeouts.Agent},
		{o.Timeouts.CLI, &cfg.Timeouts.CLI},
		{o.Timeouts.Overall, &cfg.Timeouts.Overall},
	} {
		if override.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(override.raw)
		if err != nil {
			return fmt.Errorf("invalid timeout %q in config file: %w", override.raw, err)
		}
		*override.dest = parsed
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
