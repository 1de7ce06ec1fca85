// Package config reads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process-wide configuration
type Config struct {
	Addr  string `env:"AVALON_ADDR" envDefault:":8080"`
	Debug bool   `env:"DEBUG"`

	OpenAIAPIKey    string `env:"AVALON_OPENAI_API_KEY"`
	OpenAIBaseURL   string `env:"AVALON_OPENAI_BASE_URL"`
	AzureEndpoint   string `env:"AVALON_AZURE_ENDPOINT"`
	AzureAPIVersion string `env:"AVALON_AZURE_API_VERSION" envDefault:"2025-01-01-preview"`
	Model           string `env:"AVALON_MODEL" envDefault:"gpt-4.1"`

	DecisionTimeout time.Duration `env:"AVALON_DECISION_TIMEOUT" envDefault:"60s"`
	DecisionRetries int           `env:"AVALON_DECISION_RETRIES" envDefault:"1"`

	HumanInputTimeout time.Duration `env:"AVALON_HUMAN_INPUT_TIMEOUT" envDefault:"5m"`
	HumanSettleDelay  time.Duration `env:"AVALON_HUMAN_SETTLE_DELAY" envDefault:"500ms"`
	MaxSteps          int           `env:"AVALON_MAX_STEPS" envDefault:"500"`
	Pacing            bool          `env:"AVALON_PACING" envDefault:"true"`

	ArchivePath  string `env:"AVALON_ARCHIVE_PATH" envDefault:"avalon.db"`
	PublicURL    string `env:"AVALON_PUBLIC_URL" envDefault:"http://localhost:8080"`
	OTelEndpoint string `env:"AVALON_OTEL_ENDPOINT"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads an optional .env file, then the environment, and validates
// the result. Variables already set in the environment win over the file.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects values the engine cannot run with
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Addr) == "" {
		errs = append(errs, errors.New("AVALON_ADDR is required"))
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("AVALON_MODEL is required"))
	}
	if c.DecisionTimeout <= 0 {
		errs = append(errs, errors.New("AVALON_DECISION_TIMEOUT must be positive"))
	}
	if c.DecisionRetries < 0 {
		errs = append(errs, errors.New("AVALON_DECISION_RETRIES must not be negative"))
	}
	if c.HumanInputTimeout <= 0 {
		errs = append(errs, errors.New("AVALON_HUMAN_INPUT_TIMEOUT must be positive"))
	}
	if c.HumanSettleDelay < 0 {
		errs = append(errs, errors.New("AVALON_HUMAN_SETTLE_DELAY must not be negative"))
	}
	if c.MaxSteps <= 0 {
		errs = append(errs, errors.New("AVALON_MAX_STEPS must be positive"))
	}
	if c.AzureEndpoint != "" && c.AzureAPIVersion == "" {
		errs = append(errs, errors.New("AVALON_AZURE_API_VERSION is required with AVALON_AZURE_ENDPOINT"))
	}
	return errors.Join(errs...)
}

// HasModelCredentials reports whether a real decision backend can be built
func (c Config) HasModelCredentials() bool {
	return c.OpenAIAPIKey != "" || c.AzureEndpoint != ""
}
