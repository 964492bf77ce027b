// Package config loads runtime settings: built-in defaults, then an optional
// TOML file, then a .env file, then environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	// PathEnv names the variable holding the config file path.
	PathEnv     = "TECH_ADVISOR_CONFIG"
	DefaultPath = "tech-advisor.toml"

	DialogNative    = "native"
	DialogDirectory = "directory"
)

type Config struct {
	ListenAddr     string        `toml:"listen_addr"`
	Model          string        `toml:"model"`
	Temperature    float64       `toml:"temperature"`
	MaxTokens      int           `toml:"max_tokens"`
	BaseURL        string        `toml:"base_url"`
	RequestTimeout time.Duration `toml:"request_timeout"`
	SystemPrompt   string        `toml:"system_prompt"`

	// Dialog is "native" for the desktop save dialog or "directory" to write
	// exports under ExportDir without prompting.
	Dialog    string `toml:"dialog"`
	ExportDir string `toml:"export_dir"`

	SessionIdleTimeout time.Duration `toml:"session_idle_timeout"`
	// SessionTable switches the session registry to DynamoDB when set.
	SessionTable string `toml:"session_table"`
	// ParamPrefix enables API key lookup in SSM under <prefix>/open-ai-token.
	ParamPrefix string `toml:"param_prefix"`
	EnvFile     string `toml:"env_file"`
}

func Default() *Config {
	return &Config{
		ListenAddr:         "127.0.0.1:8501",
		Model:              "gpt-3.5-turbo",
		Temperature:        0.7,
		MaxTokens:          2000,
		BaseURL:            "https://api.openai.com/v1",
		RequestTimeout:     120 * time.Second,
		Dialog:             DialogNative,
		SessionIdleTimeout: 24 * time.Hour,
		EnvFile:            ".env",
	}
}

// Path returns the config file path from PathEnv, or DefaultPath.
func Path() string {
	if p := strings.TrimSpace(os.Getenv(PathEnv)); p != "" {
		return p
	}
	return DefaultPath
}

// Load builds the configuration. A missing file at path is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}

	if v := os.Getenv("ENV_FILE"); v != "" {
		cfg.EnvFile = v
	}
	if cfg.EnvFile != "" {
		// Variables already set in the environment win over the file.
		if err := godotenv.Load(cfg.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", cfg.EnvFile, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.ListenAddr, "LISTEN_ADDR")
	setString(&c.Model, "OPENAI_MODEL")
	setString(&c.BaseURL, "OPENAI_BASE_URL")
	setString(&c.SystemPrompt, "SYSTEM_PROMPT")
	setString(&c.Dialog, "SAVE_DIALOG")
	setString(&c.ExportDir, "EXPORT_DIR")
	setString(&c.SessionTable, "SESSION_TABLE")
	setString(&c.ParamPrefix, "PARAM_PREFIX")

	if v := os.Getenv("OPENAI_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: OPENAI_TEMPERATURE: %w", err)
		}
		c.Temperature = f
	}
	if v := os.Getenv("OPENAI_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: OPENAI_MAX_TOKENS: %w", err)
		}
		c.MaxTokens = n
	}
	if err := setDuration(&c.RequestTimeout, "OPENAI_TIMEOUT"); err != nil {
		return err
	}
	return setDuration(&c.SessionIdleTimeout, "SESSION_IDLE_TIMEOUT")
}

func (c *Config) Validate() error {
	var errs []error
	if c.Dialog != DialogNative && c.Dialog != DialogDirectory {
		errs = append(errs, fmt.Errorf("dialog must be %q or %q, got %q", DialogNative, DialogDirectory, c.Dialog))
	}
	if c.Dialog == DialogDirectory && strings.TrimSpace(c.ExportDir) == "" {
		errs = append(errs, errors.New("export_dir is required when dialog is \"directory\""))
	}
	if c.Temperature > 2 {
		errs = append(errs, fmt.Errorf("temperature must be at most 2, got %v", c.Temperature))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("max_tokens must not be negative, got %d", c.MaxTokens))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request_timeout must be positive"))
	}
	if c.SessionIdleTimeout <= 0 {
		errs = append(errs, errors.New("session_idle_timeout must be positive"))
	}
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// UsesAWS reports whether any component needs AWS credentials.
func (c *Config) UsesAWS() bool {
	return c.SessionTable != "" || c.ParamPrefix != ""
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("config: %s: %w", key, err)
	}
	*dst = d
	return nil
}
