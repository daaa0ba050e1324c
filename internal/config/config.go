package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CFPEVAL_"

type Config struct {
	Evaluator  Evaluator  `yaml:"evaluator"`
	Conference Conference `yaml:"conference"`
	Pipeline   Pipeline   `yaml:"pipeline"`
	Profile    Profile    `yaml:"profile"`
	Fixtures   Fixtures   `yaml:"fixtures"`
	Output     Output     `yaml:"output"`
	Server     Server     `yaml:"server"`
	Logging    Logging    `yaml:"logging"`
	Telemetry  Telemetry  `yaml:"telemetry"`
}

type Evaluator struct {
	Provider        string        `yaml:"provider" env:"PROVIDER"`
	Model           string        `yaml:"model" env:"MODEL"`
	OllamaURL       string        `yaml:"ollama_url" env:"OLLAMA_URL"`
	OpenAIModel     string        `yaml:"openai_model" env:"OPENAI_MODEL"`
	OpenAIAPIKeyEnv string        `yaml:"openai_api_key_env"`
	GeminiModel     string        `yaml:"gemini_model" env:"GEMINI_MODEL"`
	GeminiAPIKeyEnv string        `yaml:"gemini_api_key_env"`
	MaxTokens       int           `yaml:"max_tokens" env:"MAX_TOKENS"`
	Timeout         time.Duration `yaml:"timeout" env:"EVALUATOR_TIMEOUT"`
}

type Conference struct {
	Name     string `yaml:"name" env:"CONFERENCE_NAME"`
	Audience string `yaml:"audience" env:"CONFERENCE_AUDIENCE"`
}

type Pipeline struct {
	SessionConcurrency int `yaml:"session_concurrency" env:"SESSION_CONCURRENCY"`
	SpeakerConcurrency int `yaml:"speaker_concurrency" env:"SPEAKER_CONCURRENCY"`
}

type Profile struct {
	Enabled  bool          `yaml:"enabled" env:"PROFILE_ENABLED"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxChars int           `yaml:"max_chars"`
	MaxPosts int           `yaml:"max_posts"`
}

type Fixtures struct {
	Dir      string `yaml:"dir" env:"FIXTURES_DIR"`
	Sessions string `yaml:"sessions" env:"SESSIONS_SOURCE"`
	Speakers string `yaml:"speakers" env:"SPEAKERS_SOURCE"`
}

type Output struct {
	DataDir string `yaml:"data_dir" env:"DATA_DIR"`
}

type Server struct {
	Port int `yaml:"port" env:"PORT"`
}

type Logging struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
	Mode  string `yaml:"mode" env:"LOG_MODE"`
}

type Telemetry struct {
	Enabled   bool   `yaml:"enabled" env:"TRACING"`
	TraceFile string `yaml:"trace_file" env:"TRACE_FILE"`
}

// ConfigDir returns the XDG config directory for cfpeval.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "cfpeval")
}

// DataDir returns the XDG data directory for cfpeval.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "cfpeval")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/cfpeval/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'cfpeval init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration with environment overrides,
// for commands that run without a config file.
func Default() (*Config, error) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Evaluator: Evaluator{
			Provider:        "ollama",
			Model:           "llama3.2",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-mini",
			OpenAIAPIKeyEnv: "OPENAI_API_KEY",
			GeminiModel:     "gemini-1.5-flash",
			GeminiAPIKeyEnv: "GEMINI_API_KEY",
			MaxTokens:       1024,
			Timeout:         2 * time.Minute,
		},
		Conference: Conference{Name: "JSDev World", Audience: "JavaScript developer"},
		Pipeline:   Pipeline{SessionConcurrency: 1, SpeakerConcurrency: 2},
		Profile:    Profile{Timeout: 15 * time.Second, MaxChars: 4000, MaxPosts: 5},
		Fixtures: Fixtures{
			Dir:      "__fixtures__",
			Sessions: filepath.Join("__fixtures__", "db.json"),
			Speakers: filepath.Join("__fixtures__", "speakers.json"),
		},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info", Mode: "development"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// applyEnv overrides fields from CFPEVAL_* variables that are set.
func applyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	if cfg.Pipeline.SessionConcurrency < 1 {
		cfg.Pipeline.SessionConcurrency = 1
	}
	if cfg.Pipeline.SpeakerConcurrency < 1 {
		cfg.Pipeline.SpeakerConcurrency = 2
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DatabasePath is the SQLite file inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.GetDataDir(), "cfp.db")
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
