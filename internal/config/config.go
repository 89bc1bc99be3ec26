package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
	"go.uber.org/fx"
)

// Platforms, modes and backends accepted by Validate.
const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"

	ModeStream = "stream"
	ModeBatch  = "batch"

	BackendHTTP   = "http"
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
)

// Config holds all configuration from environment variables.
type Config struct {
	Platform      string `envconfig:"PLATFORM" default:"discord"`
	DiscordToken  string `envconfig:"DISCORD_BOT_TOKEN"`
	TelegramToken string `envconfig:"TELEGRAM_API_TOKEN"`

	// Mode selects the streaming or the batch pipeline.
	Mode    string `envconfig:"MODE" default:"stream"`
	Backend string `envconfig:"BACKEND" default:"http"`

	APIURL    string `envconfig:"API_URL" default:"http://localhost:8000/api/chat"`
	Model     string `envconfig:"MODEL" default:"rohan-style-chunk40"`
	OllamaURL string `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	APIKey    string `envconfig:"OPENAI_API_KEY"`
	BaseURL   string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`

	EditInterval time.Duration `envconfig:"EDIT_INTERVAL" default:"1s"`
	ChunkDelay   time.Duration `envconfig:"CHUNK_DELAY" default:"1s"`

	// Path to config.toml file
	ConfigFile string `envconfig:"CONFIG_FILE" default:"config.toml"`

	// Path to context directory containing .md files appended to the system instruction
	ContextDir string `envconfig:"CONTEXT_DIR" default:".context"`

	// Messages loaded from config.toml
	Messages Messages

	// Context loaded from .context/*.md files
	Context string
}

// Messages holds the user-facing strings and the system instruction.
type Messages struct {
	System       string `toml:"system"`
	Thinking     string `toml:"thinking"`
	Fallback     string `toml:"fallback"`
	RequestError string `toml:"request_error"`
	StreamError  string `toml:"stream_error"`
}

// FileConfig represents the structure of config.toml.
type FileConfig struct {
	Messages Messages `toml:"messages"`
}

// DefaultMessages provides fallback strings if config.toml is not found.
var DefaultMessages = Messages{
	System:       "Provide brief, concise responses with a friendly and human tone.",
	Thinking:     "Thinking...",
	Fallback:     "Hey! I'm here. What's up?",
	RequestError: "Sorry, I encountered an error while processing your request.",
	StreamError:  "Sorry, there was an error processing your request.",
}

// LoadEnv loads the configuration from environment variables.
func (c Config) LoadEnv() (Config, error) {
	cfg := c

	if err := envconfig.Process("", &cfg); err != nil {
		return c, err
	}

	return cfg, nil
}

// LoadFile loads messages from config.toml file.
func (c *Config) LoadFile() error {
	configPath := c.ConfigFile
	if !filepath.IsAbs(configPath) {
		// Try current directory first, then the executable directory
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			execPath, err := os.Executable()
			if err == nil {
				configPath = filepath.Join(filepath.Dir(execPath), c.ConfigFile)
			}
		}
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		c.Messages = DefaultMessages
		return nil
	}

	var fileConfig FileConfig
	if _, err := toml.DecodeFile(configPath, &fileConfig); err != nil {
		return fmt.Errorf("failed to decode %s: %w", configPath, err)
	}

	c.Messages = fileConfig.Messages.withDefaults()

	return nil
}

func (m Messages) withDefaults() Messages {
	if m.System == "" {
		m.System = DefaultMessages.System
	}
	if m.Thinking == "" {
		m.Thinking = DefaultMessages.Thinking
	}
	if m.Fallback == "" {
		m.Fallback = DefaultMessages.Fallback
	}
	if m.RequestError == "" {
		m.RequestError = DefaultMessages.RequestError
	}
	if m.StreamError == "" {
		m.StreamError = DefaultMessages.StreamError
	}
	return m
}

// LoadContext loads all .md files from the context directory and concatenates them.
func (c *Config) LoadContext() error {
	if _, err := os.Stat(c.ContextDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(c.ContextDir, "*.md"))
	if err != nil {
		return fmt.Errorf("failed to glob context files: %w", err)
	}

	if len(files) == 0 {
		return nil
	}

	var parts []string
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read context file %s: %w", file, err)
		}
		parts = append(parts, string(content))
	}

	c.Context = strings.Join(parts, "\n\n---\n\n")

	return nil
}

// SystemPrompt returns the system instruction with context injected.
func (c *Config) SystemPrompt() string {
	if c.Context == "" {
		return c.Messages.System
	}
	return c.Messages.System + "\n\n## Context\n\n" + c.Context
}

// Token returns the credential of the selected platform.
func (c *Config) Token() string {
	if c.Platform == PlatformTelegram {
		return c.TelegramToken
	}
	return c.DiscordToken
}

// Validate checks that the selected platform, mode and backend are usable.
func (c *Config) Validate() error {
	switch c.Platform {
	case PlatformDiscord:
		if c.DiscordToken == "" {
			return fmt.Errorf("DISCORD_BOT_TOKEN is required for platform %q", c.Platform)
		}
	case PlatformTelegram:
		if c.TelegramToken == "" {
			return fmt.Errorf("TELEGRAM_API_TOKEN is required for platform %q", c.Platform)
		}
	default:
		return fmt.Errorf("unknown platform %q", c.Platform)
	}

	if c.Mode != ModeStream && c.Mode != ModeBatch {
		return fmt.Errorf("unknown mode %q", c.Mode)
	}

	switch c.Backend {
	case BackendHTTP:
		if c.APIURL == "" {
			return fmt.Errorf("API_URL is required for backend %q", c.Backend)
		}
	case BackendOllama:
	case BackendOpenAI:
		if c.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required for backend %q", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	return nil
}

func NewConfig() (*Config, error) {
	var cfg Config
	loadedCfg, err := cfg.LoadEnv()
	if err != nil {
		return nil, err
	}

	if err := loadedCfg.LoadFile(); err != nil {
		return nil, err
	}

	if err := loadedCfg.LoadContext(); err != nil {
		return nil, err
	}

	if err := loadedCfg.Validate(); err != nil {
		return nil, err
	}

	return &loadedCfg, nil
}

func Module() fx.Option {
	return fx.Module(
		"config",
		fx.Provide(
			NewConfig,
		),
	)
}
