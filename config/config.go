package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Audio     AudioConfig     `yaml:"audio"`
	Menu      MenuConfig      `yaml:"menu"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Gemini    GeminiConfig    `yaml:"gemini"`
	Chat      ChatConfig      `yaml:"chat"`
	Kitchen   KitchenConfig   `yaml:"kitchen"`
	Archive   ArchiveConfig   `yaml:"archive"`
	Pushover  PushoverConfig  `yaml:"pushover"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

type AudioConfig struct {
	Source         string   `yaml:"source"`
	HTTPAddr       string   `yaml:"http_addr"`
	FileDir        string   `yaml:"file_dir"`
	SampleRate     int      `yaml:"sample_rate"`
	AuthToken      string   `yaml:"auth_token"`
	ReplyTimeout   string   `yaml:"reply_timeout"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type MenuConfig struct {
	Path string `yaml:"path"`
}

type OpenAIConfig struct {
	APIKey   string `yaml:"api_key"`
	Language string `yaml:"language"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

type ChatConfig struct {
	Provider string `yaml:"provider"`
	Timeout  string `yaml:"timeout"`
}

type KitchenConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	Queue      string `yaml:"queue"`
}

type ArchiveConfig struct {
	Enabled     bool   `yaml:"enabled"`
	DatabaseURL string `yaml:"database_url"`
}

type PushoverConfig struct {
	Token   string `yaml:"token"`
	UserKey string `yaml:"user_key"`
	Title   string `yaml:"title"`
	Enabled bool   `yaml:"enabled"`
}

type MetricsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Addr        string `yaml:"addr"`
	ServiceName string `yaml:"service_name"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads the YAML file at path after loading envFiles into the
// process environment, so ${VAR} references resolve against them. Missing
// env files are ignored.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadEnv(envFiles...); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse expands environment references in data and decodes it.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func loadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading env file %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Audio.Source == "" {
		c.Audio.Source = "http"
	}
	if c.Audio.HTTPAddr == "" {
		c.Audio.HTTPAddr = ":8080"
	}
	if c.Audio.FileDir == "" {
		c.Audio.FileDir = "./audio"
	}
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.ReplyTimeout == "" {
		c.Audio.ReplyTimeout = "60s"
	}
	if c.Menu.Path == "" {
		c.Menu.Path = "menu.csv"
	}
	if c.OpenAI.Language == "" {
		c.OpenAI.Language = "en"
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4-turbo"
	}
	if c.Anthropic.Model == "" {
		c.Anthropic.Model = "claude-sonnet-4-20250514"
	}
	if c.Gemini.Model == "" {
		c.Gemini.Model = "gemini-1.5-flash"
	}
	if c.Chat.Provider == "" {
		c.Chat.Provider = "openai"
	}
	if c.Chat.Timeout == "" {
		c.Chat.Timeout = "20s"
	}
	if c.Pushover.Title == "" {
		c.Pushover.Title = "Drive-In"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Metrics.ServiceName == "" {
		c.Metrics.ServiceName = "drive-in"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

func (c *Config) validate() error {
	switch c.Audio.Source {
	case "http", "file", "microphone", "console":
	default:
		return fmt.Errorf("unknown audio source %q", c.Audio.Source)
	}
	switch c.Chat.Provider {
	case "openai", "anthropic", "gemini":
	default:
		return fmt.Errorf("unknown chat provider %q", c.Chat.Provider)
	}
	if _, err := c.ChatTimeout(); err != nil {
		return err
	}
	if _, err := c.ReplyTimeout(); err != nil {
		return err
	}
	if c.Kitchen.Enabled && c.Kitchen.URL == "" {
		return errors.New("kitchen.url is required when the kitchen queue is enabled")
	}
	if c.Archive.Enabled && c.Archive.DatabaseURL == "" {
		return errors.New("archive.database_url is required when the archive is enabled")
	}
	return nil
}

func (c *Config) ChatTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Chat.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parsing chat.timeout: %w", err)
	}
	return d, nil
}

func (c *Config) ReplyTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(c.Audio.ReplyTimeout)
	if err != nil {
		return 0, fmt.Errorf("parsing audio.reply_timeout: %w", err)
	}
	return d, nil
}
