// Package config loads optional YAML settings. Command-line flags override
// anything read here.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"utter/hotkey"
)

type Config struct {
	Recognizer RecognizerConfig `yaml:"recognizer"`
	Audio      AudioConfig      `yaml:"audio"`
	Hotkey     string           `yaml:"hotkey"`
	Beep       *bool            `yaml:"beep"`
	LogPath    string           `yaml:"log_path"`
}

type RecognizerConfig struct {
	Provider    string        `yaml:"provider"`
	Language    string        `yaml:"language"`
	DeepgramKey string        `yaml:"deepgram_api_key"`
	GroqKey     string        `yaml:"groq_api_key"`
	Timeout     time.Duration `yaml:"timeout"`
}

type AudioConfig struct {
	Device string  `yaml:"device"`
	Gain   float64 `yaml:"gain"` // 0 keeps the backend default
}

// Load reads path, expanding ${VAR} references from the environment. An
// empty path yields the defaults.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) setDefaults() {
	if c.Recognizer.Language == "" {
		c.Recognizer.Language = "en"
	}
	if c.Recognizer.DeepgramKey == "" {
		c.Recognizer.DeepgramKey = os.Getenv("DEEPGRAM_API_KEY")
	}
	if c.Recognizer.GroqKey == "" {
		c.Recognizer.GroqKey = os.Getenv("GROQ_API_KEY")
	}
	if c.Recognizer.Timeout == 0 {
		c.Recognizer.Timeout = 5 * time.Second
	}
	if c.Hotkey == "" {
		c.Hotkey = "ctrl+shift+space"
	}
	if c.Beep == nil {
		on := true
		c.Beep = &on
	}
}

func (c *Config) Validate() error {
	switch c.Recognizer.Provider {
	case "", "deepgram", "groq", "fake":
	default:
		return fmt.Errorf("config: unknown recognizer provider %q", c.Recognizer.Provider)
	}
	if _, err := hotkey.Parse(c.Hotkey); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Recognizer.Timeout < 0 {
		return fmt.Errorf("config: negative recognizer timeout")
	}
	if c.Audio.Gain < 0 {
		return fmt.Errorf("config: negative audio gain")
	}
	return nil
}

func (c *Config) BeepEnabled() bool {
	return c.Beep == nil || *c.Beep
}
