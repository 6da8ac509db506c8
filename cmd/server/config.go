package main

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"time"

	"github.com/techvision/chat-widget/internal/handlers"
	"github.com/techvision/chat-widget/internal/logging"
	"gopkg.in/yaml.v3"
)

const (
	endpointEnv   = "CHAT_ENDPOINT"
	credentialEnv = "CHAT_CREDENTIAL"

	defaultPort        = "8080"
	defaultChatTimeout = 2 * time.Minute
	defaultSessionTTL  = 30 * time.Minute
)

type config struct {
	Port    string         `yaml:"port"`
	Chat    chatConfig     `yaml:"chat"`
	Log     logging.Config `yaml:"log"`
	Session sessionConfig  `yaml:"session"`
}

// chatConfig locates the chat completion endpoint. It implements chat.EndpointProvider.
type chatConfig struct {
	URL     string        `yaml:"endpoint"`
	Token   string        `yaml:"credential"`
	Timeout time.Duration `yaml:"timeout"`
	// Greeting overrides the assistant message every transcript starts with.
	Greeting string `yaml:"greeting"`
}

type sessionConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// loadConfig reads the yaml config at path. A missing file is not an error: the environment and
// defaults are enough to run.
func loadConfig(path string) (config, error) {
	cfg := config{}

	f, err := os.Open(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return config{}, fmt.Errorf("error opening config file: %w", err)
	default:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return config{}, fmt.Errorf("error decoding config file: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (c *config) applyDefaults() {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.Chat.URL == "" {
		c.Chat.URL = os.Getenv(endpointEnv)
	}
	if c.Chat.Token == "" {
		c.Chat.Token = os.Getenv(credentialEnv)
	}
	if c.Chat.Timeout == 0 {
		c.Chat.Timeout = defaultChatTimeout
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = defaultSessionTTL
	}
}

func (c config) validate() error {
	if c.Chat.URL == "" {
		return fmt.Errorf("chat endpoint is required (set chat.endpoint or %s)", endpointEnv)
	}
	u, err := url.Parse(c.Chat.URL)
	if err != nil {
		return fmt.Errorf("invalid chat endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("chat endpoint must be http or https, got %q", c.Chat.URL)
	}
	if c.Chat.Timeout < 0 {
		return fmt.Errorf("chat timeout must not be negative")
	}
	if c.Session.TTL < handlers.MinSessionTTL {
		return fmt.Errorf("session ttl must be at least %s, got %s", handlers.MinSessionTTL, c.Session.TTL)
	}
	return nil
}

func (c chatConfig) Endpoint() string {
	return c.URL
}

func (c chatConfig) Credential() string {
	return c.Token
}
