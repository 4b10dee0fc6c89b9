package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/miladsoleymani/topicmux/broker"
	"github.com/miladsoleymani/topicmux/core"
)

// Environment variables consulted by Load, after the config file.
const (
	EnvConnectionString = "SERVICEBUS_CONNECTION_STRING"
	EnvBroker           = "TOPICMUX_BROKER"
	EnvTopic            = "TOPICMUX_TOPIC"
	EnvSubscription     = "TOPICMUX_SUBSCRIPTION"
	EnvLogLevel         = "TOPICMUX_LOG_LEVEL"
)

// DefaultBody is the payload the publisher sends when none is configured.
const DefaultBody = "You can use Azure Service Bus to send any piece of data that needs to be recieved"

// Config holds all application configuration
type Config struct {
	// Broker selects the plugin: servicebus, kafka, nats or rabbitmq.
	Broker string `yaml:"broker"`

	// ConnectionString is used by servicebus. Never logged.
	ConnectionString string `yaml:"connection_string"`

	// Brokers lists addresses for kafka, nats and rabbitmq.
	Brokers []string `yaml:"brokers"`

	Topic        string `yaml:"topic"`
	Subscription string `yaml:"subscription"`

	Message MessageConfig  `yaml:"message"`
	Receive ReceiveConfig  `yaml:"receive"`
	Log     LogConfig      `yaml:"log"`
	Extra   map[string]any `yaml:"extra"`
}

// MessageConfig describes the message the publisher sends
type MessageConfig struct {
	Body        string `yaml:"body"`
	ContentType string `yaml:"content_type"`
	Subject     string `yaml:"subject"`
}

// ReceiveConfig bounds a single receive
type ReceiveConfig struct {
	MaxMessages int           `yaml:"max_messages"`
	MaxWait     time.Duration `yaml:"max_wait"`
}

// LogConfig holds logging-related configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
	// SDK enables the broker SDK's own diagnostic events.
	SDK bool `yaml:"sdk"`
}

// DefaultConfig returns the tutorial defaults.
func DefaultConfig() *Config {
	rcv := core.DefaultReceiveOptions()
	return &Config{
		Broker:       "servicebus",
		Topic:        "tutorial-topic",
		Subscription: "tutorial-subscription",
		Message: MessageConfig{
			Body:        DefaultBody,
			ContentType: "text/plain",
		},
		Receive: ReceiveConfig{
			MaxMessages: rcv.MaxMessages,
			MaxWait:     rcv.MaxWait,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
			SDK:    true,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvConnectionString); ok && v != "" {
		c.ConnectionString = v
	}
	if v, ok := lookup(EnvBroker); ok && v != "" {
		c.Broker = v
	}
	if v, ok := lookup(EnvTopic); ok && v != "" {
		c.Topic = v
	}
	if v, ok := lookup(EnvSubscription); ok && v != "" {
		c.Subscription = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
}

// Validate checks the fields every command needs. Set requireSubscription
// for commands that receive.
func (c *Config) Validate(requireSubscription bool) error {
	var errs []error
	if strings.TrimSpace(c.Topic) == "" {
		errs = append(errs, errors.New("topic is required"))
	}
	if requireSubscription && strings.TrimSpace(c.Subscription) == "" {
		errs = append(errs, errors.New("subscription is required"))
	}
	if requireSubscription {
		if err := c.ReceiveOptions().Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.Broker {
	case "servicebus":
		if c.ConnectionString == "" {
			errs = append(errs, fmt.Errorf("connection string is required for servicebus (set %s)", EnvConnectionString))
		}
	case "":
		errs = append(errs, errors.New("broker is required"))
	default:
		if len(c.BrokerConfig().Endpoints()) == 0 {
			errs = append(errs, fmt.Errorf("brokers are required for %s", c.Broker))
		}
	}
	return errors.Join(errs...)
}

// BrokerConfig converts to the plugin-facing configuration.
func (c *Config) BrokerConfig() broker.Config {
	return broker.Config{
		ConnectionString: c.ConnectionString,
		Brokers:          c.Brokers,
		Topic:            c.Topic,
		Subscription:     c.Subscription,
		Extra:            c.Extra,
	}
}

// ReceiveOptions returns the configured receive bounds.
func (c *Config) ReceiveOptions() core.ReceiveOptions {
	return core.ReceiveOptions{
		MaxMessages: c.Receive.MaxMessages,
		MaxWait:     c.Receive.MaxWait,
	}
}

// SubscriptionRef returns the configured topic/subscription pair.
func (c *Config) SubscriptionRef() core.Subscription {
	return core.Subscription{Topic: c.Topic, Name: c.Subscription}
}
