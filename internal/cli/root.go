package cli

import (
	"fmt"
	"io"
	"maps"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/miladsoleymani/topicmux/broker"
	"github.com/miladsoleymani/topicmux/core"
	"github.com/miladsoleymani/topicmux/internal/config"
	"github.com/miladsoleymani/topicmux/internal/logger"
	"github.com/miladsoleymani/topicmux/plugins/servicebus"

	// Import plugins to trigger self-registration via init()
	_ "github.com/miladsoleymani/topicmux/plugins/kafka"
	_ "github.com/miladsoleymani/topicmux/plugins/nats"
	_ "github.com/miladsoleymani/topicmux/plugins/rabbitmq"
)

// Version is set by main.
var Version = "dev"

// app carries state shared by every subcommand.
type app struct {
	out io.Writer

	cfgFile          string
	brokerName       string
	connectionString string
	brokers          []string
	topic            string
	subscription     string
	logLevel         string
	logFormat        string

	cfg *config.Config
	log *zap.Logger
}

// NewRootCmd builds the topicmux command tree. User-facing lines go to out.
func NewRootCmd(out io.Writer) *cobra.Command {
	a := &app{out: out}

	root := &cobra.Command{
		Use:   "topicmux",
		Short: "Publish to and receive from message broker topics",
		Long: `topicmux sends messages to a topic and receives them from a topic
subscription. Azure Service Bus is the default broker; kafka, nats and
rabbitmq are also available.

The connection string is read from ` + config.EnvConnectionString + `, a config
file, or --connection-string.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.cfgFile, "config", "c", "", "path to a YAML config file")
	pf.StringVar(&a.brokerName, "broker", "", "broker plugin: "+strings.Join(broker.Names(), ", "))
	pf.StringVar(&a.connectionString, "connection-string", "", "namespace connection string (servicebus)")
	pf.StringSliceVar(&a.brokers, "brokers", nil, "broker addresses (kafka, nats, rabbitmq)")
	pf.StringVarP(&a.topic, "topic", "t", "", "topic name")
	pf.StringVarP(&a.subscription, "subscription", "s", "", "subscription name")
	pf.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&a.logFormat, "log-format", "", "log format (console, json)")

	root.AddCommand(
		newPublishCmd(a),
		newReceiveCmd(a),
		newListenCmd(a),
	)
	return root
}

// setup loads the config, applies flag overrides, and builds the logger.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if a.brokerName != "" {
		cfg.Broker = a.brokerName
	}
	if a.connectionString != "" {
		cfg.ConnectionString = a.connectionString
	}
	if len(a.brokers) > 0 {
		cfg.Brokers = a.brokers
	}
	if a.topic != "" {
		cfg.Topic = a.topic
	}
	if a.subscription != "" {
		cfg.Subscription = a.subscription
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log

	log.Debug("configuration loaded",
		zap.String("broker", cfg.Broker),
		zap.String("topic", cfg.Topic),
		zap.String("subscription", cfg.Subscription),
		zap.Bool("connection_string_set", cfg.ConnectionString != ""))
	return nil
}

// openBroker creates the configured broker plugin.
func (a *app) openBroker() (core.Broker, error) {
	bc := a.cfg.BrokerConfig()
	extra := make(map[string]any, len(bc.Extra)+1)
	maps.Copy(extra, bc.Extra)
	extra["logger"] = a.log.Named(a.cfg.Broker)
	bc.Extra = extra

	if a.cfg.Broker == "servicebus" && a.cfg.Log.SDK {
		servicebus.EnableSDKLogging(a.log)
	}

	b, err := broker.Create(a.cfg.Broker, bc)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// closeBroker closes b, logging rather than returning the error so it
// does not mask the command's own result.
func (a *app) closeBroker(b core.Broker) {
	if err := b.Close(); err != nil {
		a.log.Warn("close broker", zap.Error(err))
	}
}
