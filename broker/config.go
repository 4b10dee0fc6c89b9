package broker

// Config holds broker-agnostic configuration.
// Broker plugins extract the fields they need.
type Config struct {
	// ConnectionString is an opaque endpoint/credential descriptor
	// (e.g. an Azure Service Bus namespace connection string).
	ConnectionString string

	// Brokers is a list of broker addresses (e.g., "localhost:9092").
	Brokers []string

	// Topic is the default topic name.
	Topic string

	// Subscription is the default subscription (consumer group) name.
	Subscription string

	// Extra holds plugin-specific configuration.
	Extra map[string]any
}

// Endpoints returns Brokers, falling back to ConnectionString for
// plugins that connect through a single URL.
func (c Config) Endpoints() []string {
	if len(c.Brokers) > 0 {
		return c.Brokers
	}
	if c.ConnectionString != "" {
		return []string{c.ConnectionString}
	}
	return nil
}
