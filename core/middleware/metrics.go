package middleware

import (
	"sync"
	"time"

	"github.com/miladsoleymani/topicmux/core"
)

// MetricsCollector is the interface that metrics backends must implement.
type MetricsCollector interface {
	// MessageProcessed records that a message was processed on sub.
	// err is nil on success.
	MessageProcessed(sub core.Subscription, duration time.Duration, err error)
}

// Metrics returns middleware that reports processing metrics to the given collector.
func Metrics(collector MetricsCollector) core.MiddlewareFunc {
	return func(next core.HandlerFunc) core.HandlerFunc {
		return func(c core.Context) error {
			start := time.Now()
			err := next(c)
			collector.MessageProcessed(c.Subscription(), time.Since(start), err)
			return err
		}
	}
}

// Stats is a snapshot of a Counter for one subscription.
type Stats struct {
	Processed int
	Failed    int
	Total     time.Duration
}

// Counter is an in-memory MetricsCollector.
type Counter struct {
	mu    sync.Mutex
	stats map[core.Subscription]Stats
}

func NewCounter() *Counter {
	return &Counter{stats: make(map[core.Subscription]Stats)}
}

func (c *Counter) MessageProcessed(sub core.Subscription, d time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats[sub]
	s.Processed++
	s.Total += d
	if err != nil {
		s.Failed++
	}
	c.stats[sub] = s
}

// Snapshot returns the current stats for sub.
func (c *Counter) Snapshot(sub core.Subscription) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats[sub]
}
