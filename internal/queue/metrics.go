package queue

import "github.com/prometheus/client_golang/prometheus"

// Collector exports registry statistics to Prometheus. Values are read from
// the registry on every scrape, so queues created after registration show up
// without further wiring.
type Collector[T any] struct {
	manager  *Manager[T]
	queues   *prometheus.Desc
	depth    *prometheus.Desc
	sent     *prometheus.Desc
	received *prometheus.Desc
}

// NewCollector creates a collector for the given registry.
func NewCollector[T any](manager *Manager[T], namespace string) *Collector[T] {
	return &Collector[T]{
		manager: manager,
		queues: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "count"),
			"Number of registered queues",
			nil, nil,
		),
		depth: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "depth"),
			"Number of messages currently buffered in the queue",
			[]string{"queue"}, nil,
		),
		sent: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "messages_sent_total"),
			"Total number of messages sent to the queue",
			[]string{"queue"}, nil,
		),
		received: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "queue", "messages_received_total"),
			"Total number of messages received from the queue",
			[]string{"queue"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector[T]) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queues
	ch <- c.depth
	ch <- c.sent
	ch <- c.received
}

// Collect implements prometheus.Collector.
func (c *Collector[T]) Collect(ch chan<- prometheus.Metric) {
	stats := c.manager.Stats()

	ch <- prometheus.MustNewConstMetric(c.queues, prometheus.GaugeValue, float64(len(stats)))
	for _, s := range stats {
		ch <- prometheus.MustNewConstMetric(c.depth, prometheus.GaugeValue, float64(s.Count), s.Name)
		ch <- prometheus.MustNewConstMetric(c.sent, prometheus.CounterValue, float64(s.Sent), s.Name)
		ch <- prometheus.MustNewConstMetric(c.received, prometheus.CounterValue, float64(s.Received), s.Name)
	}
}
