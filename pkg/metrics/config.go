package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name unless Config.Namespace is set.
const DefaultNamespace = "prioflow"

// Config holds configuration for metrics collection.
type Config struct {
	// Registerer receives the collectors. If nil, prometheus.DefaultRegisterer is used.
	Registerer prometheus.Registerer

	// Namespace overrides DefaultNamespace.
	Namespace string

	// Labels are constant labels attached to every series.
	Labels prometheus.Labels
}

// DefaultConfig returns a configuration that registers on the default
// Prometheus registerer.
func DefaultConfig() Config {
	return Config{
		Registerer: prometheus.DefaultRegisterer,
		Namespace:  DefaultNamespace,
	}
}

func (c Config) withDefaults() Config {
	if c.Registerer == nil {
		c.Registerer = prometheus.DefaultRegisterer
	}
	if c.Namespace == "" {
		c.Namespace = DefaultNamespace
	}
	return c
}
