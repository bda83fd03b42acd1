package config

import "fmt"

// ObservabilityConfig controls the otel tracer installed alongside the
// domain-specific trace.Chain: spans are process-level/operational
// (span per negotiation, per round, per offer call), while trace.Chain is
// the session's own gap-free audit log. Mirrors the teacher's
// observability.TracerConfig shape, trimmed to the stdout exporter this
// module ships with (no collector to stand up for the demo).
type ObservabilityConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

func (c *ObservabilityConfig) SetDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "negotium"
	}
	if c.SampleRatio == 0 {
		c.SampleRatio = 1.0
	}
}

func (c *ObservabilityConfig) Validate() error {
	if c.SampleRatio < 0 || c.SampleRatio > 1 {
		return fmt.Errorf("observability: sample_ratio must be in [0,1]")
	}
	return nil
}
