package config

import "fmt"

// LoggerConfig controls how the engine emits structured logs.
// Mirrors the teacher's config-section pattern: SetDefaults() then Validate().
type LoggerConfig struct {
	Level  string `yaml:"level" json:"level"`   // debug, info, warn, error
	File   string `yaml:"file" json:"file"`     // empty means stderr
	Format string `yaml:"format" json:"format"` // simple, verbose
}

func (c *LoggerConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = "simple"
	}
}

func (c *LoggerConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logger: invalid level %q", c.Level)
	}
	switch c.Format {
	case "simple", "verbose":
	default:
		return fmt.Errorf("logger: invalid format %q", c.Format)
	}
	return nil
}
