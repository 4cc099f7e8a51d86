package monitoring

import (
	"fmt"
	"path/filepath"
	"strings"
)

const textfileExt = ".prom"

// Config holds configuration for the monitoring service
type Config struct {
	Enabled bool
	// TextfilePath is where a run snapshot is written for the node exporter
	// textfile collector. Empty disables the export.
	TextfilePath string
}

// DefaultConfig returns default monitoring configuration
func DefaultConfig() *Config {
	return &Config{Enabled: true}
}

// Validate validates the monitoring configuration
func (c *Config) Validate() error {
	path := strings.TrimSpace(c.TextfilePath)
	if path == "" {
		return nil
	}
	if !c.Enabled {
		return fmt.Errorf("metrics textfile requires monitoring to be enabled")
	}
	if filepath.Ext(path) != textfileExt {
		return fmt.Errorf("metrics textfile must have a %s extension: got %s", textfileExt, path)
	}
	return nil
}
