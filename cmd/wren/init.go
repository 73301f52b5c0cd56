package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// defaultConfigYAML is the starter config written by "wren init".
const defaultConfigYAML = `# Wren configuration
#
# Values support environment variable expansion, e.g. api_key: ${OPENAI_API_KEY}

listen:
  address: "127.0.0.1"
  port: 8080

llm:
  api_key: "YOUR_API_KEY_HERE"
  base_url: "https://api.openai.com/v1"
  model: "gpt-4o-mini"
  # title_model: "gpt-4o-mini"
  # timeout_sec: 120

# Optional MQTT broker for reminder alerts.
# mqtt:
#   broker: "mqtt://broker.local:1883"
#   topic: "wren/alerts"

data_dir: "./data"
log_level: "info"
`

// runInit initializes a Wren working directory with a starter config
// and data directory. Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing Wren workspace in %s\n", dir)

	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dataDir, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, []byte(defaultConfigYAML)); err != nil {
		return err
	}
	fmt.Fprintf(w, "  %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml and set your API key, then run: wren serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, so init never overwrites user customizations.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	return os.WriteFile(path, content, 0o644)
}
