package receipt

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Receipt records the outcome of one install run. It is the only file the
// installer leaves behind besides the agent's own configuration, and exists
// so golden-image builds can audit what was baked in.
type Receipt struct {
	RunID      string    `yaml:"run_id"`
	Package    string    `yaml:"package"`
	Version    string    `yaml:"version"`
	Channel    string    `yaml:"channel"`
	Arch       string    `yaml:"arch"`
	Variant    string    `yaml:"variant"`
	FinalState string    `yaml:"final_state"`
	StartedAt  time.Time `yaml:"started_at"`
	FinishedAt time.Time `yaml:"finished_at"`
}

// Write marshals the receipt to YAML at the given path.
func (r *Receipt) Write(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to marshal receipt: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write receipt: %w", err)
	}
	return nil
}

// Read loads a receipt from disk.
func Read(path string) (*Receipt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read receipt: %w", err)
	}
	var r Receipt
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse receipt: %w", err)
	}
	return &r, nil
}
