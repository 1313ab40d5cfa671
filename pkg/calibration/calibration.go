// Package calibration loads and saves STFT calibrations as YAML.
package calibration

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/tosih/motronic-fuel-trim/pkg/models"
)

// Load reads a calibration file. Fields missing from the file keep the
// values of models.DefaultStftConfig.
func Load(filename string) (*models.StftConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading calibration: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML calibration
func Parse(data []byte) (*models.StftConfig, error) {
	cfg := models.DefaultStftConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing calibration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML
func Save(filename string, cfg *models.StftConfig) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding calibration: %w", err)
	}
	return os.WriteFile(filename, data, 0644)
}
