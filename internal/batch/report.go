package batch

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parquet-go/parquet-go"
	"gopkg.in/yaml.v3"
)

// ReportConfig records how a batch was run
type ReportConfig struct {
	VisionProvider string `yaml:"vision_provider"`
	SpeechProvider string `yaml:"speech_provider"`
	Manifest       string `yaml:"manifest"`
	Concurrency    int    `yaml:"concurrency"`
	Timestamp      string `yaml:"timestamp"`
}

// Summary counts batch outcomes
type Summary struct {
	Total     int `yaml:"total"`
	Succeeded int `yaml:"succeeded"`
	Failed    int `yaml:"failed"`
	WithAudio int `yaml:"with_audio"`
}

// Report is the complete batch output
type Report struct {
	Config  ReportConfig `yaml:"config"`
	Summary Summary      `yaml:"summary"`
	Results []Record     `yaml:"results"`
}

// NewReport builds a report and its summary from the run's records
func NewReport(cfg ReportConfig, records []Record) *Report {
	report := &Report{
		Config:  cfg,
		Results: records,
	}
	report.Summary.Total = len(records)
	for _, r := range records {
		if r.Error != "" {
			report.Summary.Failed++
			continue
		}
		report.Summary.Succeeded++
		if r.AudioPath != "" {
			report.Summary.WithAudio++
		}
	}
	return report
}

// SaveYAML writes the report to dir/results.yaml and returns the path
func (r *Report) SaveYAML(dir string) (string, error) {
	data, err := yaml.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("failed to marshal YAML: %w", err)
	}

	filename := filepath.Join(dir, "results.yaml")
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write YAML file: %w", err)
	}
	return filename, nil
}

// SaveParquet writes one row per record to dir/results.parquet
func (r *Report) SaveParquet(dir string) (string, error) {
	filename := filepath.Join(dir, "results.parquet")
	if err := parquet.WriteFile(filename, r.Results); err != nil {
		return "", fmt.Errorf("failed to write parquet file: %w", err)
	}
	return filename, nil
}
