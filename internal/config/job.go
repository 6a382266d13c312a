package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Job describes one enrichment run as stored in a YAML job file.
//
//	input: companies.xlsx
//	sheet: Sheet1
//	column: Company
//	template: "What country is {object} headquartered in?"
//	output: enriched.csv
//	workers: 8
type Job struct {
	Input       string `yaml:"input"`
	Sheet       string `yaml:"sheet,omitempty"`
	Column      string `yaml:"column"`
	Template    string `yaml:"template,omitempty"`
	Instruction string `yaml:"instruction,omitempty"`
	Output      string `yaml:"output,omitempty"`
	Format      string `yaml:"format,omitempty"`
	Workers     int    `yaml:"workers,omitempty"`
	TopK        int    `yaml:"top_k,omitempty"`
	Results     int    `yaml:"results,omitempty"`
}

// LoadJob reads a job file.
func LoadJob(path string) (Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Job{}, fmt.Errorf("read job file: %w", err)
	}
	return ParseJob(data)
}

// ParseJob decodes a YAML job definition. Unknown keys are rejected.
func ParseJob(data []byte) (Job, error) {
	var job Job
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&job); err != nil {
		if errors.Is(err, io.EOF) {
			return Job{}, fmt.Errorf("parse job file: empty document")
		}
		return Job{}, fmt.Errorf("parse job file: %w", err)
	}
	return job, nil
}

// Apply copies the job's pipeline overrides onto cfg.
func (j Job) Apply(cfg *Config) {
	if j.Workers > 0 {
		cfg.Workers = j.Workers
	}
	if j.TopK > 0 {
		cfg.TopK = j.TopK
	}
	if j.Results > 0 {
		cfg.SearchResults = j.Results
	}
}
