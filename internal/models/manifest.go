// Package models fetches the large model files the inference engine
// serves. The file list comes from a YAML manifest; a built-in list is
// used when no manifest is installed on the host.
package models

import (
	"fmt"
	"net/url"
	"os"

	"gopkg.in/yaml.v3"
)

// File is one downloadable model artifact.
type File struct {
	// Name is the destination file name inside the model directory.
	Name string `yaml:"name"`

	// URL is where the file is fetched from.
	URL string `yaml:"url"`

	// SHA256 is the expected hex digest; empty skips verification.
	SHA256 string `yaml:"sha256,omitempty"`

	// SizeBytes is the expected size; 0 skips the size check.
	SizeBytes int64 `yaml:"size_bytes,omitempty"`
}

// Manifest is the model file list.
type Manifest struct {
	Files []File `yaml:"files"`
}

// LoadManifest reads and validates a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}

	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("manifest %s: %w", path, err)
	}
	return &m, nil
}

// Default returns the built-in model list used when no manifest is
// installed on the host.
func Default() *Manifest {
	return &Manifest{
		Files: []File{
			{
				Name: "Meta-Llama-3.1-70B-Instruct-Q4_K_M-00001-of-00002.gguf",
				URL:  "https://huggingface.co/bartowski/Meta-Llama-3.1-70B-Instruct-GGUF/resolve/main/Meta-Llama-3.1-70B-Instruct-Q4_K_M/Meta-Llama-3.1-70B-Instruct-Q4_K_M-00001-of-00002.gguf",
			},
			{
				Name: "Meta-Llama-3.1-70B-Instruct-Q4_K_M-00002-of-00002.gguf",
				URL:  "https://huggingface.co/bartowski/Meta-Llama-3.1-70B-Instruct-GGUF/resolve/main/Meta-Llama-3.1-70B-Instruct-Q4_K_M/Meta-Llama-3.1-70B-Instruct-Q4_K_M-00002-of-00002.gguf",
			},
			{
				Name: "Meta-Llama-3.1-8B-Instruct-Q8_0.gguf",
				URL:  "https://huggingface.co/bartowski/Meta-Llama-3.1-8B-Instruct-GGUF/resolve/main/Meta-Llama-3.1-8B-Instruct-Q8_0.gguf",
			},
		},
	}
}

func (m *Manifest) validate() error {
	if len(m.Files) == 0 {
		return fmt.Errorf("no files listed")
	}

	seen := make(map[string]bool, len(m.Files))
	for i, f := range m.Files {
		if f.Name == "" {
			return fmt.Errorf("file %d: name is required", i)
		}
		if seen[f.Name] {
			return fmt.Errorf("file %d: duplicate name %q", i, f.Name)
		}
		seen[f.Name] = true

		u, err := url.Parse(f.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("file %q: invalid url %q", f.Name, f.URL)
		}
		if f.SizeBytes < 0 {
			return fmt.Errorf("file %q: negative size", f.Name)
		}
	}
	return nil
}
