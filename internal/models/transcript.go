package models

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Transcript is a write-only record of a session: what was said and where
// the story ended up. It is never loaded back.
type Transcript struct {
	Theme    string     `yaml:"theme"`
	Messages []Message  `yaml:"messages"`
	State    *GameState `yaml:"state,omitempty"`
}

// Export writes the transcript to <dir>/<name>/transcript.yaml and returns the path.
func (t Transcript) Export(dir, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("invalid transcript name %q", name)
	}

	target := filepath.Join(dir, name)
	if err := os.MkdirAll(target, 0755); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("marshal transcript: %w", err)
	}

	path := filepath.Join(target, "transcript.yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
