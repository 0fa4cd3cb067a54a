// Package config loads and validates the participant's YAML configuration
// file (spec.md §6).
package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"syncd/internal/syncerr"
)

// DirectorySettings is the per-directory (or default) settings block.
type DirectorySettings struct {
	Description         *string  `yaml:"description,omitempty"`
	Shared              *bool    `yaml:"shared,omitempty"`
	Enabled             *bool    `yaml:"enabled,omitempty"`
	SyncIntervalSeconds *int     `yaml:"sync_interval_seconds,omitempty"`
	IgnorePatterns      []string `yaml:"ignore_patterns,omitempty"`
}

// Directory is one entry in the directories list, before default-merging.
type Directory struct {
	Name      string            `yaml:"name"`
	LocalPath string            `yaml:"local_path"`
	Settings  DirectorySettings `yaml:"settings"`
}

// ResolvedDirectory is a Directory after merging in the top-level default
// settings, with every field at its final value.
type ResolvedDirectory struct {
	Name                string
	LocalPath           string
	Description         string
	Shared              bool
	Enabled             bool
	SyncIntervalSeconds int
	IgnorePatterns      []string
}

// ParticipantConfig is the root of the YAML document.
type ParticipantConfig struct {
	ParticipantID string            `yaml:"participant_id"`
	Server        string            `yaml:"server"`
	Default       DirectorySettings `yaml:"default"`
	Directories   []Directory       `yaml:"directories"`
}

// Load reads, parses, and validates the config file at path, returning
// fully resolved directories (defaults merged, paths tilde-expanded).
func Load(path string) (*ParticipantConfig, []ResolvedDirectory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, syncerr.New(syncerr.ConfigInvalid, fmt.Errorf("read config %s: %w", path, err))
	}

	var cfg ParticipantConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, nil, syncerr.New(syncerr.ConfigInvalid, fmt.Errorf("parse config %s: %w", path, err))
	}

	if err := validate(&cfg); err != nil {
		return nil, nil, syncerr.New(syncerr.ConfigInvalid, err)
	}

	resolved := make([]ResolvedDirectory, 0, len(cfg.Directories))
	for _, d := range cfg.Directories {
		rd, err := resolveDirectory(d, cfg.Default)
		if err != nil {
			return nil, nil, syncerr.New(syncerr.ConfigInvalid, err)
		}
		resolved = append(resolved, rd)
	}

	return &cfg, resolved, nil
}

func validate(cfg *ParticipantConfig) error {
	if cfg.ParticipantID == "" {
		return fmt.Errorf("participant_id is required")
	}
	if strings.ContainsAny(cfg.ParticipantID, ":/") {
		return fmt.Errorf("participant_id %q must not contain ':' or '/'", cfg.ParticipantID)
	}
	if cfg.Server == "" {
		return fmt.Errorf("server is required")
	}
	if len(cfg.Directories) == 0 {
		return fmt.Errorf("at least one directory must be configured")
	}
	seen := make(map[string]bool)
	for _, d := range cfg.Directories {
		if d.Name == "" {
			return fmt.Errorf("directory name is required")
		}
		if strings.ContainsAny(d.Name, ":/") {
			return fmt.Errorf("directory name %q must not contain ':' or '/'", d.Name)
		}
		if d.LocalPath == "" {
			return fmt.Errorf("directory %q: local_path is required", d.Name)
		}
		if seen[d.Name] {
			return fmt.Errorf("duplicate directory name %q", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// resolveDirectory merges d.Settings over def per the scalar-overrides,
// ignore_patterns-union-dedup rule in spec.md §6.
func resolveDirectory(d Directory, def DirectorySettings) (ResolvedDirectory, error) {
	localPath, err := expandTilde(d.LocalPath)
	if err != nil {
		return ResolvedDirectory{}, fmt.Errorf("directory %q: %w", d.Name, err)
	}

	rd := ResolvedDirectory{
		Name:                d.Name,
		LocalPath:           localPath,
		Shared:              false,
		Enabled:             true,
		SyncIntervalSeconds: 30,
	}

	if def.Description != nil {
		rd.Description = *def.Description
	}
	if def.Shared != nil {
		rd.Shared = *def.Shared
	}
	if def.Enabled != nil {
		rd.Enabled = *def.Enabled
	}
	if def.SyncIntervalSeconds != nil {
		rd.SyncIntervalSeconds = *def.SyncIntervalSeconds
	}

	if d.Settings.Description != nil {
		rd.Description = *d.Settings.Description
	}
	if d.Settings.Shared != nil {
		rd.Shared = *d.Settings.Shared
	}
	if d.Settings.Enabled != nil {
		rd.Enabled = *d.Settings.Enabled
	}
	if d.Settings.SyncIntervalSeconds != nil {
		rd.SyncIntervalSeconds = *d.Settings.SyncIntervalSeconds
	}

	rd.IgnorePatterns = unionDedup(def.IgnorePatterns, d.Settings.IgnorePatterns)

	return rd, nil
}

func unionDedup(a, b []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(a)+len(b))
	for _, p := range a {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for _, p := range b {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}

func expandTilde(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("expand ~: %w", err)
	}
	if path == "~" {
		return u.HomeDir, nil
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(u.HomeDir, path[2:]), nil
	}
	return path, nil
}
