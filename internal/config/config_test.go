package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMergesDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
participant_id: alice
server: http://localhost:8080
default:
  enabled: true
  sync_interval_seconds: 30
  ignore_patterns: ["*.tmp"]
directories:
  - name: notes
    local_path: /tmp/notes
    settings:
      shared: false
      ignore_patterns: ["*.log"]
  - name: team
    local_path: /tmp/team
    settings:
      shared: true
      sync_interval_seconds: 5
`)

	cfg, resolved, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "alice", cfg.ParticipantID)
	require.Len(t, resolved, 2)

	notes := resolved[0]
	require.Equal(t, 30, notes.SyncIntervalSeconds)
	require.False(t, notes.Shared)
	require.ElementsMatch(t, []string{"*.tmp", "*.log"}, notes.IgnorePatterns)

	team := resolved[1]
	require.Equal(t, 5, team.SyncIntervalSeconds, "directory override should win over default")
	require.True(t, team.Shared)
}

func TestLoadRejectsColonInDirectoryName(t *testing.T) {
	path := writeConfig(t, `
participant_id: alice
server: http://localhost:8080
directories:
  - name: "bad:name"
    local_path: /tmp/x
`)

	_, _, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingParticipantID(t *testing.T) {
	path := writeConfig(t, `
server: http://localhost:8080
directories:
  - name: notes
    local_path: /tmp/x
`)

	_, _, err := Load(path)
	require.Error(t, err)
}

func TestLoadExpandsTildeInLocalPath(t *testing.T) {
	path := writeConfig(t, `
participant_id: alice
server: http://localhost:8080
directories:
  - name: notes
    local_path: "~/notes"
`)

	home, err := os.UserHomeDir()
	require.NoError(t, err)

	_, resolved, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(home, "notes"), resolved[0].LocalPath)
}
