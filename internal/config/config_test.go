package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `service:
  install_dir: /opt/sqlsvc
  compatible_version: "1.0"
logging:
  verbose: true
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/opt/sqlsvc", cfg.Service.InstallDir)
	assert.Equal(t, "1.0", cfg.Service.CompatibleVersion)
	assert.True(t, cfg.Logging.Verbose)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing install dir",
			content: "logging:\n  verbose: true\n",
		},
		{
			name:    "download url without checksum",
			content: "service:\n  install_dir: /opt/sqlsvc\n  download_url: https://example.com/svc.tar.gz\n",
		},
		{
			name:    "malformed yaml",
			content: "service: [",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))

			_, err := LoadConfig(path)
			assert.Error(t, err)
		})
	}
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	original := &Config{
		Service: ServiceConfig{
			InstallDir:        "/srv/tools",
			DownloadURL:       "https://example.com/svc.tar.gz",
			Checksum:          "abc123",
			CompatibleVersion: "2.1",
		},
		Logging: LoggingConfig{Verbose: true},
	}

	require.NoError(t, SaveConfig(original, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.Service.InstallDir)
	assert.False(t, cfg.Logging.Verbose)
}
