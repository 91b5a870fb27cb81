package locator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlsvc/internal/common"
	"sqlsvc/internal/config"
	"sqlsvc/internal/platform"
)

func TestDeriveLaunchSpec(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		verbose bool
		want    LaunchSpec
	}{
		{
			name: "managed runtime module",
			path: "/path/to/service.dll",
			want: LaunchSpec{Command: "dotnet", Args: []string{"/path/to/service.dll"}},
		},
		{
			name: "managed runtime module case insensitive",
			path: "/path/to/Service.DLL",
			want: LaunchSpec{Command: "dotnet", Args: []string{"/path/to/Service.DLL"}},
		},
		{
			name: "native executable",
			path: "/usr/bin/sqltoolsservice",
			want: LaunchSpec{Command: "/usr/bin/sqltoolsservice"},
		},
		{
			name:    "managed runtime with logging",
			path:    "/path/to/service.dll",
			verbose: true,
			want:    LaunchSpec{Command: "dotnet", Args: []string{"/path/to/service.dll", "--enable-logging"}},
		},
		{
			name:    "native executable with logging",
			path:    "/usr/bin/sqltoolsservice",
			verbose: true,
			want:    LaunchSpec{Command: "/usr/bin/sqltoolsservice", Args: []string{"--enable-logging"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveLaunchSpec(tt.path, tt.verbose)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveLaunchSpecLoggingFlagAppearsOnce(t *testing.T) {
	spec := DeriveLaunchSpec("/path/to/service.dll", true)

	count := 0
	for _, arg := range spec.Args {
		if arg == "--enable-logging" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestServerPathFindsInstalledBinary(t *testing.T) {
	dir := t.TempDir()
	id := platform.Identity{Platform: platform.PlatformLinux, Architecture: platform.ArchAMD64}

	platformDir := filepath.Join(dir, id.String())
	require.NoError(t, os.MkdirAll(platformDir, 0755))
	binary := filepath.Join(platformDir, "SqlToolsService.dll")
	require.NoError(t, os.WriteFile(binary, []byte("stub"), 0755))

	l := New(config.ServiceConfig{InstallDir: dir}, nil, nil)

	path, err := l.ServerPath(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, binary, path)
}

func TestServerPathFallsBackToInstallRoot(t *testing.T) {
	dir := t.TempDir()
	id := platform.Identity{Platform: platform.PlatformLinux, Architecture: platform.ArchARM64}

	binary := filepath.Join(dir, "sqltoolsservice")
	require.NoError(t, os.WriteFile(binary, []byte("stub"), 0755))

	l := New(config.ServiceConfig{InstallDir: dir}, nil, nil)

	path, err := l.ServerPath(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, binary, path)
}

func TestServerPathMissing(t *testing.T) {
	l := New(config.ServiceConfig{InstallDir: t.TempDir()}, nil, nil)

	_, err := l.ServerPath(context.Background(), platform.Identity{
		Platform:     platform.PlatformLinux,
		Architecture: platform.ArchAMD64,
	})
	assert.ErrorIs(t, err, common.ErrServerPathMissing)
}

func TestServerURI(t *testing.T) {
	assert.Equal(t, "file:///opt/svc/SqlToolsService.dll",
		string(ServerURI("/opt/svc/SqlToolsService.dll")))
}

type failingDownloader struct{ err error }

func (d failingDownloader) Download(context.Context, DownloadOptions) error { return d.err }

func TestServerPathDownloadFailure(t *testing.T) {
	l := New(config.ServiceConfig{
		InstallDir:  t.TempDir(),
		DownloadURL: "https://example.com/service.tar.gz",
		Checksum:    "deadbeef",
	}, failingDownloader{err: assert.AnError}, nil)

	_, err := l.ServerPath(context.Background(), platform.Identity{
		Platform:     platform.PlatformLinux,
		Architecture: platform.ArchAMD64,
	})
	assert.ErrorIs(t, err, common.ErrServerPathMissing)
}
