package locator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.lsp.dev/uri"

	"sqlsvc/internal/common"
	"sqlsvc/internal/config"
	"sqlsvc/internal/platform"
)

// Service binary names probed under the install directory. The managed
// module comes first: when both forms are installed the runtime-hosted one
// is authoritative.
var serverBinaryNames = []string{
	"SqlToolsService.dll",
	"sqltoolsservice",
}

// Downloader fetches the service artifact when none is installed. Satisfied
// by *FileDownloader; tests substitute fakes.
type Downloader interface {
	Download(ctx context.Context, options DownloadOptions) error
}

// Locator resolves the tools-service executable for a platform identity.
type Locator struct {
	cfg        config.ServiceConfig
	downloader Downloader
	logger     *common.SafeLogger
}

func New(cfg config.ServiceConfig, downloader Downloader, logger *common.SafeLogger) *Locator {
	if logger == nil {
		logger = common.LocatorLogger
	}
	return &Locator{cfg: cfg, downloader: downloader, logger: logger}
}

// ServerPath returns the absolute path of the service executable for the
// given platform, downloading and extracting the configured artifact when
// nothing is installed yet. A path that cannot be resolved is fatal for the
// session and reported as ErrServerPathMissing.
func (l *Locator) ServerPath(ctx context.Context, id platform.Identity) (string, error) {
	if path := l.findInstalled(id); path != "" {
		return path, nil
	}

	if l.cfg.DownloadURL != "" && l.downloader != nil {
		if err := l.install(ctx, id); err != nil {
			return "", fmt.Errorf("%w: install failed: %v", common.ErrServerPathMissing, err)
		}
		if path := l.findInstalled(id); path != "" {
			return path, nil
		}
	}

	return "", fmt.Errorf("%w: no service binary for %s under %s",
		common.ErrServerPathMissing, id, l.cfg.InstallDir)
}

// findInstalled probes the platform-specific directory first, then the
// install root.
func (l *Locator) findInstalled(id platform.Identity) string {
	dirs := []string{
		filepath.Join(l.cfg.InstallDir, id.String()),
		l.cfg.InstallDir,
	}

	for _, dir := range dirs {
		for _, name := range serverBinaryNames {
			candidate := filepath.Join(dir, name)
			if filepath.Ext(name) == "" && id.Platform == platform.PlatformWindows {
				candidate += ".exe"
			}
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				abs, err := filepath.Abs(candidate)
				if err != nil {
					return candidate
				}
				return abs
			}
		}
	}

	return ""
}

func (l *Locator) install(ctx context.Context, id platform.Identity) error {
	archive := filepath.Join(l.cfg.InstallDir, "downloads", "service-"+id.String()+".tar.gz")

	l.logger.Info("downloading service for %s from %s", id, l.cfg.DownloadURL)
	err := l.downloader.Download(ctx, DownloadOptions{
		URL:              l.cfg.DownloadURL,
		OutputPath:       archive,
		ExpectedChecksum: l.cfg.Checksum,
	})
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(archive) }()

	dest := filepath.Join(l.cfg.InstallDir, id.String())
	if err := ExtractTarGz(archive, dest); err != nil {
		return err
	}

	l.logger.Info("service installed under %s", dest)
	return nil
}

// ServerURI renders a resolved server path as a file URI for host-side
// registration.
func ServerURI(path string) uri.URI {
	return uri.File(path)
}
