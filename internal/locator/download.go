package locator

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DownloadOptions contains options for fetching a service artifact
type DownloadOptions struct {
	URL              string
	OutputPath       string
	ExpectedChecksum string
	Timeout          time.Duration
}

// FileDownloader fetches service artifacts over HTTP with SHA-256
// verification. It is the injected download step behind the locator; the
// decision of when to download belongs to the locator, not here.
type FileDownloader struct {
	client *http.Client
}

// NewFileDownloader creates a downloader with reasonable defaults
func NewFileDownloader() *FileDownloader {
	return &FileDownloader{
		client: &http.Client{
			Timeout: 10 * time.Minute,
			Transport: &http.Transport{
				ResponseHeaderTimeout: 30 * time.Second,
				ExpectContinueTimeout: 10 * time.Second,
			},
		},
	}
}

// Download fetches the artifact at options.URL to options.OutputPath and
// verifies its checksum when one is expected.
func (d *FileDownloader) Download(ctx context.Context, options DownloadOptions) error {
	if options.Timeout == 0 {
		options.Timeout = 10 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, options.Timeout)
	defer cancel()

	if err := os.MkdirAll(filepath.Dir(options.OutputPath), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outFile, err := os.Create(options.OutputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = outFile.Close() }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, options.URL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP error: %d %s", resp.StatusCode, resp.Status)
	}

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(outFile, hasher), resp.Body); err != nil {
		_ = os.Remove(options.OutputPath)
		return fmt.Errorf("failed to write file: %w", err)
	}

	if options.ExpectedChecksum != "" {
		actual := fmt.Sprintf("%x", hasher.Sum(nil))
		if !strings.EqualFold(actual, options.ExpectedChecksum) {
			_ = os.Remove(options.OutputPath)
			return fmt.Errorf("checksum mismatch: expected %s, got %s", options.ExpectedChecksum, actual)
		}
	}

	return nil
}

// ExtractTarGz extracts a .tar.gz archive to destDir. Entries escaping the
// destination directory are rejected.
func ExtractTarGz(archivePath, destDir string) error {
	file, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer func() { _ = file.Close() }()

	gzipReader, err := gzip.NewReader(file)
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer func() { _ = gzipReader.Close() }()

	tarReader := tar.NewReader(gzipReader)

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return fmt.Errorf("failed to create destination directory: %w", err)
	}

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read tar header: %w", err)
		}

		target := filepath.Join(destDir, filepath.Clean(header.Name))
		if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
			return fmt.Errorf("archive entry escapes destination: %s", header.Name)
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, os.FileMode(header.Mode)); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(header.Mode))
			if err != nil {
				return fmt.Errorf("failed to create file: %w", err)
			}
			if _, err := io.Copy(out, tarReader); err != nil {
				_ = out.Close()
				return fmt.Errorf("failed to extract file: %w", err)
			}
			if err := out.Close(); err != nil {
				return fmt.Errorf("failed to close file: %w", err)
			}
		}
	}

	return nil
}
