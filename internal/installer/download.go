package installer

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gbyat/plugin-updater/pkg/update"
	"github.com/hashicorp/go-retryablehttp"
)

var (
	defaultRetryableClient     *retryablehttp.Client
	defaultRetryableClientInit sync.Once
)

func getDefaultRetryableClient() *retryablehttp.Client {
	defaultRetryableClientInit.Do(func() {
		defaultRetryableClient = retryablehttp.NewClient()
		defaultRetryableClient.Logger = nil
		defaultRetryableClient.RetryWaitMin = 100 * time.Millisecond
		defaultRetryableClient.RetryWaitMax = 2 * time.Second
		defaultRetryableClient.HTTPClient.Timeout = 3 * time.Minute
	})
	return defaultRetryableClient
}

// downloadPackage stores the package in workDir and returns its path and sha256 checksum.
func downloadPackage(ctx context.Context, url, workDir string) (string, string, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", err
	}
	resp, err := getDefaultRetryableClient().Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	pkgFile, err := os.CreateTemp(workDir, "package-*.zip")
	if err != nil {
		return "", "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer pkgFile.Close()

	pkgHash := sha256.New()
	if _, err := io.Copy(io.MultiWriter(pkgFile, pkgHash), resp.Body); err != nil {
		return "", "", fmt.Errorf("failed to write package: %w", err)
	}
	return pkgFile.Name(), hex.EncodeToString(pkgHash.Sum(nil)), nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0o600)
	if err != nil {
		return err
	}
	//nolint:gosec // packages come from the configured release repository
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// extractPackage unpacks the zip into destDir and returns the directory holding
// the plugin: the single top-level folder of the archive, or destDir itself.
func extractPackage(zipPath, destDir string) (string, error) {
	zr, err := zip.OpenReader(zipPath)
	if errors.Is(err, zip.ErrInsecurePath) {
		if zr != nil {
			_ = zr.Close()
		}
		return "", fmt.Errorf("illegal file path in package: %w", err)
	}
	if err != nil {
		return "", fmt.Errorf("failed to open package: %w", err)
	}
	defer zr.Close()

	cleanDest := filepath.Clean(destDir) + string(os.PathSeparator)
	topLevel := make(map[string]struct{})
	for _, f := range zr.File {
		target := filepath.Join(destDir, filepath.FromSlash(f.Name))
		if !strings.HasPrefix(target, cleanDest) {
			return "", fmt.Errorf("illegal file path in package: %s", f.Name)
		}
		first, _, _ := strings.Cut(strings.TrimPrefix(f.Name, "/"), "/")
		topLevel[first] = struct{}{}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return "", fmt.Errorf("failed to create %s: %w", f.Name, err)
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return "", fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
	}

	if len(topLevel) == 1 {
		for name := range topLevel {
			dir := filepath.Join(destDir, name)
			if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
				return dir, nil
			}
		}
	}
	return destDir, nil
}

// Install downloads and extracts a plugin package below workDir. The result
// points at the extracted plugin directory, moving it into place is up to the
// post-install hook. The returned sha256 checksum of the package is informational
// only: releases publish no checksum to verify it against.
func Install(ctx context.Context, url, workDir string) (*update.InstallResult, string, error) {
	pkgPath, checksum, err := downloadPackage(ctx, url, workDir)
	if err != nil {
		return nil, "", fmt.Errorf("could not download package: %w", err)
	}
	defer os.Remove(pkgPath)

	extractDir, err := os.MkdirTemp(workDir, "extract-*")
	if err != nil {
		return nil, "", fmt.Errorf("failed to create extract directory: %w", err)
	}
	source, err := extractPackage(pkgPath, extractDir)
	if err != nil {
		_ = os.RemoveAll(extractDir)
		return nil, "", fmt.Errorf("could not extract package: %w", err)
	}
	return &update.InstallResult{
		Source:           source,
		Destination:      source,
		DestinationName:  filepath.Base(source),
		LocalDestination: extractDir,
		ClearDestination: true,
	}, checksum, nil
}
