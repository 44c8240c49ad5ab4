package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/AegisDefend/aegis-installer/internal/selector"
	"github.com/AegisDefend/aegis-installer/pkg/logger"
)

// StagedArtifact is a downloaded package held at a local staging path. It is
// owned for the duration of one run and removed after install.
type StagedArtifact struct {
	Path     string
	FileName string
	Size     int64
}

// Remove deletes the staged file. A missing file is not an error.
func (a StagedArtifact) Remove() error {
	if a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove staged artifact: %w", err)
	}
	return nil
}

// Fetcher downloads a selected package to the staging directory using the
// same bearer credential as the catalog client.
type Fetcher struct {
	apiKey     string
	authScheme string
	stagingDir string
	timeout    time.Duration
	retries    int
	httpClient *http.Client
	logger     *logger.Logger
}

// New creates a fetcher. stagingDir may be empty, in which case the system
// temporary directory is used.
func New(apiKey, authScheme, stagingDir string, timeout time.Duration, retries int) *Fetcher {
	if stagingDir == "" {
		stagingDir = os.TempDir()
	}
	return &Fetcher{
		apiKey:     apiKey,
		authScheme: authScheme,
		stagingDir: stagingDir,
		timeout:    timeout,
		retries:    retries,
		httpClient: &http.Client{},
		logger:     logger.NewLogger("fetcher"),
	}
}

// Fetch downloads the selected package. The destination path is derived from
// the record's file name; a pre-existing file at that path is overwritten.
// Transient transfer failures are retried with exponential backoff, bounded
// by the configured retry count.
func (f *Fetcher) Fetch(ctx context.Context, sel selector.Result) (StagedArtifact, error) {
	fileName, err := sanitizeFileName(sel.FileName)
	if err != nil {
		return StagedArtifact{}, err
	}
	dest := filepath.Join(f.stagingDir, fileName)

	f.logger.WithFields(logger.Fields{
		"file": fileName,
		"dest": dest,
	}).Info("Starting package download")

	var written int64
	operation := func() error {
		n, err := f.download(ctx, sel.Link, dest)
		written = n
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(f.retries)), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return StagedArtifact{}, fmt.Errorf("failed to download %s: %w", fileName, err)
	}

	f.logger.WithFields(logger.Fields{
		"file":  fileName,
		"bytes": written,
	}).Info("Successfully downloaded package")

	return StagedArtifact{Path: dest, FileName: fileName, Size: written}, nil
}

// download performs one transfer attempt. It writes to a partial file and
// renames it into place so an interrupted attempt never leaves a truncated
// artifact at the destination path.
func (f *Fetcher) download(ctx context.Context, link, dest string) (int64, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, link, nil)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("failed to create download request: %w", err))
	}
	req.Header.Set("Authorization", f.authScheme+" "+f.apiKey)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		f.logger.WithError(err).Warn("Download attempt failed")
		return 0, fmt.Errorf("failed to download package: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("download failed with status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return 0, backoff.Permanent(err)
		}
		return 0, err
	}

	if resp.ContentLength > 0 {
		if avail := availableBytes(f.stagingDir); avail >= 0 && avail < resp.ContentLength {
			return 0, backoff.Permanent(fmt.Errorf(
				"insufficient space in %s: need %d bytes, have %d", f.stagingDir, resp.ContentLength, avail))
		}
	}

	partial := dest + ".partial"
	out, err := os.Create(partial)
	if err != nil {
		return 0, backoff.Permanent(fmt.Errorf("staging path is not writable: %w", err))
	}

	written, err := copyWithContext(attemptCtx, out, resp.Body)
	if err != nil {
		out.Close()
		os.Remove(partial)
		return written, fmt.Errorf("transfer interrupted after %d bytes: %w", written, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(partial)
		return written, fmt.Errorf("failed to flush staged file: %w", err)
	}

	if resp.ContentLength >= 0 && written != resp.ContentLength {
		os.Remove(partial)
		return written, fmt.Errorf("incomplete transfer: wrote %d of %d bytes", written, resp.ContentLength)
	}

	if err := os.Rename(partial, dest); err != nil {
		os.Remove(partial)
		return written, backoff.Permanent(fmt.Errorf("failed to move staged file into place: %w", err))
	}

	return written, nil
}

// copyWithContext copies data from src to dst with context cancellation support
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader) (int64, error) {
	buf := make([]byte, 32*1024)
	var written int64

	for {
		// Check for cancellation before each read
		select {
		case <-ctx.Done():
			return written, ctx.Err()
		default:
		}

		nr, readErr := src.Read(buf)
		if nr > 0 {
			nw, writeErr := dst.Write(buf[:nr])
			if nw > 0 {
				written += int64(nw)
			}
			if writeErr != nil {
				return written, writeErr
			}
			if nr != nw {
				return written, io.ErrShortWrite
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				return written, nil
			}
			return written, readErr
		}
	}
}

// sanitizeFileName strips any path components from a catalog file name.
func sanitizeFileName(name string) (string, error) {
	base := filepath.Base(name)
	if base == "." || base == ".." || base == string(filepath.Separator) || base == "" {
		return "", fmt.Errorf("invalid package file name %q", name)
	}
	return base, nil
}
