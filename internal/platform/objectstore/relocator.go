package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/phrazzld/mediaforge-api/internal/relocation"
	"github.com/sethvargo/go-retry"
)

// Uploader stores an object and returns its durable URL.
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error)
}

// Config configures a Relocator.
type Config struct {
	// Attempts bounds download and upload attempts. Values below 1 mean 1.
	Attempts int
	// DownloadTimeout bounds a single download attempt.
	DownloadTimeout time.Duration
	// BaseDelay is the first retry delay; it doubles on every attempt.
	BaseDelay time.Duration
}

// Relocator downloads provider artifacts and uploads them through an
// Uploader. Downloads are spooled to a temporary file so large videos are
// never held in memory.
type Relocator struct {
	uploader Uploader
	http     *http.Client
	cfg      Config
	logger   *slog.Logger
}

var _ relocation.Relocator = (*Relocator)(nil)

// NewRelocator creates a Relocator. httpClient may be nil.
func NewRelocator(uploader Uploader, httpClient *http.Client, cfg Config, logger *slog.Logger) *Relocator {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if cfg.Attempts < 1 {
		cfg.Attempts = 1
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relocator{
		uploader: uploader,
		http:     httpClient,
		cfg:      cfg,
		logger:   logger.With("component", "relocator"),
	}
}

// Relocate implements relocation.Relocator. The object key is keyHint plus
// the extension of the sniffed content type.
func (r *Relocator) Relocate(ctx context.Context, remoteRef, keyHint string) (string, error) {
	source := sourceURL(remoteRef)

	tmp, err := os.CreateTemp("", "relocate-*")
	if err != nil {
		return "", fmt.Errorf("create spool file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if err := r.withRetry(ctx, func(ctx context.Context) error {
		return r.download(ctx, source, tmp)
	}); err != nil {
		return "", fmt.Errorf("download artifact: %w", err)
	}

	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind spool file: %w", err)
	}
	mtype, err := mimetype.DetectReader(tmp)
	if err != nil {
		return "", fmt.Errorf("detect content type: %w", err)
	}
	key := keyHint + mtype.Extension()

	var durable string
	err = r.withRetry(ctx, func(ctx context.Context) error {
		if _, err := tmp.Seek(0, io.SeekStart); err != nil {
			return err
		}
		url, err := r.uploader.Upload(ctx, key, mtype.String(), tmp)
		if err != nil {
			return retry.RetryableError(err)
		}
		durable = url
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("upload artifact: %w", err)
	}

	r.logger.InfoContext(ctx, "artifact relocated",
		"key", key,
		"content_type", mtype.String())
	return durable, nil
}

func (r *Relocator) withRetry(ctx context.Context, fn retry.RetryFunc) error {
	backoff := retry.WithMaxRetries(uint64(r.cfg.Attempts-1), retry.NewExponential(r.cfg.BaseDelay))
	return retry.Do(ctx, backoff, fn)
}

// download writes the artifact into dst. Server errors and network failures
// are retryable; client errors are not.
func (r *Relocator) download(ctx context.Context, source string, dst *os.File) error {
	if r.cfg.DownloadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.DownloadTimeout)
		defer cancel()
	}

	if err := dst.Truncate(0); err != nil {
		return err
	}
	if _, err := dst.Seek(0, io.SeekStart); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return retry.RetryableError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return retry.RetryableError(fmt.Errorf("artifact server returned status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("artifact server returned status %d", resp.StatusCode)
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return retry.RetryableError(fmt.Errorf("read artifact: %w", err))
	}
	if n == 0 {
		return errors.New("artifact is empty")
	}
	return nil
}

// sourceURL turns gs:// references into their HTTPS form.
func sourceURL(ref string) string {
	if rest, ok := strings.CutPrefix(ref, "gs://"); ok {
		return "https://storage.googleapis.com/" + rest
	}
	return ref
}
