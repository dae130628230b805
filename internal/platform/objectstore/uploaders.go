package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"google.golang.org/api/option"
)

// GCSUploader writes objects to a Google Cloud Storage bucket.
type GCSUploader struct {
	client        *storage.Client
	bucket        string
	publicBaseURL string
}

// NewGCSUploader creates a GCSUploader. An empty credentialsFile uses
// application default credentials.
func NewGCSUploader(ctx context.Context, bucket, publicBaseURL, credentialsFile string, opts ...option.ClientOption) (*GCSUploader, error) {
	if bucket == "" {
		return nil, errors.New("gcs bucket is required")
	}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	return &GCSUploader{client: client, bucket: bucket, publicBaseURL: publicBaseURL}, nil
}

// Upload implements Uploader.
func (u *GCSUploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	w := u.client.Bucket(u.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = "public, max-age=31536000, immutable"

	if _, err := io.Copy(w, body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gcs object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize gcs object %s: %w", key, err)
	}
	return objectURL(u.publicBaseURL, "https://storage.googleapis.com/"+u.bucket, key), nil
}

// Close releases the underlying client.
func (u *GCSUploader) Close() error {
	return u.client.Close()
}

// S3Uploader writes objects to an S3 bucket through the multipart upload
// manager.
type S3Uploader struct {
	uploader      *s3manager.Uploader
	bucket        string
	publicBaseURL string
}

// NewS3Uploader creates an S3Uploader from a session config. Credentials
// come from the default AWS chain.
func NewS3Uploader(bucket, region, publicBaseURL string, cfg *aws.Config) (*S3Uploader, error) {
	if bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg == nil {
		cfg = aws.NewConfig()
	}
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &S3Uploader{
		uploader:      s3manager.NewUploader(sess),
		bucket:        bucket,
		publicBaseURL: publicBaseURL,
	}, nil
}

// Upload implements Uploader.
func (u *S3Uploader) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	out, err := u.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:       aws.String(u.bucket),
		Key:          aws.String(key),
		Body:         body,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("upload s3 object %s: %w", key, err)
	}
	base := strings.TrimSuffix(out.Location, "/"+escapeKey(key))
	base = strings.TrimSuffix(base, "/"+key)
	return objectURL(u.publicBaseURL, base, key), nil
}

// objectURL joins a base URL and an object key, escaping each key segment.
// publicBase wins over fallback when set.
func objectURL(publicBase, fallback, key string) string {
	base := publicBase
	if base == "" {
		base = fallback
	}
	return strings.TrimRight(base, "/") + "/" + escapeKey(key)
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
