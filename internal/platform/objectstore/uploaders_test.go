package objectstore

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestS3Uploader_Upload(t *testing.T) {
	t.Parallel()

	var (
		mu        sync.Mutex
		gotPath   string
		gotType   string
		gotBody   []byte
		gotMethod string
		gotCache  string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotMethod, gotPath, gotType, gotCache, gotBody = r.Method, r.URL.Path, r.Header.Get("Content-Type"), r.Header.Get("Cache-Control"), body
		mu.Unlock()
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	up, err := NewS3Uploader("media", "us-east-1", "", aws.NewConfig().
		WithEndpoint(srv.URL).
		WithS3ForcePathStyle(true).
		WithCredentials(credentials.NewStaticCredentials("AKID", "SECRET", "")))
	require.NoError(t, err)

	got, err := up.Upload(context.Background(), "video/task-1.mp4", "video/mp4", bytes.NewReader([]byte("frames")))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, http.MethodPut, gotMethod)
	assert.Equal(t, "/media/video/task-1.mp4", gotPath)
	assert.Equal(t, "video/mp4", gotType)
	assert.Equal(t, "public, max-age=31536000, immutable", gotCache)
	assert.Equal(t, []byte("frames"), gotBody)
	assert.Equal(t, srv.URL+"/media/video/task-1.mp4", got)
}

func TestS3Uploader_PublicBaseURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	up, err := NewS3Uploader("media", "eu-west-1", "https://cdn.example.com", aws.NewConfig().
		WithEndpoint(srv.URL).
		WithS3ForcePathStyle(true).
		WithCredentials(credentials.NewStaticCredentials("AKID", "SECRET", "")))
	require.NoError(t, err)

	got, err := up.Upload(context.Background(), "a.png", "image/png", bytes.NewReader(pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/a.png", got)
}

func TestNewUploaders_RequireBucket(t *testing.T) {
	t.Parallel()

	_, err := NewS3Uploader("", "us-east-1", "", nil)
	assert.ErrorContains(t, err, "bucket is required")

	_, err = NewGCSUploader(context.Background(), "", "", "")
	assert.ErrorContains(t, err, "bucket is required")
}
