package shared

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/mediaforge-api/internal/platform/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTraceID(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	assert.Empty(t, GetTraceID(ctx))

	generated := GetTraceID(SetTraceID(ctx, ""))
	assert.Len(t, generated, 32)
	_, err := hex.DecodeString(generated)
	assert.NoError(t, err)

	assert.Equal(t, "req-1", GetTraceID(SetTraceID(ctx, "req-1")))
	assert.Empty(t, GetTraceID(context.WithValue(ctx, TraceIDKey, 123)))
}

func TestUserID(t *testing.T) {
	t.Parallel()

	_, ok := UserID(context.Background())
	assert.False(t, ok)

	_, ok = UserID(context.WithValue(context.Background(), UserIDContextKey, uuid.Nil))
	assert.False(t, ok)

	id := uuid.New()
	got, ok := UserID(context.WithValue(context.Background(), UserIDContextKey, id))
	assert.True(t, ok)
	assert.Equal(t, id, got)
}

type sample struct {
	Kind     string `json:"kind" validate:"required"`
	Priority int    `json:"priority" validate:"gte=0"`
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"kind":"image_upscale","priority":1}`, ""},
		{"empty body", ``, "request body is empty"},
		{"unknown field", `{"kind":"x","colour":"red"}`, "unknown field"},
		{"trailing object", `{"kind":"x"}{"kind":"y"}`, "single JSON object"},
		{"malformed", `{"kind":`, "unexpected EOF"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var got sample
			err := DecodeJSON(httptest.NewRecorder(), r, &got)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, sample{Kind: "image_upscale", Priority: 1}, got)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestValidateRequest(t *testing.T) {
	t.Parallel()
	assert.NoError(t, ValidateRequest(&sample{Kind: "k"}))
	assert.Error(t, ValidateRequest(&sample{Priority: -1}))
}

func TestRespondWithErrorAndLog(t *testing.T) {
	t.Parallel()

	log, buf := logger.GetTestLogger(t)
	ctx := logger.WithLogger(SetTraceID(context.Background(), "trace-abc"), log)
	r := httptest.NewRequest(http.MethodPost, "/api/tasks", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	RespondWithErrorAndLog(w, r, http.StatusTooManyRequests, "Task capacity reached",
		errors.New("queue full at postgres://user:hunter2@db:5432/app"), WithRetryAfter(30))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Task capacity reached", body["error"])
	assert.Equal(t, "trace-abc", body["trace_id"])
	assert.NotContains(t, w.Body.String(), "postgres://")

	entries := buf.EntriesWithMessage("API error response")
	require.Len(t, entries, 1)
	assert.Equal(t, "WARN", entries[0]["level"])
	assert.NotContains(t, entries[0]["error"], "hunter2")
}

func TestRespondWithErrorAndLog_LogLevels(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		opts   []ResponseOption
		want   string
	}{
		{http.StatusInternalServerError, nil, "ERROR"},
		{http.StatusNotFound, nil, "DEBUG"},
		{http.StatusUnauthorized, []ResponseOption{WithElevatedLogLevel()}, "WARN"},
	}

	for _, tt := range tests {
		log, buf := logger.GetTestLogger(t)
		r := httptest.NewRequest(http.MethodGet, "/", nil).WithContext(logger.WithLogger(context.Background(), log))
		RespondWithErrorAndLog(httptest.NewRecorder(), r, tt.status, "msg", errors.New("boom"), tt.opts...)

		entries := buf.EntriesWithMessage("API error response")
		require.Len(t, entries, 1)
		assert.Equal(t, tt.want, entries[0]["level"], "status %d", tt.status)
	}
}
