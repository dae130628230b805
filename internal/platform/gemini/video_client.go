package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/phrazzld/mediaforge-api/internal/processing"
	"github.com/spf13/cast"
	"google.golang.org/genai"
)

// ProviderName identifies this provider in errors and logs.
const ProviderName = "gemini"

// Config configures a VideoClient.
type Config struct {
	APIKey string
	Model  string
}

// videoAPI is the part of the genai SDK the client uses.
type videoAPI interface {
	GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
	GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error)
}

type sdkVideoAPI struct {
	client *genai.Client
}

func (a sdkVideoAPI) GenerateVideos(ctx context.Context, model, prompt string, image *genai.Image, cfg *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error) {
	return a.client.Models.GenerateVideos(ctx, model, prompt, image, cfg)
}

func (a sdkVideoAPI) GetVideosOperation(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	return a.client.Operations.GetVideosOperation(ctx, op, nil)
}

// VideoClient runs the video generation kind on Gemini's Veo models. A
// provider job is a long-running operation; its name is the external id.
type VideoClient struct {
	api    videoAPI
	apiKey string
	model  string
	logger *slog.Logger
}

var _ processing.Client = (*VideoClient)(nil)

// NewVideoClient creates a VideoClient backed by the Gemini API.
func NewVideoClient(ctx context.Context, cfg Config, logger *slog.Logger) (*VideoClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api key cannot be empty", ErrInvalidConfig)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("%w: video model cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}
	return newVideoClient(sdkVideoAPI{client: client}, cfg, logger), nil
}

func newVideoClient(api videoAPI, cfg Config, logger *slog.Logger) *VideoClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoClient{
		api:    api,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		logger: logger.With("component", "gemini_video_client"),
	}
}

// CreateJob implements processing.Client. Gemini does not call webhooks, so
// spec.WebhookURL is ignored and the task is reconciled by polling.
func (c *VideoClient) CreateJob(ctx context.Context, spec processing.JobSpec) (string, error) {
	prompt := strings.TrimSpace(cast.ToString(spec.Input["prompt"]))
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	cfg := &genai.GenerateVideosConfig{NumberOfVideos: 1}
	if ratio := cast.ToString(spec.Input["aspect_ratio"]); ratio != "" {
		cfg.AspectRatio = ratio
	}
	if d := cast.ToInt32(spec.Input["duration_seconds"]); d > 0 {
		cfg.DurationSeconds = &d
	}

	var image *genai.Image
	if ref := cast.ToString(spec.Input["image_url"]); ref != "" {
		if !strings.HasPrefix(ref, "gs://") {
			return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, ref)
		}
		image = &genai.Image{GCSURI: ref, MIMEType: mimeFromExt(ref)}
	}

	model := spec.Model
	if model == "" {
		model = c.model
	}

	op, err := c.api.GenerateVideos(ctx, model, prompt, image, cfg)
	if err != nil {
		return "", mapAPIError("create job", err)
	}
	if op == nil || op.Name == "" {
		return "", fmt.Errorf("%s create job: operation has no name", ProviderName)
	}
	c.logger.DebugContext(ctx, "video operation started", "external_id", op.Name, "model", model)
	return op.Name, nil
}

// GetStatus implements processing.Client.
func (c *VideoClient) GetStatus(ctx context.Context, externalID string) (processing.StatusReport, error) {
	op, err := c.api.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: externalID})
	if err != nil {
		return processing.StatusReport{}, mapAPIError("get status", err)
	}

	switch {
	case !op.Done:
		return processing.StatusReport{Status: "running"}, nil
	case len(op.Error) > 0:
		return processing.StatusReport{Status: "failed", Error: operationError(op.Error)}, nil
	case firstVideo(op) == nil:
		return processing.StatusReport{Status: "failed", Error: filteredMessage(op)}, nil
	default:
		return processing.StatusReport{Status: "succeeded"}, nil
	}
}

// GetResult implements processing.Client. The returned reference carries
// the API key, since Gemini file downloads are authenticated by it.
func (c *VideoClient) GetResult(ctx context.Context, externalID string) (processing.Result, error) {
	op, err := c.api.GetVideosOperation(ctx, &genai.GenerateVideosOperation{Name: externalID})
	if err != nil {
		return processing.Result{}, mapAPIError("get result", err)
	}
	if !op.Done {
		return processing.Result{StillRunning: true}, nil
	}
	if len(op.Error) > 0 {
		return processing.Result{}, fmt.Errorf("%s get result: %s", ProviderName, operationError(op.Error))
	}

	video := firstVideo(op)
	if video == nil || video.URI == "" {
		return processing.Result{}, fmt.Errorf("%s get result: %s", ProviderName, filteredMessage(op))
	}
	return processing.Result{OutputRef: c.downloadURL(video.URI)}, nil
}

// Cancel implements processing.Client. Video operations cannot be cancelled
// through the Gemini API.
func (c *VideoClient) Cancel(ctx context.Context, externalID string) (bool, error) {
	return false, nil
}

func (c *VideoClient) downloadURL(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || !strings.HasSuffix(u.Hostname(), "googleapis.com") {
		return uri
	}
	q := u.Query()
	if q.Get("key") == "" {
		q.Set("key", c.apiKey)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func firstVideo(op *genai.GenerateVideosOperation) *genai.Video {
	if op.Response == nil {
		return nil
	}
	for _, v := range op.Response.GeneratedVideos {
		if v != nil && v.Video != nil {
			return v.Video
		}
	}
	return nil
}

func filteredMessage(op *genai.GenerateVideosOperation) string {
	if op.Response != nil && len(op.Response.RAIMediaFilteredReasons) > 0 {
		return "video filtered: " + strings.Join(op.Response.RAIMediaFilteredReasons, "; ")
	}
	return "operation finished without a video"
}

func operationError(e map[string]any) string {
	if msg := cast.ToString(e["message"]); msg != "" {
		return msg
	}
	return fmt.Sprintf("operation failed: %v", e)
}

func mimeFromExt(ref string) string {
	switch {
	case strings.HasSuffix(ref, ".jpg"), strings.HasSuffix(ref, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(ref, ".webp"):
		return "image/webp"
	default:
		return "image/png"
	}
}

// mapAPIError turns SDK errors into provider errors. Quota and overload
// answers are capacity rejections.
func mapAPIError(op string, err error) error {
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		apiErr = *apiErrPtr
	case errors.As(err, &apiErr):
	default:
		return fmt.Errorf("%s %s: %w", ProviderName, op, err)
	}

	busy := apiErr.Code == 429 || apiErr.Code == 503 ||
		apiErr.Status == "RESOURCE_EXHAUSTED" || apiErr.Status == "UNAVAILABLE"
	return processing.NewProviderError(ProviderName, op, apiErr.Code, apiErr.Status, apiErr.Message, busy)
}
