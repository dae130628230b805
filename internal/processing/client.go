package processing

import (
	"context"
	"encoding/json"
)

// JobSpec is a provider job request built from a task's submission metadata.
type JobSpec struct {
	// Model names the provider model or pipeline that runs the job.
	Model string `json:"model"`
	// Input carries the model parameters.
	Input map[string]any `json:"input"`
	// WebhookURL, when set, asks the provider to call back on completion.
	WebhookURL string `json:"webhook_url,omitempty"`
}

// StatusReport is a single observation of a provider job.
type StatusReport struct {
	// Status is the provider's own vocabulary; see Classify.
	Status string
	// Error is the provider's failure description, if any.
	Error string
	// Raw is the unparsed provider response, kept for diagnostics.
	Raw json.RawMessage
}

// Result is the outcome of asking a provider for a job's artifact.
type Result struct {
	// OutputRef is the provider-hosted reference to the artifact. It may be
	// short-lived and is relocated before being stored.
	OutputRef string
	// StillRunning is set when the provider reported success early and the
	// artifact is not ready yet.
	StillRunning bool
}

// Client is implemented by every external processing provider.
type Client interface {
	// CreateJob submits a job and returns the provider's id for it.
	// Capacity rejections wrap ErrProviderBusy.
	CreateJob(ctx context.Context, spec JobSpec) (string, error)
	GetStatus(ctx context.Context, externalID string) (StatusReport, error)
	GetResult(ctx context.Context, externalID string) (Result, error)
	// Cancel asks the provider to stop a job. It returns false when the
	// provider does not support cancellation or the job was already done.
	Cancel(ctx context.Context, externalID string) (bool, error)
}
