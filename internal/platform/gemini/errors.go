package gemini

import "errors"

// Error definitions for the gemini package.
var (
	// ErrInvalidConfig is returned when the client is configured without a
	// key or model.
	ErrInvalidConfig = errors.New("invalid gemini configuration")

	// ErrEmptyPrompt is returned when a video job carries no prompt.
	ErrEmptyPrompt = errors.New("video prompt cannot be empty")

	// ErrUnsupportedImage is returned for still images that are not gs:// URIs.
	ErrUnsupportedImage = errors.New("image_url must be a gs:// uri")
)
