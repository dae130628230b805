// Package inference is the processing.Client for the REST inference
// provider that runs the image upscale and video enhance kinds.
package inference
