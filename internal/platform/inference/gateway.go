// Package inference defines the boundary to the language-model service.
// Pipeline stages never talk to a model endpoint directly; they consume the
// Gateway interface, which is satisfied by the HTTP client here and by the
// deterministic test double in pkg/inferencefake.
package inference

import (
	"context"
	"errors"
	"fmt"
)

// Gateway is the opaque model capability consumed by the pipeline:
// text-in/text-out and image+text-in/text-out.
type Gateway interface {
	// GenerateText sends a prompt (plus optional system prompt) to the
	// text-reasoning model and returns its raw text response.
	GenerateText(ctx context.Context, prompt, systemPrompt string) (string, error)

	// AnalyzeImage sends an image with a text prompt to the multimodal
	// model and returns its raw text response.
	AnalyzeImage(ctx context.Context, req ImageRequest) (string, error)
}

// ImageRequest carries one image-analysis call.
type ImageRequest struct {
	Data         []byte
	MIMEType     string
	Prompt       string
	SystemPrompt string
}

// ErrTimeout marks an inference call that exceeded its deadline. The
// degradation policy treats it as recoverable.
var ErrTimeout = errors.New("inference call timed out")

// StatusError reports a non-2xx response from the inference endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("inference endpoint returned status %d: %s", e.StatusCode, e.Body)
}
