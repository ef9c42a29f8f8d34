package pipeline

import "time"

// Policy holds the degradation knobs the Runner consults on stage failure.
type Policy struct {
	// InferenceTimeout bounds the first classification inference call.
	InferenceTimeout time.Duration
	// RetryTimeout bounds the single retry after a timeout; shorter than
	// the first attempt so a slow backend cannot stall the run twice.
	RetryTimeout time.Duration
	// ImageTimeout bounds the image-evaluation inference call.
	ImageTimeout time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		InferenceTimeout: 30 * time.Second,
		RetryTimeout:     10 * time.Second,
		ImageTimeout:     30 * time.Second,
	}
}
