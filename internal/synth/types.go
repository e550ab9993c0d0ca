package synth

import (
	"context"
	"fmt"
)

// Request contains parameters for one synthesis call.
type Request struct {
	Text         string
	ModelUUID    string
	SpeakingRate float64
}

// Synthesizer is the contract for turning text into an encoded audio payload.
// Implementations make a single in-flight call per invocation; callers treat
// any error as discard-and-continue.
type Synthesizer interface {
	Synthesize(ctx context.Context, req Request) ([]byte, error)
}

// BackendError reports a non-2xx response from the synthesis backend,
// carrying the diagnostic body for logs.
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("synthesis backend returned %d: %s", e.Status, e.Body)
}
