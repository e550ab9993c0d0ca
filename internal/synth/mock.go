package synth

import (
	"context"
	"time"
)

type mockSynth struct {
	payload []byte
	delay   time.Duration
}

// NewMockSynth returns a synthesizer that produces a fixed payload after a
// short delay, for tests and dry runs.
func NewMockSynth() Synthesizer {
	return &mockSynth{payload: []byte("mock-audio"), delay: 10 * time.Millisecond}
}

func (m *mockSynth) Synthesize(ctx context.Context, req Request) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(m.delay):
	}
	return m.payload, nil
}
