package audio

import (
	"context"
	"sync"
)

// Playback records one Play call on a MockTransport.
type Playback struct {
	Data   []byte
	Volume float64
}

// MockTransport is a scriptable in-memory transport for tests and the mock
// playback mode. Playback stays active until Stop, FinishPlayback, or a
// configured auto-finish.
type MockTransport struct {
	mu         sync.Mutex
	connected  bool
	playing    bool
	paused     bool
	deafened   bool
	target     string
	volume     float64
	playbacks  []Playback
	stopCalls  int
	autoFinish bool
	started    chan Playback
}

func NewMockTransport() *MockTransport {
	return &MockTransport{}
}

// NewMockFactory returns a Factory producing independent mock transports.
func NewMockFactory() Factory {
	return func() Transport { return NewMockTransport() }
}

// AutoFinish makes every Play complete immediately, so consumer loops
// advance without explicit FinishPlayback calls.
func (t *MockTransport) AutoFinish() *MockTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.autoFinish = true
	return t
}

// NotifyStarted registers a channel receiving every Play call.
func (t *MockTransport) NotifyStarted(ch chan Playback) *MockTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started = ch
	return t
}

func (t *MockTransport) Connect(ctx context.Context, target string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	t.target = target
	return nil
}

func (t *MockTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	t.playing = false
	t.paused = false
	return nil
}

func (t *MockTransport) Play(data []byte, volume float64) error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return ErrNotConnected
	}
	if t.playing {
		t.mu.Unlock()
		return ErrBusy
	}
	pb := Playback{Data: data, Volume: volume}
	t.playbacks = append(t.playbacks, pb)
	t.volume = volume
	t.playing = !t.autoFinish
	t.paused = false
	started := t.started
	t.mu.Unlock()

	if started != nil {
		started <- pb
	}
	return nil
}

func (t *MockTransport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopCalls++
	t.playing = false
	t.paused = false
}

func (t *MockTransport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.playing {
		t.playing = false
		t.paused = true
	}
}

func (t *MockTransport) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.paused {
		t.paused = false
		t.playing = true
	}
}

func (t *MockTransport) SetVolume(volume float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.volume = volume
}

func (t *MockTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *MockTransport) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing
}

func (t *MockTransport) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

func (t *MockTransport) Deafen(deaf bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.deafened = deaf
}

// FinishPlayback marks the in-flight stream as naturally completed.
func (t *MockTransport) FinishPlayback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.playing = false
	t.paused = false
}

// Playbacks returns a copy of all recorded Play calls.
func (t *MockTransport) Playbacks() []Playback {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Playback(nil), t.playbacks...)
}

// StopCalls reports how many times Stop was invoked.
func (t *MockTransport) StopCalls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopCalls
}

// Volume reports the most recently applied volume.
func (t *MockTransport) Volume() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.volume
}

// Deafened reports whether the read path was configured off.
func (t *MockTransport) Deafened() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deafened
}

// Target reports the most recent Connect target.
func (t *MockTransport) Target() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.target
}
