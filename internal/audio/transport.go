package audio

import (
	"context"
	"errors"
)

var (
	// ErrNotConnected is returned by Play when the transport has no live
	// connection.
	ErrNotConnected = errors.New("audio transport not connected")

	// ErrBusy is returned by Play when a previous stream is still active.
	ErrBusy = errors.New("audio transport already playing")
)

// Transport is a live audio connection. Implementations own codec and device
// details; callers only hand over an encoded payload and a volume scalar.
// Volume is live-adjustable on the active stream and clamped to whatever
// range the implementation supports.
type Transport interface {
	Connect(ctx context.Context, target string) error
	Disconnect() error

	Play(data []byte, volume float64) error
	Stop()
	Pause()
	Resume()
	SetVolume(volume float64)

	IsConnected() bool
	IsPlaying() bool
	IsPaused() bool

	// Deafen configures the read path of the connection. Presentation
	// policy only; implementations without a read path ignore it.
	Deafen(deaf bool)
}

// Factory creates one transport per session.
type Factory func() Transport
