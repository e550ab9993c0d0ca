package audio

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/hajimehoshi/go-mp3"
)

// oto allows one context per process, so all local transports share it.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

const localSampleRate = 44100

func sharedContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		options := &oto.NewContextOptions{
			SampleRate:   localSampleRate,
			ChannelCount: 2,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(options)
		if err != nil {
			otoErr = fmt.Errorf("create audio context: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// LocalTransport plays MP3 payloads on the host audio device. It exists for
// single-machine deployments and manual testing; chat-platform voice
// connections live behind the same interface in the platform gateway.
type LocalTransport struct {
	log *slog.Logger

	mu        sync.Mutex
	connected bool
	paused    bool
	player    *oto.Player
}

func NewLocalTransport(log *slog.Logger) *LocalTransport {
	return &LocalTransport{log: log.With(slog.String("component", "local-transport"))}
}

// NewLocalFactory returns a Factory producing local transports.
func NewLocalFactory(log *slog.Logger) Factory {
	return func() Transport { return NewLocalTransport(log) }
}

func (t *LocalTransport) Connect(ctx context.Context, target string) error {
	if _, err := sharedContext(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = true
	t.log.Debug("local transport connected", slog.String("target", target))
	return nil
}

func (t *LocalTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closePlayerLocked()
	t.connected = false
	return nil
}

func (t *LocalTransport) Play(data []byte, volume float64) error {
	octx, err := sharedContext()
	if err != nil {
		return err
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode mp3 payload: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return ErrNotConnected
	}
	if t.player != nil && t.player.IsPlaying() {
		return ErrBusy
	}
	t.closePlayerLocked()

	player := octx.NewPlayer(decoder)
	player.SetVolume(clampUnit(volume))
	player.Play()
	t.player = player
	t.paused = false
	return nil
}

func (t *LocalTransport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closePlayerLocked()
}

func (t *LocalTransport) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.player != nil && t.player.IsPlaying() {
		t.player.Pause()
		t.paused = true
	}
}

func (t *LocalTransport) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.player != nil && t.paused {
		t.player.Play()
		t.paused = false
	}
}

func (t *LocalTransport) SetVolume(volume float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.player != nil {
		t.player.SetVolume(clampUnit(volume))
	}
}

func (t *LocalTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *LocalTransport) IsPlaying() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.player != nil && t.player.IsPlaying()
}

func (t *LocalTransport) IsPaused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.player != nil && t.paused
}

// Deafen is a no-op: the local device has no read path.
func (t *LocalTransport) Deafen(bool) {}

func (t *LocalTransport) closePlayerLocked() {
	if t.player == nil {
		return
	}
	if err := t.player.Close(); err != nil {
		t.log.Warn("close audio player", slog.String("error", err.Error()))
	}
	t.player = nil
	t.paused = false
}

// clampUnit maps the session's [0, 2] effective volume onto oto's [0, 1]
// player range.
func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
