package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/yomilabs/yomi-core/internal/audio"
	"github.com/yomilabs/yomi-core/internal/synth"
)

// Session is the live playback context of one tenant. It owns the queue and
// exactly one consumer loop for its entire lifetime; the loop terminates only
// through cancellation during Leave or manager shutdown.
type Session struct {
	tenantID     string
	queue        *Queue
	synth        synth.Synthesizer
	pollInterval time.Duration
	log          *slog.Logger
	metrics      *pipelineMetrics

	mu            sync.Mutex
	transport     audio.Transport
	sourceChannel string
	muted         bool
	volume        float64 // tenant-wide multiplier [0, 2]
	inFlight      bool
	inFlightSpVol float64

	cancel context.CancelFunc
	done   chan struct{}
}

func newSession(tenantID string, tr audio.Transport, sourceChannel string, volume float64, synthesizer synth.Synthesizer, pollInterval time.Duration, metrics *pipelineMetrics, log *slog.Logger) *Session {
	return &Session{
		tenantID:      tenantID,
		queue:         NewQueue(),
		synth:         synthesizer,
		pollInterval:  pollInterval,
		log:           log.With(slog.String("component", "consumer-loop"), slog.String("tenant", tenantID)),
		metrics:       metrics,
		transport:     tr,
		sourceChannel: sourceChannel,
		volume:        volume,
		done:          make(chan struct{}),
	}
}

// run is the consumer loop: wait for an item, synthesize, play, wait for
// playback to finish, repeat. Cancellation at the queue wait or during the
// playback poll is a clean exit.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	s.log.Info("consumer loop started")
	for {
		item, err := s.queue.Pop(ctx)
		if err != nil {
			s.log.Info("consumer loop stopped")
			return
		}
		s.playItem(ctx, item)
	}
}

// playItem carries one item through synthesis and playback. Item-level
// faults (synthesis failure, dead transport) discard the item and keep the
// loop alive; so does an unexpected panic, which is recovered here rather
// than killing the tenant's loop.
func (s *Session) playItem(ctx context.Context, item Item) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("playback iteration panicked, item discarded", slog.Any("panic", r))
		}
		s.clearInFlight()
	}()

	tr := s.Transport()
	if tr == nil || !tr.IsConnected() {
		s.log.Warn("transport unavailable, discarding item")
		s.metrics.dropped(ctx, s.tenantID)
		return
	}

	data, err := s.synth.Synthesize(ctx, synth.Request{
		Text:         item.Text,
		ModelUUID:    item.ModelUUID,
		SpeakingRate: item.SpeakingRate,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.Warn("synthesis failed, discarding item", slog.String("error", err.Error()))
		s.metrics.synthFailed(ctx, s.tenantID)
		return
	}

	effective := EffectiveVolume(s.Volume(), item.SpeakerVolume)
	s.setInFlight(item.SpeakerVolume)
	if err := tr.Play(data, effective); err != nil {
		s.log.Warn("playback failed, discarding item", slog.String("error", err.Error()))
		s.metrics.dropped(ctx, s.tenantID)
		return
	}

	s.metrics.played(ctx, s.tenantID)
	s.waitForPlayback(ctx, tr)
}

// waitForPlayback polls the transport until it reports neither playing nor
// paused, which covers natural completion, skip, and external stop. The
// transport contract exposes only state queries, so polling is the fallback
// it forces; the interval is bounded and configurable.
func (s *Session) waitForPlayback(ctx context.Context, tr audio.Transport) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			tr.Stop()
			return
		case <-ticker.C:
			if !tr.IsPlaying() && !tr.IsPaused() {
				return
			}
		}
	}
}

// Transport returns the current transport handle; Join may swap it while
// the loop runs.
func (s *Session) Transport() audio.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transport
}

// rebind replaces the transport handle and source channel on a repeat join.
// The previous handle is returned for disconnection outside the lock.
func (s *Session) rebind(tr audio.Transport, sourceChannel string) audio.Transport {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.transport
	s.transport = tr
	s.sourceChannel = sourceChannel
	return old
}

func (s *Session) SourceChannel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceChannel
}

func (s *Session) setSourceChannel(channel string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceChannel = channel
}

func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *Session) setMuted(muted bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.muted = muted
}

func (s *Session) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

// setVolume updates the tenant volume and, when something is playing,
// re-applies the effective volume to the live stream without interrupting
// it.
func (s *Session) setVolume(v float64) {
	s.mu.Lock()
	s.volume = v
	reapply := s.inFlight
	speakerVol := s.inFlightSpVol
	tr := s.transport
	s.mu.Unlock()

	if reapply && tr != nil {
		tr.SetVolume(EffectiveVolume(v, speakerVol))
	}
}

func (s *Session) setInFlight(speakerVolume float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = true
	s.inFlightSpVol = speakerVolume
}

func (s *Session) clearInFlight() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	s.inFlightSpVol = 0
}
