package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/yomilabs/yomi-core/internal/audio"
	"github.com/yomilabs/yomi-core/internal/config"
	"github.com/yomilabs/yomi-core/internal/synth"
)

// Info is a read-only view of one session's control state.
type Info struct {
	SourceChannel string
	Muted         bool
	Connected     bool
	VolumePercent int
}

// Manager owns all tenant sessions. Every control operation and every
// enqueue goes through it; sessions never outlive their entry in the
// registry.
type Manager struct {
	ctx          context.Context
	cfg          config.PlaybackConfig
	defaultModel string
	synth        synth.Synthesizer
	newTransport audio.Factory
	log          *slog.Logger
	metrics      *pipelineMetrics

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(ctx context.Context, cfg config.PlaybackConfig, defaultModel string, synthesizer synth.Synthesizer, factory audio.Factory, log *slog.Logger) *Manager {
	mlog := log.With(slog.String("component", "session-manager"))
	return &Manager{
		ctx:          ctx,
		cfg:          cfg,
		defaultModel: defaultModel,
		synth:        synthesizer,
		newTransport: factory,
		log:          mlog,
		metrics:      newPipelineMetrics(mlog),
		sessions:     make(map[string]*Session),
	}
}

func (m *Manager) pollInterval() time.Duration {
	return time.Duration(m.cfg.PollIntervalMS) * time.Millisecond
}

// Join connects the tenant to the requester's voice target and binds the
// requesting text channel as the read source. A tenant that is already
// joined keeps its queue and consumer loop; only the transport binding and
// source channel move.
func (m *Manager) Join(ctx context.Context, tenantID, target, sourceChannel string) error {
	if target == "" {
		return ErrNoVoiceTarget
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	tr := m.newTransport()
	if err := tr.Connect(ctx, target); err != nil {
		return fmt.Errorf("failed to connect voice transport: %w", err)
	}
	tr.Deafen(true)

	if existing, ok := m.sessions[tenantID]; ok {
		old := existing.rebind(tr, sourceChannel)
		if old != nil {
			if err := old.Disconnect(); err != nil {
				m.log.Warn("failed to release previous transport",
					slog.String("tenant", tenantID), slog.String("error", err.Error()))
			}
		}
		m.log.Info("session rebound", slog.String("tenant", tenantID), slog.String("target", target))
		return nil
	}

	s := newSession(tenantID, tr, sourceChannel, m.cfg.TenantVolume, m.synth, m.pollInterval(), m.metrics, m.log)
	loopCtx, cancel := context.WithCancel(m.ctx)
	s.cancel = cancel
	m.sessions[tenantID] = s
	go s.run(loopCtx)

	m.log.Info("session joined", slog.String("tenant", tenantID), slog.String("target", target))
	return nil
}

// Leave stops the tenant's consumer loop, discards its queue, and releases
// the transport. The loop is fully terminated before the registry entry is
// removed, so no item can slip through during teardown.
func (m *Manager) Leave(tenantID string) error {
	m.mu.Lock()
	s, ok := m.sessions[tenantID]
	if !ok {
		m.mu.Unlock()
		return ErrNotJoined
	}
	s.cancel()
	<-s.done
	delete(m.sessions, tenantID)
	m.mu.Unlock()

	s.queue.Drain()
	if tr := s.Transport(); tr != nil {
		if err := tr.Disconnect(); err != nil {
			m.log.Warn("failed to release transport",
				slog.String("tenant", tenantID), slog.String("error", err.Error()))
		}
	}
	m.log.Info("session left", slog.String("tenant", tenantID))
	return nil
}

func (m *Manager) session(tenantID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[tenantID]
	if !ok {
		return nil, ErrNotJoined
	}
	return s, nil
}

// SetMute toggles readout for the tenant. Muting gates new enqueues only;
// items already queued or playing continue.
func (m *Manager) SetMute(tenantID string, muted bool) error {
	s, err := m.session(tenantID)
	if err != nil {
		return err
	}
	s.setMuted(muted)
	return nil
}

// Pause halts the in-flight stream. Reports whether anything was actually
// playing; pausing an idle or already-paused session is a no-op.
func (m *Manager) Pause(tenantID string) (bool, error) {
	s, err := m.session(tenantID)
	if err != nil {
		return false, err
	}
	tr := s.Transport()
	if tr == nil || !tr.IsPlaying() {
		return false, nil
	}
	tr.Pause()
	return true, nil
}

// Resume continues a paused stream. Reports whether anything was paused.
func (m *Manager) Resume(tenantID string) (bool, error) {
	s, err := m.session(tenantID)
	if err != nil {
		return false, err
	}
	tr := s.Transport()
	if tr == nil || !tr.IsPaused() {
		return false, nil
	}
	tr.Resume()
	return true, nil
}

// Skip drains every pending item and stops the current stream, paused or
// not. Returns how many pending items were discarded and whether a stream
// was interrupted; ErrNothingToSkip when the session was fully idle.
func (m *Manager) Skip(tenantID string) (int, bool, error) {
	s, err := m.session(tenantID)
	if err != nil {
		return 0, false, err
	}
	drained := s.queue.Drain()
	stopped := false
	if tr := s.Transport(); tr != nil && (tr.IsPlaying() || tr.IsPaused()) {
		tr.Stop()
		stopped = true
	}
	if drained == 0 && !stopped {
		return 0, false, ErrNothingToSkip
	}
	m.log.Info("queue skipped", slog.String("tenant", tenantID),
		slog.Int("drained", drained), slog.Bool("stopped", stopped))
	return drained, stopped, nil
}

// SetVolume sets the tenant-wide volume from a 0-200 percentage. The new
// level applies to the in-flight stream immediately and to everything after
// it.
func (m *Manager) SetVolume(tenantID string, percent int) error {
	if percent < 0 || percent > 200 {
		return fmt.Errorf("volume percent %d out of range 0-200", percent)
	}
	s, err := m.session(tenantID)
	if err != nil {
		return err
	}
	s.setVolume(float64(percent) / 100)
	return nil
}

// SetSourceChannel rebinds which text channel feeds the queue.
func (m *Manager) SetSourceChannel(tenantID, channel string) error {
	s, err := m.session(tenantID)
	if err != nil {
		return err
	}
	s.setSourceChannel(channel)
	return nil
}

// Enqueue appends one item to the tenant's queue. Items for muted or absent
// sessions are dropped without error; ordering for accepted items is strict
// arrival order.
func (m *Manager) Enqueue(ctx context.Context, tenantID string, item Item) bool {
	s, err := m.session(tenantID)
	if err != nil {
		return false
	}
	if s.Muted() {
		return false
	}
	if tr := s.Transport(); tr == nil || !tr.IsConnected() {
		return false
	}
	s.queue.Push(item)
	m.metrics.enqueuedItem(ctx, tenantID)
	return true
}

// Announce queues a system notice with default voice parameters. Announce
// bypasses mute so presence and status notices still play while readout is
// off.
func (m *Manager) Announce(ctx context.Context, tenantID, text string) error {
	s, err := m.session(tenantID)
	if err != nil {
		return err
	}
	if tr := s.Transport(); tr == nil || !tr.IsConnected() {
		return ErrNotJoined
	}
	s.queue.Push(Item{
		Text:          text,
		ModelUUID:     m.defaultModel,
		SpeakingRate:  m.cfg.DefaultRate,
		SpeakerVolume: m.cfg.AnnouncementVolume,
		Speaker:       "system",
	})
	m.metrics.enqueuedItem(ctx, tenantID)
	return nil
}

// QueueSnapshot returns up to the configured preview of pending items plus
// the total pending count.
func (m *Manager) QueueSnapshot(tenantID string) ([]Item, int, error) {
	s, err := m.session(tenantID)
	if err != nil {
		return nil, 0, err
	}
	preview, total := s.queue.Snapshot(m.cfg.QueuePreview)
	return preview, total, nil
}

// SessionInfo reports the tenant's control state, or false when not joined.
func (m *Manager) SessionInfo(tenantID string) (Info, bool) {
	s, err := m.session(tenantID)
	if err != nil {
		return Info{}, false
	}
	connected := false
	if tr := s.Transport(); tr != nil {
		connected = tr.IsConnected()
	}
	return Info{
		SourceChannel: s.SourceChannel(),
		Muted:         s.Muted(),
		Connected:     connected,
		VolumePercent: int(s.Volume()*100 + 0.5),
	}, true
}

// Shutdown tears down every session. Called once during runtime shutdown.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		if err := m.Leave(id); err != nil {
			m.log.Warn("failed to tear down session",
				slog.String("tenant", id), slog.String("error", err.Error()))
		}
	}
}
