// Package gateway bridges the message bus to the playback pipeline. It
// consumes chat and presence events, normalizes text, and serves the
// request/reply control surface.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/yomilabs/yomi-core/internal/bus"
	"github.com/yomilabs/yomi-core/internal/config"
	"github.com/yomilabs/yomi-core/internal/ingest"
	"github.com/yomilabs/yomi-core/internal/prefstore"
	"github.com/yomilabs/yomi-core/internal/protocol"
	"github.com/yomilabs/yomi-core/internal/session"
)

type Service struct {
	cfg         config.IngestConfig
	bus         *bus.Client
	manager     *session.Manager
	store       *prefstore.Store
	processor   *ingest.Processor
	logger      *slog.Logger
	subMessages *nats.Subscription
	subPresence *nats.Subscription
	subControl  *nats.Subscription
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

func NewService(parent context.Context, cfg config.IngestConfig, busClient *bus.Client, manager *session.Manager, store *prefstore.Store, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:       cfg,
		bus:       busClient,
		manager:   manager,
		store:     store,
		processor: ingest.NewProcessor(cfg),
		logger:    logger.With(slog.String("component", "gateway")),
		ctx:       ctx,
		cancel:    cancel,
	}
}

func (s *Service) Start() error {
	conn := s.bus.Conn()

	sub, err := conn.Subscribe(protocol.SubjectChatMessagePrefix+".>", s.handleChatMessage)
	if err != nil {
		return err
	}
	s.subMessages = sub

	subPresence, err := conn.Subscribe(protocol.SubjectPresencePrefix+".>", s.handlePresence)
	if err != nil {
		s.subMessages.Drain()
		return err
	}
	s.subPresence = subPresence

	subControl, err := conn.Subscribe(protocol.SubjectControlPrefix+".>", s.handleControl)
	if err != nil {
		s.subMessages.Drain()
		s.subPresence.Drain()
		return err
	}
	s.subControl = subControl
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.subMessages != nil {
		_ = s.subMessages.Drain()
	}
	if s.subPresence != nil {
		_ = s.subPresence.Drain()
	}
	if s.subControl != nil {
		_ = s.subControl.Drain()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return s.subMessages != nil && s.subPresence != nil && s.subControl != nil
}

// handleChatMessage feeds one chat event into the tenant's queue. Events
// from bots, from channels other than the bound source, or for tenants with
// no live session are ignored.
func (s *Service) handleChatMessage(msg *nats.Msg) {
	var cm protocol.ChatMessage
	if err := json.Unmarshal(msg.Data, &cm); err != nil {
		s.logger.Warn("failed to decode chat message", slogError(err))
		return
	}
	if cm.Bot || cm.TenantID == "" {
		return
	}

	info, ok := s.manager.SessionInfo(cm.TenantID)
	if !ok {
		return
	}
	if info.SourceChannel != "" && info.SourceChannel != cm.ChannelID {
		return
	}

	if strings.TrimSpace(cm.Content) == s.cfg.SkipKeyword {
		if _, _, err := s.manager.Skip(cm.TenantID); err != nil && !isExpectedSkipErr(err) {
			s.logger.Warn("skip failed", slog.String("tenant", cm.TenantID), slogError(err))
		}
		return
	}
	if info.Muted {
		return
	}

	prefs, err := s.store.SpeakerPrefs(s.ctx, cm.SpeakerID)
	if err != nil {
		s.logger.Warn("failed to load speaker prefs", slog.String("speaker", cm.SpeakerID), slogError(err))
	}
	dict, err := s.store.Dictionary(s.ctx, cm.TenantID)
	if err != nil {
		s.logger.Warn("failed to load dictionary", slog.String("tenant", cm.TenantID), slogError(err))
	}

	attachments := 0
	if cm.HasAttachments {
		attachments = 1
	}
	text := s.processor.Process(cm.Content, dict, attachments)
	if text == "" {
		return
	}

	s.manager.Enqueue(s.ctx, cm.TenantID, session.Item{
		Text:          text,
		ModelUUID:     prefs.ModelUUID,
		SpeakingRate:  prefs.SpeakingRate,
		SpeakerVolume: float64(prefs.VolumePercent) / 100,
		Speaker:       cm.SpeakerName,
	})
}

func isExpectedSkipErr(err error) bool {
	return errors.Is(err, session.ErrNothingToSkip) || errors.Is(err, session.ErrNotJoined)
}

// handlePresence queues a voice notice for users entering or leaving the
// bound voice target. Notices play even while the tenant is muted.
func (s *Service) handlePresence(msg *nats.Msg) {
	var pe protocol.PresenceEvent
	if err := json.Unmarshal(msg.Data, &pe); err != nil {
		s.logger.Warn("failed to decode presence event", slogError(err))
		return
	}
	if pe.TenantID == "" || pe.UserName == "" {
		return
	}

	verb := "left"
	if pe.Joined {
		verb = "joined"
	}
	text := fmt.Sprintf("%s %s the voice channel", pe.UserName, verb)
	if err := s.manager.Announce(s.ctx, pe.TenantID, text); err != nil && !errors.Is(err, session.ErrNotJoined) {
		s.logger.Warn("failed to queue presence notice", slog.String("tenant", pe.TenantID), slogError(err))
	}
}

func (s *Service) handleControl(msg *nats.Msg) {
	var req protocol.ControlRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.respond(msg, protocol.ControlReply{Error: "malformed control request"})
		return
	}
	s.respond(msg, s.dispatch(req))
}

func (s *Service) dispatch(req protocol.ControlRequest) protocol.ControlReply {
	switch req.Op {
	case protocol.OpJoin:
		if err := s.manager.Join(s.ctx, req.TenantID, req.Target, req.ChannelID); err != nil {
			return errReply(err)
		}
		return okReply()

	case protocol.OpLeave:
		if err := s.manager.Leave(req.TenantID); err != nil {
			return errReply(err)
		}
		return okReply()

	case protocol.OpMute:
		return toggleReply(s.manager.SetMute(req.TenantID, true))

	case protocol.OpUnmute:
		return toggleReply(s.manager.SetMute(req.TenantID, false))

	case protocol.OpPause:
		applied, err := s.manager.Pause(req.TenantID)
		if err != nil {
			return errReply(err)
		}
		return protocol.ControlReply{OK: true, Applied: applied}

	case protocol.OpResume:
		applied, err := s.manager.Resume(req.TenantID)
		if err != nil {
			return errReply(err)
		}
		return protocol.ControlReply{OK: true, Applied: applied}

	case protocol.OpSkip:
		drained, _, err := s.manager.Skip(req.TenantID)
		if errors.Is(err, session.ErrNothingToSkip) {
			return protocol.ControlReply{OK: true, Applied: false}
		}
		if err != nil {
			return errReply(err)
		}
		return protocol.ControlReply{OK: true, Applied: true, Pending: drained}

	case protocol.OpVolume:
		return toggleReply(s.manager.SetVolume(req.TenantID, req.Level))

	case protocol.OpChannel:
		return toggleReply(s.manager.SetSourceChannel(req.TenantID, req.ChannelID))

	case protocol.OpQueue:
		items, total, err := s.manager.QueueSnapshot(req.TenantID)
		if err != nil {
			return errReply(err)
		}
		entries := make([]protocol.QueueEntry, 0, len(items))
		for _, item := range items {
			entries = append(entries, protocol.QueueEntry{Speaker: item.Speaker, Text: item.Text})
		}
		return protocol.ControlReply{OK: true, Queue: entries, Pending: total}

	case protocol.OpDictAdd:
		if req.Word == "" || req.Reading == "" {
			return protocol.ControlReply{Error: "word and reading must not be empty"}
		}
		return toggleReply(s.store.AddWord(s.ctx, req.TenantID, req.Word, req.Reading))

	case protocol.OpDictRemove:
		existed, err := s.store.RemoveWord(s.ctx, req.TenantID, req.Word)
		if err != nil {
			return errReply(err)
		}
		return protocol.ControlReply{OK: true, Applied: existed}

	case protocol.OpDictList:
		words, err := s.store.Dictionary(s.ctx, req.TenantID)
		if err != nil {
			return errReply(err)
		}
		return protocol.ControlReply{OK: true, Words: words}

	case protocol.OpSetModel:
		if req.ModelUUID == "" {
			return protocol.ControlReply{Error: "model_uuid must not be empty"}
		}
		return toggleReply(s.store.SetModel(s.ctx, req.SpeakerID, req.ModelUUID))

	case protocol.OpSetSpeed:
		if req.Rate < 0.5 || req.Rate > 2.0 {
			return protocol.ControlReply{Error: "rate must be between 0.5 and 2.0"}
		}
		return toggleReply(s.store.SetSpeakingRate(s.ctx, req.SpeakerID, req.Rate))

	case protocol.OpSetVolume:
		if req.Level < 0 || req.Level > 200 {
			return protocol.ControlReply{Error: "volume must be between 0 and 200"}
		}
		return toggleReply(s.store.SetVolumePercent(s.ctx, req.SpeakerID, req.Level))

	case protocol.OpSetView:
		prefs, err := s.store.SpeakerPrefs(s.ctx, req.SpeakerID)
		if err != nil {
			return errReply(err)
		}
		return protocol.ControlReply{OK: true, Settings: &protocol.SpeakerSettings{
			ModelUUID:     prefs.ModelUUID,
			SpeakingRate:  prefs.SpeakingRate,
			VolumePercent: prefs.VolumePercent,
		}}

	case protocol.OpSetReset:
		existed, err := s.store.ResetSpeaker(s.ctx, req.SpeakerID)
		if err != nil {
			return errReply(err)
		}
		return protocol.ControlReply{OK: true, Applied: existed}

	default:
		return protocol.ControlReply{Error: fmt.Sprintf("unknown operation %q", req.Op)}
	}
}

func (s *Service) respond(msg *nats.Msg, reply protocol.ControlReply) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("failed to encode control reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send control reply", slogError(err))
	}
}

func okReply() protocol.ControlReply {
	return protocol.ControlReply{OK: true}
}

func errReply(err error) protocol.ControlReply {
	return protocol.ControlReply{Error: err.Error()}
}

func toggleReply(err error) protocol.ControlReply {
	if err != nil {
		return errReply(err)
	}
	return okReply()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
