package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/yomilabs/yomi-core/internal/audio"
	"github.com/yomilabs/yomi-core/internal/bus"
	"github.com/yomilabs/yomi-core/internal/config"
	"github.com/yomilabs/yomi-core/internal/natsserver"
	"github.com/yomilabs/yomi-core/internal/prefstore"
	"github.com/yomilabs/yomi-core/internal/protocol"
	"github.com/yomilabs/yomi-core/internal/session"
	"github.com/yomilabs/yomi-core/internal/synth"
)

type captureFactory struct {
	mu   sync.Mutex
	made []*audio.MockTransport
}

func (f *captureFactory) New() audio.Transport {
	tr := audio.NewMockTransport().AutoFinish()
	f.mu.Lock()
	f.made = append(f.made, tr)
	f.mu.Unlock()
	return tr
}

func (f *captureFactory) last() *audio.MockTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.made) == 0 {
		return nil
	}
	return f.made[len(f.made)-1]
}

type harness struct {
	conn    *nats.Conn
	factory *captureFactory
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, log)
	if err != nil {
		t.Fatalf("failed to start embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	busClient, err := bus.Connect(config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, log)
	if err != nil {
		t.Fatalf("failed to connect bus: %v", err)
	}
	t.Cleanup(busClient.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store, err := prefstore.Open(ctx, filepath.Join(t.TempDir(), "prefs.db"), prefstore.Defaults{
		ModelUUID:     "model-default",
		SpeakingRate:  1.1,
		VolumePercent: 100,
	}, log)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	factory := &captureFactory{}
	cfg := config.PlaybackConfig{
		Transport:          "mock",
		PollIntervalMS:     5,
		QueuePreview:       10,
		TenantVolume:       0.75,
		DefaultRate:        1.1,
		AnnouncementVolume: 1.0,
	}
	manager := session.NewManager(ctx, cfg, "model-default", synth.NewMockSynth(), factory.New, log)
	t.Cleanup(manager.Shutdown)

	svc := NewService(ctx, config.IngestConfig{
		SkipKeyword:           "s",
		URLPlaceholder:        "URL",
		AttachmentPlaceholder: "attachment",
	}, busClient, manager, store, log)
	if err := svc.Start(); err != nil {
		t.Fatalf("failed to start gateway: %v", err)
	}
	t.Cleanup(svc.Close)

	return &harness{conn: busClient.Conn(), factory: factory}
}

func (h *harness) control(t *testing.T, tenant string, req protocol.ControlRequest) protocol.ControlReply {
	t.Helper()
	req.TenantID = tenant
	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("failed to encode request: %v", err)
	}
	msg, err := h.conn.Request(protocol.SubjectControlPrefix+"."+tenant, data, 2*time.Second)
	if err != nil {
		t.Fatalf("control request %q failed: %v", req.Op, err)
	}
	var reply protocol.ControlReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		t.Fatalf("failed to decode reply: %v", err)
	}
	return reply
}

func (h *harness) publishChat(t *testing.T, cm protocol.ChatMessage) {
	t.Helper()
	data, err := json.Marshal(cm)
	if err != nil {
		t.Fatalf("failed to encode chat message: %v", err)
	}
	if err := h.conn.Publish(protocol.SubjectChatMessagePrefix+"."+cm.TenantID, data); err != nil {
		t.Fatalf("failed to publish chat message: %v", err)
	}
}

func waitPlaybacks(t *testing.T, tr *audio.MockTransport, want int) []audio.Playback {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		pbs := tr.Playbacks()
		if len(pbs) >= want {
			return pbs
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d playbacks, have %d", want, len(pbs))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestChatMessageFlowsToPlayback(t *testing.T) {
	h := newHarness(t)

	reply := h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpJoin, Target: "voice-1", ChannelID: "chan-1"})
	if !reply.OK {
		t.Fatalf("join rejected: %s", reply.Error)
	}

	h.publishChat(t, protocol.ChatMessage{
		TenantID:    "guild-1",
		ChannelID:   "chan-1",
		SpeakerID:   "user-1",
		SpeakerName: "alice",
		Content:     "hello world",
	})

	pbs := waitPlaybacks(t, h.factory.last(), 1)
	if diff := pbs[0].Volume - 0.75; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected default effective volume 0.75, got %v", pbs[0].Volume)
	}
}

func TestChatMessageIgnoredFromOtherChannel(t *testing.T) {
	h := newHarness(t)

	h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpJoin, Target: "voice-1", ChannelID: "chan-1"})

	h.publishChat(t, protocol.ChatMessage{
		TenantID:  "guild-1",
		ChannelID: "chan-other",
		SpeakerID: "user-1",
		Content:   "should not play",
	})
	h.publishChat(t, protocol.ChatMessage{
		TenantID:  "guild-1",
		ChannelID: "chan-1",
		SpeakerID: "user-1",
		Content:   "should play",
	})

	waitPlaybacks(t, h.factory.last(), 1)
	if n := len(h.factory.last().Playbacks()); n != 1 {
		t.Fatalf("expected exactly 1 playback, got %d", n)
	}
}

func TestMuteBlocksChatButNotPresence(t *testing.T) {
	h := newHarness(t)

	h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpJoin, Target: "voice-1", ChannelID: "chan-1"})
	if reply := h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpMute}); !reply.OK {
		t.Fatalf("mute rejected: %s", reply.Error)
	}

	h.publishChat(t, protocol.ChatMessage{
		TenantID:  "guild-1",
		ChannelID: "chan-1",
		SpeakerID: "user-1",
		Content:   "silenced",
	})

	data, _ := json.Marshal(protocol.PresenceEvent{TenantID: "guild-1", UserName: "bob", Joined: true})
	if err := h.conn.Publish(protocol.SubjectPresencePrefix+".guild-1", data); err != nil {
		t.Fatalf("failed to publish presence: %v", err)
	}

	waitPlaybacks(t, h.factory.last(), 1)
	if n := len(h.factory.last().Playbacks()); n != 1 {
		t.Fatalf("expected only the presence notice, got %d playbacks", n)
	}
}

func TestBotMessagesIgnored(t *testing.T) {
	h := newHarness(t)

	h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpJoin, Target: "voice-1", ChannelID: "chan-1"})
	h.publishChat(t, protocol.ChatMessage{
		TenantID:  "guild-1",
		ChannelID: "chan-1",
		SpeakerID: "bot-1",
		Content:   "beep boop",
		Bot:       true,
	})
	h.publishChat(t, protocol.ChatMessage{
		TenantID:  "guild-1",
		ChannelID: "chan-1",
		SpeakerID: "user-1",
		Content:   "real message",
	})

	waitPlaybacks(t, h.factory.last(), 1)
	if n := len(h.factory.last().Playbacks()); n != 1 {
		t.Fatalf("expected bot message dropped, got %d playbacks", n)
	}
}

func TestControlDictionaryOps(t *testing.T) {
	h := newHarness(t)

	if reply := h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpDictAdd, Word: "k8s", Reading: "kubernetes"}); !reply.OK {
		t.Fatalf("dict.add rejected: %s", reply.Error)
	}
	reply := h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpDictList})
	if !reply.OK || reply.Words["k8s"] != "kubernetes" {
		t.Fatalf("unexpected dict.list reply: %+v", reply)
	}

	reply = h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpDictRemove, Word: "k8s"})
	if !reply.OK || !reply.Applied {
		t.Fatalf("expected removal applied, got %+v", reply)
	}
	reply = h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpDictRemove, Word: "k8s"})
	if !reply.OK || reply.Applied {
		t.Fatalf("expected second removal to be a no-op, got %+v", reply)
	}

	if reply := h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpDictAdd, Word: "", Reading: "x"}); reply.OK {
		t.Fatal("expected empty word to be rejected")
	}
}

func TestControlSpeakerSettings(t *testing.T) {
	h := newHarness(t)

	if reply := h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpSetSpeed, SpeakerID: "user-1", Rate: 1.5}); !reply.OK {
		t.Fatalf("setting.speed rejected: %s", reply.Error)
	}
	if reply := h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpSetVolume, SpeakerID: "user-1", Level: 120}); !reply.OK {
		t.Fatalf("setting.volume rejected: %s", reply.Error)
	}

	reply := h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpSetView, SpeakerID: "user-1"})
	if !reply.OK || reply.Settings == nil {
		t.Fatalf("unexpected setting.view reply: %+v", reply)
	}
	if reply.Settings.SpeakingRate != 1.5 || reply.Settings.VolumePercent != 120 {
		t.Fatalf("unexpected settings: %+v", reply.Settings)
	}
	if reply.Settings.ModelUUID != "model-default" {
		t.Fatalf("expected default model, got %q", reply.Settings.ModelUUID)
	}

	if reply := h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpSetSpeed, SpeakerID: "user-1", Rate: 3.0}); reply.OK {
		t.Fatal("expected out-of-range rate to be rejected")
	}

	reply = h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpSetReset, SpeakerID: "user-1"})
	if !reply.OK || !reply.Applied {
		t.Fatalf("expected reset applied, got %+v", reply)
	}
	reply = h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpSetView, SpeakerID: "user-1"})
	if reply.Settings == nil || reply.Settings.SpeakingRate != 1.1 {
		t.Fatalf("expected defaults after reset, got %+v", reply.Settings)
	}
}

func TestControlPauseResumeWhenIdle(t *testing.T) {
	h := newHarness(t)

	h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpJoin, Target: "voice-1", ChannelID: "chan-1"})

	reply := h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpPause})
	if !reply.OK || reply.Applied {
		t.Fatalf("expected idle pause to be a no-op, got %+v", reply)
	}
	reply = h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpSkip})
	if !reply.OK || reply.Applied {
		t.Fatalf("expected idle skip to be a no-op, got %+v", reply)
	}
}

func TestControlUnknownOp(t *testing.T) {
	h := newHarness(t)

	reply := h.control(t, "guild-1", protocol.ControlRequest{Op: "explode"})
	if reply.OK || reply.Error == "" {
		t.Fatalf("expected unknown op rejection, got %+v", reply)
	}
}

func TestControlLeaveWithoutJoin(t *testing.T) {
	h := newHarness(t)

	reply := h.control(t, "guild-1", protocol.ControlRequest{Op: protocol.OpLeave})
	if reply.OK {
		t.Fatal("expected leave without join to fail")
	}
}
