package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Playback.TenantVolume != 0.75 {
		t.Fatalf("expected default tenant volume 0.75, got %v", cfg.Playback.TenantVolume)
	}
	if cfg.Playback.DefaultRate != 1.1 {
		t.Fatalf("expected default speaking rate 1.1, got %v", cfg.Playback.DefaultRate)
	}
	if cfg.Synthesis.Mode != "aivis" {
		t.Fatalf("expected aivis synthesis mode, got %q", cfg.Synthesis.Mode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("YOMI_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("YOMI_BUS_USERNAME", "alice")
	t.Setenv("YOMI_BUS_PASSWORD", "secret")
	t.Setenv("YOMI_STORE_PATH", "./tmp.db")
	t.Setenv("YOMI_SYNTHESIS_MODE", "mock")
	t.Setenv("YOMI_SYNTHESIS_MODEL_UUID", "model-x")
	t.Setenv("YOMI_PLAYBACK_TRANSPORT", "mock")
	t.Setenv("YOMI_PLAYBACK_POLL_INTERVAL_MS", "250")
	t.Setenv("YOMI_PLAYBACK_TENANT_VOLUME", "1.5")
	t.Setenv("YOMI_INGEST_SKIP_KEYWORD", "skip")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.Store.Path != "./tmp.db" {
		t.Fatalf("expected store path override")
	}
	if cfg.Synthesis.Mode != "mock" {
		t.Fatalf("expected synthesis mode override")
	}
	if cfg.Synthesis.ModelUUID != "model-x" {
		t.Fatalf("expected model uuid override")
	}
	if cfg.Playback.Transport != "mock" {
		t.Fatalf("expected transport override")
	}
	if cfg.Playback.PollIntervalMS != 250 {
		t.Fatalf("expected poll interval 250, got %d", cfg.Playback.PollIntervalMS)
	}
	if cfg.Playback.TenantVolume != 1.5 {
		t.Fatalf("expected tenant volume 1.5, got %v", cfg.Playback.TenantVolume)
	}
	if cfg.Ingest.SkipKeyword != "skip" {
		t.Fatalf("expected skip keyword override")
	}
}

func TestValidateRejectsBadVolume(t *testing.T) {
	t.Setenv("YOMI_PLAYBACK_TENANT_VOLUME", "2.5")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for tenant volume above 2.0")
	}
}

func TestValidateRejectsUnknownSynthesisMode(t *testing.T) {
	t.Setenv("YOMI_SYNTHESIS_MODE", "cloudfoo")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown synthesis mode")
	}
}
