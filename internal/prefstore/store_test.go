package prefstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testDefaults() Defaults {
	return Defaults{ModelUUID: "default-model", SpeakingRate: 1.1, VolumePercent: 100}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "prefs.db"), testDefaults(), newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDictionaryRoundTrip(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.AddWord(ctx, "tenant-1", "gg", "good game"); err != nil {
		t.Fatalf("add word: %v", err)
	}
	if err := s.AddWord(ctx, "tenant-1", "gg", "good game!"); err != nil {
		t.Fatalf("replace word: %v", err)
	}
	if err := s.AddWord(ctx, "tenant-2", "brb", "be right back"); err != nil {
		t.Fatalf("add word other tenant: %v", err)
	}

	words, err := s.Dictionary(ctx, "tenant-1")
	if err != nil {
		t.Fatalf("dictionary: %v", err)
	}
	if len(words) != 1 {
		t.Fatalf("expected 1 word, got %d", len(words))
	}
	if words["gg"] != "good game!" {
		t.Fatalf("expected replaced reading, got %q", words["gg"])
	}

	removed, err := s.RemoveWord(ctx, "tenant-1", "gg")
	if err != nil {
		t.Fatalf("remove word: %v", err)
	}
	if !removed {
		t.Fatal("expected removal to report true")
	}
	removed, err = s.RemoveWord(ctx, "tenant-1", "missing")
	if err != nil {
		t.Fatalf("remove missing word: %v", err)
	}
	if removed {
		t.Fatal("expected removal of missing word to report false")
	}
}

func TestSpeakerPrefsDefaults(t *testing.T) {
	s := openStore(t)

	prefs, err := s.SpeakerPrefs(context.Background(), "speaker-1")
	if err != nil {
		t.Fatalf("speaker prefs: %v", err)
	}
	if prefs.ModelUUID != "default-model" {
		t.Fatalf("expected default model, got %q", prefs.ModelUUID)
	}
	if prefs.SpeakingRate != 1.1 {
		t.Fatalf("expected default rate 1.1, got %v", prefs.SpeakingRate)
	}
	if prefs.VolumePercent != 100 {
		t.Fatalf("expected default volume 100, got %d", prefs.VolumePercent)
	}
}

func TestSpeakerPrefsPartialOverride(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	if err := s.SetSpeakingRate(ctx, "speaker-1", 1.5); err != nil {
		t.Fatalf("set rate: %v", err)
	}

	prefs, err := s.SpeakerPrefs(ctx, "speaker-1")
	if err != nil {
		t.Fatalf("speaker prefs: %v", err)
	}
	if prefs.SpeakingRate != 1.5 {
		t.Fatalf("expected stored rate 1.5, got %v", prefs.SpeakingRate)
	}
	if prefs.ModelUUID != "default-model" {
		t.Fatalf("expected model to fall back to default, got %q", prefs.ModelUUID)
	}

	if err := s.SetModel(ctx, "speaker-1", "model-a"); err != nil {
		t.Fatalf("set model: %v", err)
	}
	if err := s.SetVolumePercent(ctx, "speaker-1", 120); err != nil {
		t.Fatalf("set volume: %v", err)
	}

	prefs, err = s.SpeakerPrefs(ctx, "speaker-1")
	if err != nil {
		t.Fatalf("speaker prefs: %v", err)
	}
	if prefs.ModelUUID != "model-a" || prefs.SpeakingRate != 1.5 || prefs.VolumePercent != 120 {
		t.Fatalf("unexpected prefs after updates: %+v", prefs)
	}
}

func TestResetSpeaker(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	had, err := s.ResetSpeaker(ctx, "speaker-1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if had {
		t.Fatal("expected reset of unknown speaker to report false")
	}

	if err := s.SetVolumePercent(ctx, "speaker-1", 50); err != nil {
		t.Fatalf("set volume: %v", err)
	}
	had, err = s.ResetSpeaker(ctx, "speaker-1")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if !had {
		t.Fatal("expected reset to report stored prefs")
	}

	prefs, err := s.SpeakerPrefs(ctx, "speaker-1")
	if err != nil {
		t.Fatalf("speaker prefs: %v", err)
	}
	if prefs.VolumePercent != 100 {
		t.Fatalf("expected defaults after reset, got %+v", prefs)
	}
}
