package playback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/geetalabs/geeta-core/internal/config"
)

func writeWav(t *testing.T, samples int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create wav: %v", err)
	}
	defer f.Close()

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:   make([]int, samples),
	}
	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	return path
}

func TestMediaPlayerOpensLocalWav(t *testing.T) {
	path := writeWav(t, 16000) // one second of audio

	player, err := NewPlayer(config.PlaybackConfig{Mode: "media", Autoplay: true, PositionIntervalMS: 250})
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	clip, err := player.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer clip.Close()

	if clip.Duration() <= 0 {
		t.Fatalf("expected positive duration, got %v", clip.Duration())
	}
	if err := clip.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := clip.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
}

func TestMediaPlayerFetchesHTTPResource(t *testing.T) {
	path := writeWav(t, 8000)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
		w.Write(data)
	}))
	defer server.Close()

	player, err := NewPlayer(config.PlaybackConfig{Mode: "media", Autoplay: true, PositionIntervalMS: 250})
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	clip, err := player.Open(context.Background(), server.URL+"/audio/abc.wav")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer clip.Close()
	if clip.Duration() <= 0 {
		t.Fatalf("expected positive duration, got %v", clip.Duration())
	}
}

func TestMediaPlayerRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.wav")
	if err := os.WriteFile(path, []byte("definitely not audio"), 0o644); err != nil {
		t.Fatalf("write junk: %v", err)
	}

	player, err := NewPlayer(config.PlaybackConfig{Mode: "media", Autoplay: true, PositionIntervalMS: 250})
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if _, err := player.Open(context.Background(), path); !errors.Is(err, ErrUnsupportedResource) {
		t.Fatalf("expected ErrUnsupportedResource, got %v", err)
	}
}

func TestMediaPlayerRejectsMissingResource(t *testing.T) {
	player, err := NewPlayer(config.PlaybackConfig{Mode: "media", Autoplay: true, PositionIntervalMS: 250})
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	if _, err := player.Open(context.Background(), ""); !errors.Is(err, ErrUnsupportedResource) {
		t.Fatalf("expected ErrUnsupportedResource for empty ref, got %v", err)
	}
	if _, err := player.Open(context.Background(), filepath.Join(t.TempDir(), "nope.wav")); !errors.Is(err, ErrUnsupportedResource) {
		t.Fatalf("expected ErrUnsupportedResource for missing file, got %v", err)
	}
}

func TestMediaPlayerAutoplayPolicy(t *testing.T) {
	path := writeWav(t, 8000)

	player, err := NewPlayer(config.PlaybackConfig{Mode: "media", Autoplay: false, PositionIntervalMS: 250})
	if err != nil {
		t.Fatalf("new player: %v", err)
	}
	clip, err := player.Open(context.Background(), path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer clip.Close()

	if err := clip.Start(); !errors.Is(err, ErrAutoplayBlocked) {
		t.Fatalf("expected first start blocked, got %v", err)
	}
	if err := clip.Start(); err != nil {
		t.Fatalf("expected second start allowed, got %v", err)
	}
}
