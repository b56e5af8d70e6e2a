package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Gateway.Author != "Swami Sivananda" {
		t.Fatalf("expected default author, got %q", cfg.Gateway.Author)
	}
	if cfg.Playback.PositionIntervalMS != 250 {
		t.Fatalf("expected default position interval, got %d", cfg.Playback.PositionIntervalMS)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "geeta.yaml")
	body := `
gateway:
  endpoint: http://gateway:9000
  author: Swami Chinmayananda
  output_language: hindi
capture:
  mode: exec
  capture_command: "ffmpeg -f pulse -i default"
  transcribe_command: "whisper-cli"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.Endpoint != "http://gateway:9000" {
		t.Fatalf("expected endpoint override, got %q", cfg.Gateway.Endpoint)
	}
	if cfg.Gateway.OutputLanguage != "hindi" {
		t.Fatalf("expected hindi, got %q", cfg.Gateway.OutputLanguage)
	}
	if cfg.Capture.Mode != "exec" {
		t.Fatalf("expected exec capture mode, got %q", cfg.Capture.Mode)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("GEETA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("GEETA_BUS_USERNAME", "alice")
	t.Setenv("GEETA_BUS_PASSWORD", "secret")
	t.Setenv("GEETA_BUS_TLS_INSECURE", "true")
	t.Setenv("GEETA_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("GEETA_STORE_PATH", "./tmp.db")
	t.Setenv("GEETA_GATEWAY_ENDPOINT", "http://inference:8000")
	t.Setenv("GEETA_GATEWAY_AUTHOR", "Swami Ramsukhdas")
	t.Setenv("GEETA_GATEWAY_OUTPUT_LANGUAGE", "sanskrit")
	t.Setenv("GEETA_PLAYBACK_AUTOPLAY", "false")
	t.Setenv("GEETA_VOICE_DEFAULT_IDENTITY", "seeker@example.com")

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
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.Store.Path != "./tmp.db" {
		t.Fatalf("expected store path override")
	}
	if cfg.Gateway.Endpoint != "http://inference:8000" {
		t.Fatalf("expected gateway endpoint override")
	}
	if cfg.Gateway.Author != "Swami Ramsukhdas" {
		t.Fatalf("expected gateway author override")
	}
	if cfg.Gateway.OutputLanguage != "sanskrit" {
		t.Fatalf("expected output language override")
	}
	if cfg.Playback.Autoplay {
		t.Fatalf("expected autoplay override false")
	}
	if cfg.Voice.DefaultIdentity != "seeker@example.com" {
		t.Fatalf("expected identity override")
	}
}

func TestValidateRejectsUnknownAuthor(t *testing.T) {
	t.Setenv("GEETA_GATEWAY_AUTHOR", "Somebody Else")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown author")
	}
}

func TestValidateRejectsBadLanguage(t *testing.T) {
	t.Setenv("GEETA_GATEWAY_OUTPUT_LANGUAGE", "latin")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for unknown language")
	}
}

func TestValidateExecCaptureNeedsCommands(t *testing.T) {
	t.Setenv("GEETA_CAPTURE_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for missing capture commands")
	}
}
