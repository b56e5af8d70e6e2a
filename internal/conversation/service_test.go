package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/geetalabs/geeta-core/internal/config"
	"github.com/geetalabs/geeta-core/internal/gateway"
	"github.com/geetalabs/geeta-core/internal/store"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := config.StoreConfig{Path: filepath.Join(t.TempDir(), "conversations.db")}
	s, err := store.Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func gatewayCfg() config.GatewayConfig {
	return config.GatewayConfig{
		Endpoint:       "http://unused",
		Author:         "Swami Sivananda",
		OutputLanguage: "english",
		TimeoutMS:      1000,
	}
}

func TestAskAppendsExchangeInOrder(t *testing.T) {
	st := openStore(t)
	gw := gateway.NewMockClient(gateway.Answer{
		Text: "Dharma is the eternal law.",
		Sources: []store.SourceDocument{{
			ReferenceID: "BG 2.31", AuthorLabel: "Swami Sivananda",
		}},
	}, nil)
	svc := NewService(st, gw, gatewayCfg(), newLogger())

	msg, err := svc.Ask(context.Background(), "seeker", "What is dharma?", false)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if msg.Role != store.RoleAssistant || msg.Content != "Dharma is the eternal law." {
		t.Fatalf("unexpected assistant message: %+v", msg)
	}
	if len(msg.Sources) != 1 {
		t.Fatalf("expected sources attached: %+v", msg)
	}

	history := svc.History(context.Background(), "seeker")
	if len(history) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(history))
	}
	if history[0].Role != store.RoleUser || history[0].Content != "What is dharma?" {
		t.Fatalf("user message first: %+v", history[0])
	}
	if history[1].ID != msg.ID {
		t.Fatalf("assistant message second: %+v", history[1])
	}
	if history[0].ID == history[1].ID {
		t.Fatalf("message ids must be unique")
	}
}

func TestAskWithAudioCarriesAudioURL(t *testing.T) {
	st := openStore(t)
	gw := gateway.NewMockClient(gateway.Answer{
		Text:     "Listen, seeker.",
		AudioURL: "http://127.0.0.1:8000/audio/abc.mp3",
	}, nil)
	svc := NewService(st, gw, gatewayCfg(), newLogger())

	msg, err := svc.Ask(context.Background(), "seeker", "Tell me", true)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if msg.AudioURL != "http://127.0.0.1:8000/audio/abc.mp3" {
		t.Fatalf("expected audio url on assistant message, got %q", msg.AudioURL)
	}
}

func TestAskGatewayFailureRecordsNotice(t *testing.T) {
	st := openStore(t)
	gw := gateway.NewMockClient(gateway.Answer{}, gateway.ErrUnavailable)
	svc := NewService(st, gw, gatewayCfg(), newLogger())

	msg, err := svc.Ask(context.Background(), "seeker", "What is dharma?", false)
	if !errors.Is(err, gateway.ErrUnavailable) {
		t.Fatalf("expected gateway error surfaced, got %v", err)
	}
	if msg.Role != store.RoleAssistant || msg.Content != FailureNotice {
		t.Fatalf("expected recorded failure notice, got %+v", msg)
	}

	history := svc.History(context.Background(), "seeker")
	if len(history) != 2 {
		t.Fatalf("expected user + failure notice, got %d messages", len(history))
	}
	if history[1].Content != FailureNotice {
		t.Fatalf("failure must be part of the record: %+v", history[1])
	}
	if history[1].AudioURL != "" {
		t.Fatalf("failure notice must not carry audio")
	}
}

func TestAskUpdatesActiveConversationRecord(t *testing.T) {
	st := openStore(t)
	gw := gateway.NewMockClient(gateway.Answer{Text: "The self is imperishable."}, nil)
	svc := NewService(st, gw, gatewayCfg(), newLogger())

	conv, err := svc.Create(context.Background())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := svc.Ask(context.Background(), "seeker", "What endures?", false); err != nil {
		t.Fatalf("ask: %v", err)
	}

	updated, err := st.GetConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	// seed greeting + user + assistant
	if len(updated.Messages) != 3 {
		t.Fatalf("expected 3 messages on the record, got %d", len(updated.Messages))
	}
	if !updated.UpdatedAt.After(conv.CreatedAt) {
		t.Fatalf("expected updated_at to advance")
	}
}

func TestRenameAndSwitch(t *testing.T) {
	st := openStore(t)
	svc := NewService(st, gateway.NewMockClient(gateway.Answer{}, nil), gatewayCfg(), newLogger())
	ctx := context.Background()

	conv, err := svc.Create(ctx)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := svc.Rename(ctx, conv.ID, "On karma"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, err := st.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "On karma" {
		t.Fatalf("expected renamed title, got %q", got.Title)
	}

	if err := svc.Rename(ctx, "missing", "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Switch(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.Switch(ctx, conv.ID); err != nil {
		t.Fatalf("switch: %v", err)
	}
}
