// Package conversation implements the message-append flow shared by the
// text chat path and the voice orchestrator: user message in, gateway
// answer (or a recorded failure notice) out, history persisted best-effort.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/geetalabs/geeta-core/internal/config"
	"github.com/geetalabs/geeta-core/internal/gateway"
	"github.com/geetalabs/geeta-core/internal/store"
)

// FailureNotice is the assistant-role message recorded when the gateway
// cannot be reached, so the failure stays part of the conversation record.
const FailureNotice = "My apologies, seeker. I encountered a disturbance and could not process your request. Please try again."

// ErrNotFound is returned for operations on unknown conversation ids.
var ErrNotFound = errors.New("conversation not found")

type Service struct {
	store   *store.Store
	gateway gateway.Client
	cfg     config.GatewayConfig
	log     *slog.Logger
}

func NewService(st *store.Store, gw gateway.Client, cfg config.GatewayConfig, log *slog.Logger) *Service {
	return &Service{
		store:   st,
		gateway: gw,
		cfg:     cfg,
		log:     log.With(slog.String("component", "conversation")),
	}
}

// Ask appends the user's message, queries the gateway and appends its
// answer. On gateway failure the recorded assistant message is the
// canonical failure notice and the gateway error is returned alongside it.
// Persistence failures never block the flow.
func (s *Service) Ask(ctx context.Context, identityKey, text string, generateAudio bool) (store.Message, error) {
	history, err := s.store.LoadMessages(ctx, identityKey)
	if err != nil {
		s.log.Warn("failed to load history, continuing with empty", slogError(err))
		history = nil
	}

	userMsg := store.NewMessage(store.RoleUser, text)
	history = append(history, userMsg)

	answer, askErr := s.gateway.Ask(ctx, gateway.Query{
		Text:           text,
		Author:         s.cfg.Author,
		OutputLanguage: s.cfg.OutputLanguage,
		GenerateAudio:  generateAudio,
	})

	var assistantMsg store.Message
	if askErr != nil {
		s.log.Warn("gateway query failed", slogError(askErr))
		assistantMsg = store.NewMessage(store.RoleAssistant, FailureNotice)
	} else {
		assistantMsg = store.NewMessage(store.RoleAssistant, answer.Text)
		assistantMsg.Sources = answer.Sources
		assistantMsg.AudioURL = answer.AudioURL
	}
	history = append(history, assistantMsg)

	s.persist(ctx, identityKey, history, userMsg, assistantMsg)
	return assistantMsg, askErr
}

// persist writes the overwritten history and, when a conversation is
// active, appends the exchange to its record. Best-effort on both counts.
func (s *Service) persist(ctx context.Context, identityKey string, history []store.Message, appended ...store.Message) {
	if err := s.store.SaveMessages(ctx, identityKey, history); err != nil {
		s.log.Warn("failed to persist history", slogError(err))
	}

	activeID, err := s.store.ActiveConversationID(ctx)
	if err != nil || activeID == "" {
		return
	}
	conv, err := s.store.GetConversation(ctx, activeID)
	if err != nil || conv == nil {
		return
	}
	conv.Messages = append(conv.Messages, appended...)
	if err := s.store.SaveConversation(ctx, conv); err != nil {
		s.log.Warn("failed to persist conversation record", slogError(err))
	}
}

// History returns the stored message sequence for an identity.
func (s *Service) History(ctx context.Context, identityKey string) []store.Message {
	history, err := s.store.LoadMessages(ctx, identityKey)
	if err != nil {
		s.log.Warn("failed to load history", slogError(err))
		return nil
	}
	return history
}

// List returns all conversations newest-first.
func (s *Service) List(ctx context.Context) ([]store.Conversation, error) {
	return s.store.ListConversations(ctx)
}

// Create starts a fresh conversation and makes it active.
func (s *Service) Create(ctx context.Context) (*store.Conversation, error) {
	conv, err := s.store.CreateConversation(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetActiveConversationID(ctx, conv.ID); err != nil {
		s.log.Warn("failed to set active conversation", slogError(err))
	}
	return conv, nil
}

// Switch makes an existing conversation active.
func (s *Service) Switch(ctx context.Context, id string) error {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return s.store.SetActiveConversationID(ctx, id)
}

// Rename updates a conversation's title.
func (s *Service) Rename(ctx context.Context, id, title string) error {
	conv, err := s.store.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	if conv == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	conv.Title = title
	return s.store.SaveConversation(ctx, conv)
}

// ActiveID returns the active conversation id, empty when none is set.
func (s *Service) ActiveID(ctx context.Context) (string, error) {
	return s.store.ActiveConversationID(ctx)
}

// Delete removes a conversation record.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteConversation(ctx, id)
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
