package voice

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/geetalabs/geeta-core/internal/bus"
	"github.com/geetalabs/geeta-core/internal/capture"
	"github.com/geetalabs/geeta-core/internal/config"
	"github.com/geetalabs/geeta-core/internal/conversation"
	"github.com/geetalabs/geeta-core/internal/playback"
	"github.com/geetalabs/geeta-core/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service exposes the voice session and the text chat path on the bus.
// Front-ends publish gestures on voice.control.>; the service guarantees
// at most one live session at a time and broadcasts its output.
type Service struct {
	cfg        config.Config
	bus        *bus.Client
	conv       *conversation.Service
	recognizer capture.Recognizer
	player     playback.Player
	logger     *slog.Logger

	subControl *nats.Subscription
	subChat    *nats.Subscription
	subConv    *nats.Subscription
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	session *Session
}

func NewService(parent context.Context, cfg config.Config, busClient *bus.Client, conv *conversation.Service, recognizer capture.Recognizer, player playback.Player, logger *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:        cfg,
		bus:        busClient,
		conv:       conv,
		recognizer: recognizer,
		player:     player,
		logger:     logger.With(slog.String("component", "voice-service")),
		ctx:        ctx,
		cancel:     cancel,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Voice.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectVoiceControlWildcard, s.handleControl)
	if err != nil {
		return err
	}
	s.subControl = sub

	subChat, err := s.bus.Conn().Subscribe(protocol.SubjectChatAsk, s.handleChat)
	if err != nil {
		s.subControl.Drain()
		return err
	}
	s.subChat = subChat

	subConv, err := s.bus.Conn().Subscribe(protocol.SubjectConversationWildcard, s.handleConversation)
	if err != nil {
		s.subControl.Drain()
		s.subChat.Drain()
		return err
	}
	s.subConv = subConv
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.subControl != nil {
		_ = s.subControl.Drain()
	}
	if s.subChat != nil {
		_ = s.subChat.Drain()
	}
	if s.subConv != nil {
		_ = s.subConv.Drain()
	}

	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()
	if session != nil {
		session.Close()
	}
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Voice.Enabled || s.subControl != nil
}

func (s *Service) handleControl(msg *nats.Msg) {
	switch msg.Subject {
	case protocol.SubjectVoiceOpen:
		s.openSession()
	case protocol.SubjectVoiceClose:
		s.closeSession()
	case protocol.SubjectVoiceMic:
		if session := s.current(); session != nil {
			if err := session.TapMic(s.ctx); err != nil {
				s.logger.Warn("mic gesture rejected", slogError(err))
			}
		}
	case protocol.SubjectVoiceConfirm:
		if session := s.current(); session != nil {
			if err := session.Confirm(s.ctx); err != nil {
				s.logger.Warn("confirm gesture rejected", slogError(err))
			}
		}
	case protocol.SubjectVoiceReject:
		if session := s.current(); session != nil {
			if err := session.Reject(); err != nil {
				s.logger.Warn("reject gesture rejected", slogError(err))
			}
		}
	case protocol.SubjectVoicePlay:
		if session := s.current(); session != nil {
			if err := session.Play(); err != nil {
				s.logger.Warn("play failed", slogError(err))
			}
		}
	case protocol.SubjectVoicePause:
		if session := s.current(); session != nil {
			if err := session.Pause(); err != nil {
				s.logger.Warn("pause failed", slogError(err))
			}
		}
	case protocol.SubjectVoiceSeek:
		if session := s.current(); session != nil {
			if cmd, ok := decodeSeek(msg.Data, s.logger); ok {
				session.Seek(time.Duration(cmd.Seconds * float64(time.Second)))
			}
		}
	case protocol.SubjectVoiceSkip:
		if session := s.current(); session != nil {
			if cmd, ok := decodeSeek(msg.Data, s.logger); ok {
				session.Skip(time.Duration(cmd.Seconds * float64(time.Second)))
			}
		}
	default:
		s.logger.Warn("unknown voice control subject", slog.String("subject", msg.Subject))
	}
}

func decodeSeek(data []byte, logger *slog.Logger) (protocol.SeekCommand, bool) {
	var cmd protocol.SeekCommand
	if err := json.Unmarshal(data, &cmd); err != nil {
		logger.Warn("failed to decode seek command", slogError(err))
		return cmd, false
	}
	return cmd, true
}

// openSession creates the session if none is live. A second open is a
// no-op so a reconnecting front-end cannot tear down an active flow.
func (s *Service) openSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.logger.Debug("voice session already open")
		return
	}
	s.session = NewSession(s.recognizer, s.player, s.cfg.Playback, s.conv, s.cfg.Voice.DefaultIdentity, &busEvents{svc: s}, s.logger)
	s.publishState(StateIdle)
	s.logger.Info("voice session opened")
}

func (s *Service) closeSession() {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()
	if session == nil {
		return
	}
	session.Close()
	s.logger.Info("voice session closed")
}

func (s *Service) current() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		s.logger.Warn("gesture without an open voice session")
	}
	return s.session
}

func (s *Service) handleChat(msg *nats.Msg) {
	var req protocol.ChatRequest
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		s.logger.Warn("failed to decode chat request", slogError(err))
		return
	}
	if req.Text == "" {
		return
	}
	identity := req.Identity
	if identity == "" {
		identity = s.cfg.Voice.DefaultIdentity
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		answer, err := s.conv.Ask(s.ctx, identity, req.Text, req.Audio)
		reply := protocol.ChatAnswer{
			MessageID: answer.ID,
			Text:      answer.Content,
			AudioURL:  answer.AudioURL,
		}
		for _, src := range answer.Sources {
			reply.Sources = append(reply.Sources, protocol.ChatSource{
				ReferenceID: src.ReferenceID,
				Sanskrit:    src.SanskritText,
				Commentary:  src.Commentary,
				Author:      src.AuthorLabel,
			})
		}
		if err != nil {
			reply.Error = err.Error()
		}
		s.respond(msg, reply)
	}()
}

func (s *Service) handleConversation(msg *nats.Msg) {
	switch msg.Subject {
	case protocol.SubjectConversationList:
		s.respond(msg, s.listReply())
	case protocol.SubjectConversationCreate:
		conv, err := s.conv.Create(s.ctx)
		if err != nil {
			s.respond(msg, protocol.Ack{Error: err.Error()})
			return
		}
		s.respond(msg, protocol.Ack{OK: true, ID: conv.ID})
	case protocol.SubjectConversationSwitch:
		s.respondAck(msg, func(ref protocol.ConversationRef) error {
			return s.conv.Switch(s.ctx, ref.ID)
		})
	case protocol.SubjectConversationRename:
		s.respondAck(msg, func(ref protocol.ConversationRef) error {
			return s.conv.Rename(s.ctx, ref.ID, ref.Title)
		})
	case protocol.SubjectConversationDelete:
		s.respondAck(msg, func(ref protocol.ConversationRef) error {
			return s.conv.Delete(s.ctx, ref.ID)
		})
	default:
		s.logger.Warn("unknown conversation subject", slog.String("subject", msg.Subject))
	}
}

func (s *Service) listReply() protocol.ConversationListReply {
	var reply protocol.ConversationListReply
	conversations, err := s.conv.List(s.ctx)
	if err != nil {
		reply.Error = err.Error()
		return reply
	}
	reply.Conversations = make([]protocol.ConversationSummary, 0, len(conversations))
	for _, c := range conversations {
		reply.Conversations = append(reply.Conversations, protocol.ConversationSummary{
			ID:        c.ID,
			Title:     c.Title,
			Messages:  len(c.Messages),
			CreatedAt: c.CreatedAt,
			UpdatedAt: c.UpdatedAt,
		})
	}
	if id, err := s.conv.ActiveID(s.ctx); err == nil {
		reply.ActiveID = id
	}
	return reply
}

func (s *Service) respondAck(msg *nats.Msg, apply func(protocol.ConversationRef) error) {
	var ref protocol.ConversationRef
	if err := json.Unmarshal(msg.Data, &ref); err != nil {
		s.respond(msg, protocol.Ack{Error: "malformed request"})
		return
	}
	if err := apply(ref); err != nil {
		s.respond(msg, protocol.Ack{ID: ref.ID, Error: err.Error()})
		return
	}
	s.respond(msg, protocol.Ack{OK: true, ID: ref.ID})
}

func (s *Service) respond(msg *nats.Msg, payload any) {
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to encode reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to send reply", slogError(err))
	}
}

func (s *Service) publish(subject string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to encode notice", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.logger.Warn("failed to publish notice", slog.String("subject", subject), slogError(err))
	}
}

func (s *Service) publishState(state State) {
	s.publish(protocol.SubjectVoiceState, protocol.StateNotice{
		State:     string(state),
		Timestamp: time.Now().UTC(),
	})
}

// busEvents bridges session output onto the bus.
type busEvents struct {
	svc *Service
}

func (e *busEvents) StateChanged(state State) {
	e.svc.publishState(state)
}

func (e *busEvents) TranscriptReady(transcript string) {
	e.svc.publish(protocol.SubjectVoiceTranscript, protocol.TranscriptNotice{
		Text:      transcript,
		Timestamp: time.Now().UTC(),
	})
}

func (e *busEvents) Notice(level, text string) {
	e.svc.publish(protocol.SubjectVoiceNotice, protocol.Notice{
		Level:     level,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

func (e *busEvents) PositionChanged(position, duration time.Duration) {
	e.svc.publish(protocol.SubjectVoicePlaybackPosition, protocol.PlaybackPosition{
		PositionMS: position.Milliseconds(),
		DurationMS: duration.Milliseconds(),
	})
}

func (e *busEvents) Ended() {
	e.svc.publish(protocol.SubjectVoicePlaybackEnded, struct{}{})
}
