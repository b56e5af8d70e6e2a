// Package voice hosts the conversation orchestrator: the session state
// machine that couples speech capture, the inference gateway and audio
// playback, and the bus service that exposes it to front-ends.
package voice

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/geetalabs/geeta-core/internal/capture"
	"github.com/geetalabs/geeta-core/internal/config"
	"github.com/geetalabs/geeta-core/internal/conversation"
	"github.com/geetalabs/geeta-core/internal/playback"
)

// State is the session's position in the voice flow. Transitions are
// serialized under the session mutex; async completions carry a generation
// tag and are discarded when stale.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateConfirming State = "confirming"
	StateThinking   State = "thinking"
	StateSpeaking   State = "speaking"
)

var (
	// ErrSessionClosed is returned for gestures on a closed session.
	ErrSessionClosed = errors.New("voice session closed")
	// ErrBadGesture is returned when a gesture has no transition from the
	// current state, e.g. confirming while nothing is pending.
	ErrBadGesture = errors.New("gesture not valid in current state")
)

// Notice levels surfaced to front-ends.
const (
	NoticeInfo  = "info"
	NoticeError = "error"
)

// Events receives session output. Implementations must not call back into
// the session from within an event method.
type Events interface {
	StateChanged(state State)
	TranscriptReady(transcript string)
	Notice(level, text string)
	PositionChanged(position, duration time.Duration)
	Ended()
}

// NopEvents discards all events.
type NopEvents struct{}

func (NopEvents) StateChanged(State)                          {}
func (NopEvents) TranscriptReady(string)                      {}
func (NopEvents) Notice(string, string)                       {}
func (NopEvents) PositionChanged(time.Duration, time.Duration) {}
func (NopEvents) Ended()                                       {}

// Session is one voice conversation flow for one identity. At most one
// session exists per runtime; it is destroyed, not reset, by Close.
type Session struct {
	recognizer capture.Recognizer
	conv       *conversation.Service
	playback   *playback.Controller
	events     Events
	identity   string
	log        *slog.Logger

	mu         sync.Mutex
	state      State
	closed     bool
	pending    string
	captureGen int
	capturing  capture.Session
	askGen     int
	playGen    int
}

// NewSession wires a session around the given capabilities. The session
// owns its playback controller and acts as its event sink so stale
// playback signals can be filtered by generation.
func NewSession(recognizer capture.Recognizer, player playback.Player, playCfg config.PlaybackConfig, conv *conversation.Service, identity string, events Events, log *slog.Logger) *Session {
	if events == nil {
		events = NopEvents{}
	}
	s := &Session{
		recognizer: recognizer,
		conv:       conv,
		events:     events,
		identity:   identity,
		state:      StateIdle,
		log:        log.With(slog.String("component", "voice"), slog.String("identity", identity)),
	}
	s.playback = playback.NewController(player, (*playbackSink)(s), playCfg, log)
	return s
}

// State reports the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TapMic toggles the microphone: Idle starts a capture and enters
// Listening; Listening stops it and returns to Idle with the partial
// utterance discarded. Any other state rejects the gesture.
func (s *Session) TapMic(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}

	switch s.state {
	case StateListening:
		active := s.capturing
		s.capturing = nil
		s.captureGen++
		s.state = StateIdle
		s.mu.Unlock()
		if active != nil {
			active.Stop()
		}
		s.events.StateChanged(StateIdle)
		return nil

	case StateIdle:
		s.captureGen++
		gen := s.captureGen
		sess, err := s.recognizer.Start(ctx)
		if err != nil {
			s.mu.Unlock()
			s.events.Notice(NoticeError, startFailureText(err))
			return err
		}
		s.capturing = sess
		s.state = StateListening
		s.mu.Unlock()
		go s.awaitTranscript(gen, sess)
		s.events.StateChanged(StateListening)
		return nil

	default:
		s.mu.Unlock()
		return capture.ErrAlreadyActive
	}
}

// awaitTranscript blocks on the capture result and drives the
// Listening → Confirming / Idle edge. Results from a superseded capture
// generation are discarded.
func (s *Session) awaitTranscript(gen int, sess capture.Session) {
	res, ok := <-sess.Result()

	s.mu.Lock()
	if s.closed || gen != s.captureGen || s.state != StateListening {
		s.mu.Unlock()
		return
	}
	s.capturing = nil

	if !ok {
		// Stopped without a result; the stopping path already transitioned.
		s.state = StateIdle
		s.mu.Unlock()
		s.events.StateChanged(StateIdle)
		return
	}
	if res.Err != nil {
		s.state = StateIdle
		s.mu.Unlock()
		s.events.StateChanged(StateIdle)
		// No speech is an invitation to tap again, not an error.
		if !errors.Is(res.Err, capture.ErrNoSpeech) {
			s.events.Notice(NoticeError, captureFailureText(res.Err))
		}
		return
	}
	if res.Transcript == "" {
		s.state = StateIdle
		s.mu.Unlock()
		s.events.StateChanged(StateIdle)
		return
	}

	s.pending = res.Transcript
	s.state = StateConfirming
	s.mu.Unlock()
	s.events.StateChanged(StateConfirming)
	s.events.TranscriptReady(res.Transcript)
}

// Confirm accepts the pending transcript and enters Thinking. Any prior
// audio handle is released before the gateway call goes out.
func (s *Session) Confirm(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state != StateConfirming {
		s.mu.Unlock()
		return ErrBadGesture
	}
	transcript := s.pending
	s.pending = ""
	s.askGen++
	gen := s.askGen
	s.state = StateThinking
	s.mu.Unlock()

	s.playback.Unload()
	s.events.StateChanged(StateThinking)
	go s.completeAsk(ctx, gen, transcript)
	return nil
}

// Reject discards the pending transcript and returns to Idle.
func (s *Session) Reject() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.state != StateConfirming {
		s.mu.Unlock()
		return ErrBadGesture
	}
	s.pending = ""
	s.state = StateIdle
	s.mu.Unlock()
	s.events.StateChanged(StateIdle)
	return nil
}

// completeAsk carries the gateway round-trip. The call is allowed to
// finish even if the session closes meanwhile; only its result is
// discarded then.
func (s *Session) completeAsk(ctx context.Context, gen int, transcript string) {
	msg, err := s.conv.Ask(ctx, s.identity, transcript, true)

	s.mu.Lock()
	if s.closed || gen != s.askGen || s.state != StateThinking {
		s.mu.Unlock()
		return
	}

	if err != nil {
		s.state = StateIdle
		s.mu.Unlock()
		s.events.StateChanged(StateIdle)
		s.events.Notice(NoticeError, "the answer service could not be reached; please try again")
		return
	}
	if msg.AudioURL == "" {
		s.state = StateIdle
		s.mu.Unlock()
		s.events.StateChanged(StateIdle)
		s.events.Notice(NoticeInfo, "no spoken audio was produced for this answer")
		return
	}

	if loadErr := s.playback.Load(ctx, msg.AudioURL); loadErr != nil {
		s.log.Warn("failed to load answer audio", slogError(loadErr))
		s.state = StateIdle
		s.mu.Unlock()
		s.events.StateChanged(StateIdle)
		s.events.Notice(NoticeError, "the answer audio could not be played")
		return
	}
	s.playGen = s.playback.Generation()
	s.state = StateSpeaking
	s.mu.Unlock()
	s.events.StateChanged(StateSpeaking)

	if playErr := s.playback.Play(); playErr != nil {
		if errors.Is(playErr, playback.ErrAutoplayBlocked) {
			s.events.Notice(NoticeInfo, "autoplay is blocked; tap play to hear the answer")
		} else {
			s.log.Warn("autoplay attempt failed", slogError(playErr))
		}
	}
}

// Play resumes playback of the current answer; surfaces autoplay blocks
// on the very first programmatic start only, so a user-driven Play
// succeeds.
func (s *Session) Play() error {
	return s.playback.Play()
}

// Pause halts playback without releasing the clip.
func (s *Session) Pause() error {
	return s.playback.Pause()
}

// Seek jumps to an absolute position.
func (s *Session) Seek(target time.Duration) {
	s.playback.Seek(target)
}

// Skip moves the position by a signed delta.
func (s *Session) Skip(delta time.Duration) {
	s.playback.Skip(delta)
}

// Close destroys the session: capture stopped, playback released,
// in-flight gateway results discarded on arrival. Idempotent, and the
// resources are gone when it returns.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	active := s.capturing
	s.capturing = nil
	s.captureGen++
	s.askGen++
	s.pending = ""
	s.state = StateIdle
	s.mu.Unlock()

	if active != nil {
		active.Stop()
	}
	s.playback.Unload()
}

// playbackSink adapts the session into the playback controller's event
// sink, filtering signals from superseded clip generations.
type playbackSink Session

func (p *playbackSink) PositionChanged(gen int, position, duration time.Duration) {
	s := (*Session)(p)
	s.mu.Lock()
	live := !s.closed && gen == s.playGen && s.state == StateSpeaking
	s.mu.Unlock()
	if live {
		s.events.PositionChanged(position, duration)
	}
}

func (p *playbackSink) Ended(gen int) {
	s := (*Session)(p)
	s.mu.Lock()
	if s.closed || gen != s.playGen || s.state != StateSpeaking {
		s.mu.Unlock()
		return
	}
	s.state = StateIdle
	s.mu.Unlock()
	s.events.Ended()
	s.events.StateChanged(StateIdle)
}

func startFailureText(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "microphone access was denied"
	case errors.Is(err, capture.ErrUnsupportedPlatform):
		return "speech capture is not available on this device"
	case errors.Is(err, capture.ErrAlreadyActive):
		return "a capture is already in progress"
	default:
		return "could not start listening"
	}
}

func captureFailureText(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "microphone access was denied"
	case errors.Is(err, capture.ErrCaptureFailed):
		return "speech capture failed"
	default:
		return "could not understand the recording"
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
