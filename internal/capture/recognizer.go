// Package capture wraps one microphone-capture-to-text attempt. Capture is
// single-shot: one utterance yields exactly one transcript or one error,
// never a stream of partials.
package capture

import (
	"context"
	"errors"
)

var (
	// ErrUnsupportedPlatform means no recognition capability is configured.
	ErrUnsupportedPlatform = errors.New("speech capture not supported on this platform")
	// ErrPermissionDenied means microphone access was refused.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrAlreadyActive means a capture attempt is already running.
	ErrAlreadyActive = errors.New("capture already active")
	// ErrNoSpeech means the utterance produced no recognizable text.
	ErrNoSpeech = errors.New("no speech detected")
	// ErrCaptureFailed wraps device or recognizer failures.
	ErrCaptureFailed = errors.New("speech capture failed")
)

// Result is the single outcome of a capture session: a non-empty
// transcript, or an error from the taxonomy above.
type Result struct {
	Transcript string
	Confidence float64
	Err        error
}

// Session is one in-flight capture attempt. The Result channel delivers at
// most one value and is then closed; a stopped session closes the channel
// without delivering anything.
type Session interface {
	Result() <-chan Result
	// Stop cancels an in-progress capture. Idempotent.
	Stop()
}

// Recognizer starts capture sessions against a host recognition capability.
type Recognizer interface {
	Start(ctx context.Context) (Session, error)
}
