// Package playback manages a single playable audio resource's transport
// state: load, play/pause, seek/skip, position observation and a terminal
// ended signal.
package playback

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnsupportedResource means the resource reference could not be
	// resolved or decoded.
	ErrUnsupportedResource = errors.New("unsupported audio resource")
	// ErrAutoplayBlocked means the host refused to start playback without
	// a user gesture. Non-fatal: the clip stays loaded and paused.
	ErrAutoplayBlocked = errors.New("autoplay blocked by host policy")
	// ErrNoResource means no clip is currently loaded.
	ErrNoResource = errors.New("no audio resource loaded")
)

// Clip is one resolved audio resource held by the host.
type Clip interface {
	Duration() time.Duration
	Start() error
	Pause() error
	Close() error
}

// Player is the host playback capability: it resolves a resource reference
// into a clip.
type Player interface {
	Open(ctx context.Context, ref string) (Clip, error)
}

// Events receives transport notifications. Every callback carries the load
// generation so consumers can discard signals from superseded resources.
type Events interface {
	PositionChanged(gen int, position, duration time.Duration)
	Ended(gen int)
}

// NopEvents discards all notifications.
type NopEvents struct{}

func (NopEvents) PositionChanged(int, time.Duration, time.Duration) {}
func (NopEvents) Ended(int)                                         {}
