package playback

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/geetalabs/geeta-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type recordingEvents struct {
	mu        sync.Mutex
	positions []time.Duration
	ended     []int
	endedCh   chan int
}

func newRecordingEvents() *recordingEvents {
	return &recordingEvents{endedCh: make(chan int, 8)}
}

func (r *recordingEvents) PositionChanged(_ int, position, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, position)
}

func (r *recordingEvents) Ended(gen int) {
	r.mu.Lock()
	r.ended = append(r.ended, gen)
	r.mu.Unlock()
	r.endedCh <- gen
}

func (r *recordingEvents) endedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ended)
}

func newController(t *testing.T, player Player, events Events) *Controller {
	t.Helper()
	return NewController(player, events, config.PlaybackConfig{PositionIntervalMS: 10}, newLogger())
}

func TestPlayThroughEmitsEndedExactlyOnce(t *testing.T) {
	events := newRecordingEvents()
	player := &MockPlayer{ClipDuration: 50 * time.Millisecond}
	c := newController(t, player, events)

	if err := c.Load(context.Background(), "blob://abc"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := c.Position(); got != 0 {
		t.Fatalf("expected position reset, got %v", got)
	}
	if err := c.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}

	select {
	case gen := <-events.endedCh:
		if gen != c.Generation() {
			t.Fatalf("ended for wrong generation: %d != %d", gen, c.Generation())
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for ended signal")
	}

	if c.Playing() {
		t.Fatalf("expected paused after ended")
	}
	if c.Position() != c.Duration() {
		t.Fatalf("expected position == duration, got %v != %v", c.Position(), c.Duration())
	}

	// The clock keeps a superseded-free controller alive briefly; no second
	// ended signal may arrive.
	time.Sleep(60 * time.Millisecond)
	if events.endedCount() != 1 {
		t.Fatalf("expected exactly one ended signal, got %d", events.endedCount())
	}
}

func TestSeekAndSkipClamp(t *testing.T) {
	events := newRecordingEvents()
	player := &MockPlayer{ClipDuration: time.Second}
	c := newController(t, player, events)

	if err := c.Load(context.Background(), "blob://abc"); err != nil {
		t.Fatalf("load: %v", err)
	}

	c.Seek(5 * time.Second)
	if c.Position() != time.Second {
		t.Fatalf("seek past end must clamp to duration, got %v", c.Position())
	}
	c.Skip(-3 * time.Second)
	if c.Position() != 0 {
		t.Fatalf("skip before start must clamp to zero, got %v", c.Position())
	}
	c.Skip(300 * time.Millisecond)
	if c.Position() != 300*time.Millisecond {
		t.Fatalf("expected relative skip, got %v", c.Position())
	}
}

func TestSeekWithoutClipIsNoop(t *testing.T) {
	c := newController(t, &MockPlayer{}, newRecordingEvents())
	c.Seek(time.Second)
	c.Skip(time.Second)
	if c.Position() != 0 {
		t.Fatalf("expected zero position, got %v", c.Position())
	}
}

func TestLoadSupersedesPreviousClip(t *testing.T) {
	events := newRecordingEvents()
	player := &MockPlayer{ClipDuration: 10 * time.Second}
	c := newController(t, player, events)

	if err := c.Load(context.Background(), "blob://one"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	firstGen := c.Generation()

	if err := c.Load(context.Background(), "blob://two"); err != nil {
		t.Fatalf("second load: %v", err)
	}
	if c.Generation() != firstGen+1 {
		t.Fatalf("expected generation bump, got %d", c.Generation())
	}
	if c.Playing() {
		t.Fatalf("new load must start paused")
	}
	if c.Position() != 0 {
		t.Fatalf("new load must reset position, got %v", c.Position())
	}

	clips := player.Clips()
	if len(clips) != 2 {
		t.Fatalf("expected 2 clips, got %d", len(clips))
	}
	if !clips[0].Closed() {
		t.Fatalf("previous clip must be released on load")
	}
}

func TestAutoplayBlockedIsNonFatal(t *testing.T) {
	events := newRecordingEvents()
	player := &MockPlayer{ClipDuration: time.Second, BlockAutoplay: true}
	c := newController(t, player, events)

	if err := c.Load(context.Background(), "blob://abc"); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := c.Play(); !errors.Is(err, ErrAutoplayBlocked) {
		t.Fatalf("expected ErrAutoplayBlocked, got %v", err)
	}
	if c.Playing() {
		t.Fatalf("blocked autoplay must leave the clip paused")
	}
	// A user-initiated play succeeds.
	if err := c.Play(); err != nil {
		t.Fatalf("manual play after block: %v", err)
	}
	if !c.Playing() {
		t.Fatalf("expected playing after manual play")
	}
}

func TestUnsupportedResource(t *testing.T) {
	player := &MockPlayer{OpenErr: ErrUnsupportedResource}
	c := newController(t, player, newRecordingEvents())
	if err := c.Load(context.Background(), "blob://junk"); !errors.Is(err, ErrUnsupportedResource) {
		t.Fatalf("expected ErrUnsupportedResource, got %v", err)
	}
	if err := c.Play(); !errors.Is(err, ErrNoResource) {
		t.Fatalf("expected ErrNoResource with nothing loaded, got %v", err)
	}
}

func TestUnloadReleasesClip(t *testing.T) {
	player := &MockPlayer{ClipDuration: time.Second}
	c := newController(t, player, newRecordingEvents())

	if err := c.Load(context.Background(), "blob://abc"); err != nil {
		t.Fatalf("load: %v", err)
	}
	c.Unload()
	if err := c.Play(); !errors.Is(err, ErrNoResource) {
		t.Fatalf("expected ErrNoResource after unload, got %v", err)
	}
	if !player.Clips()[0].Closed() {
		t.Fatalf("unload must close the clip")
	}
	// Unload with nothing loaded is safe.
	c.Unload()
}
