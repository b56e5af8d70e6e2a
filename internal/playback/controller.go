package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geetalabs/geeta-core/internal/config"
)

// Controller owns at most one clip at a time and drives its transport
// clock. Loading a new resource implicitly stops and releases the previous
// one; the ended signal fires exactly once per load.
type Controller struct {
	player   Player
	events   Events
	interval time.Duration
	log      *slog.Logger

	mu        sync.Mutex
	gen       int
	clip      Clip
	duration  time.Duration
	position  time.Duration
	playing   bool
	endedSent bool
}

func NewController(player Player, events Events, cfg config.PlaybackConfig, log *slog.Logger) *Controller {
	if events == nil {
		events = NopEvents{}
	}
	return &Controller{
		player:   player,
		events:   events,
		interval: time.Duration(cfg.PositionIntervalMS) * time.Millisecond,
		log:      log.With(slog.String("component", "playback")),
	}
}

// Load binds a new resource, releasing any previous clip first. Position
// resets to zero; the clip starts paused.
func (c *Controller) Load(ctx context.Context, ref string) error {
	clip, err := c.player.Open(ctx, ref)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.clip != nil {
		old := c.clip
		_ = old.Pause()
		_ = old.Close()
	}
	c.gen++
	gen := c.gen
	c.clip = clip
	c.duration = clip.Duration()
	c.position = 0
	c.playing = false
	c.endedSent = false
	c.mu.Unlock()

	go c.run(gen)
	return nil
}

// Generation identifies the current load; events from earlier generations
// must be discarded by consumers.
func (c *Controller) Generation() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// Play starts or resumes playback. ErrAutoplayBlocked leaves the clip
// loaded and paused; it is not a failure of the load.
func (c *Controller) Play() error {
	c.mu.Lock()
	clip := c.clip
	ended := c.endedSent
	c.mu.Unlock()
	if clip == nil {
		return ErrNoResource
	}
	if ended {
		return nil
	}
	if err := clip.Start(); err != nil {
		return err
	}
	c.mu.Lock()
	c.playing = true
	c.mu.Unlock()
	return nil
}

// Pause halts playback without releasing the clip.
func (c *Controller) Pause() error {
	c.mu.Lock()
	clip := c.clip
	c.playing = false
	c.mu.Unlock()
	if clip == nil {
		return ErrNoResource
	}
	return clip.Pause()
}

// Playing reports whether the transport clock is advancing.
func (c *Controller) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// Position returns the current transport position.
func (c *Controller) Position() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

// Duration returns the bound clip's duration, zero when unknown.
func (c *Controller) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

// Seek moves the transport position, clamped into [0, duration]. A no-op
// while the duration is unknown.
func (c *Controller) Seek(target time.Duration) {
	c.mu.Lock()
	if c.clip == nil || c.duration <= 0 {
		c.mu.Unlock()
		return
	}
	c.position = clamp(target, c.duration)
	gen, pos, dur := c.gen, c.position, c.duration
	c.mu.Unlock()
	c.events.PositionChanged(gen, pos, dur)
}

// Skip moves the position relative to the current one, clamped.
func (c *Controller) Skip(delta time.Duration) {
	c.mu.Lock()
	if c.clip == nil || c.duration <= 0 {
		c.mu.Unlock()
		return
	}
	c.position = clamp(c.position+delta, c.duration)
	gen, pos, dur := c.gen, c.position, c.duration
	c.mu.Unlock()
	c.events.PositionChanged(gen, pos, dur)
}

// Unload stops and releases the current clip. Safe to call with nothing
// loaded.
func (c *Controller) Unload() {
	c.mu.Lock()
	clip := c.clip
	c.gen++
	c.clip = nil
	c.duration = 0
	c.position = 0
	c.playing = false
	c.endedSent = false
	c.mu.Unlock()
	if clip != nil {
		_ = clip.Pause()
		_ = clip.Close()
	}
}

// run is the transport clock for one load generation. It exits as soon as
// the generation is superseded.
func (c *Controller) run(gen int) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for range ticker.C {
		if !c.tick(gen) {
			return
		}
	}
}

func (c *Controller) tick(gen int) bool {
	c.mu.Lock()
	if gen != c.gen || c.clip == nil {
		c.mu.Unlock()
		return false
	}
	if !c.playing {
		c.mu.Unlock()
		return true
	}

	c.position += c.interval
	if c.duration > 0 && c.position >= c.duration {
		c.position = c.duration
		c.playing = false
		ended := !c.endedSent
		c.endedSent = true
		clip := c.clip
		pos, dur := c.position, c.duration
		c.mu.Unlock()

		_ = clip.Pause()
		c.events.PositionChanged(gen, pos, dur)
		if ended {
			c.events.Ended(gen)
		}
		return true
	}

	pos, dur := c.position, c.duration
	c.mu.Unlock()
	c.events.PositionChanged(gen, pos, dur)
	return true
}

func clamp(v, max time.Duration) time.Duration {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}
