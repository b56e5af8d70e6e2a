package playback

import (
	"context"
	"sync"
	"time"
)

// MockPlayer resolves every reference into a clip with a fixed duration.
// Configurable failures and autoplay blocking make it the playback fake
// for state machine tests.
type MockPlayer struct {
	mu            sync.Mutex
	ClipDuration  time.Duration
	OpenErr       error
	BlockAutoplay bool
	opened        []string
	clips         []*MockClip
}

func (p *MockPlayer) Open(_ context.Context, ref string) (Clip, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	dur := p.ClipDuration
	if dur == 0 {
		dur = time.Second
	}
	clip := &MockClip{duration: dur, blockAutoplay: p.BlockAutoplay}
	p.opened = append(p.opened, ref)
	p.clips = append(p.clips, clip)
	return clip, nil
}

// Opened returns the references resolved so far.
func (p *MockPlayer) Opened() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.opened...)
}

// Clips returns every clip handed out.
func (p *MockPlayer) Clips() []*MockClip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*MockClip{}, p.clips...)
}

type MockClip struct {
	mu            sync.Mutex
	duration      time.Duration
	blockAutoplay bool
	blocked       bool
	starts        int
	pauses        int
	closed        bool
}

func (c *MockClip) Duration() time.Duration { return c.duration }

func (c *MockClip) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.blockAutoplay && !c.blocked {
		c.blocked = true
		return ErrAutoplayBlocked
	}
	c.starts++
	return nil
}

func (c *MockClip) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pauses++
	return nil
}

func (c *MockClip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *MockClip) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *MockClip) Starts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.starts
}
