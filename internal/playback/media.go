package playback

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"

	"github.com/geetalabs/geeta-core/internal/config"
)

const maxResourceBytes = 64 << 20

// mediaPlayer resolves http(s) and file references into WAV-probed clips.
// In exec mode an external playout command is launched per Start; in media
// mode the controller's transport clock stands in for real playout.
type mediaPlayer struct {
	cfg        config.PlaybackConfig
	playoutCmd []string
	http       *http.Client
}

// NewPlayer builds the host playback capability described by cfg.
func NewPlayer(cfg config.PlaybackConfig) (Player, error) {
	p := &mediaPlayer{cfg: cfg, http: &http.Client{Timeout: 30 * time.Second}}
	if cfg.Mode == "exec" {
		parser := shellwords.NewParser()
		args, err := parser.Parse(cfg.Command)
		if err != nil {
			return nil, fmt.Errorf("parse playback command: %w", err)
		}
		if len(args) == 0 {
			return nil, fmt.Errorf("playback command is empty")
		}
		p.playoutCmd = args
	}
	return p, nil
}

func (p *mediaPlayer) Open(ctx context.Context, ref string) (Clip, error) {
	data, err := p.fetch(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedResource, err)
	}

	decoder := wav.NewDecoder(bytes.NewReader(data))
	duration, err := decoder.Duration()
	if err != nil || duration <= 0 {
		return nil, fmt.Errorf("%w: not a decodable wav resource", ErrUnsupportedResource)
	}

	clip := &mediaClip{
		duration:      duration,
		blockAutoplay: !p.cfg.Autoplay,
	}
	if len(p.playoutCmd) > 0 {
		path, err := p.spool(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedResource, err)
		}
		clip.playoutCmd = append(append([]string{}, p.playoutCmd...), path)
		clip.spooled = path
	}
	return clip, nil
}

func (p *mediaPlayer) fetch(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, err
		}
		resp, err := p.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("resource returned status %s", resp.Status)
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxResourceBytes))
	case strings.HasPrefix(ref, "file://"):
		return os.ReadFile(strings.TrimPrefix(ref, "file://"))
	case ref == "":
		return nil, fmt.Errorf("empty resource reference")
	default:
		return os.ReadFile(ref)
	}
}

func (p *mediaPlayer) spool(data []byte) (string, error) {
	dir := p.cfg.CacheDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	f, err := os.CreateTemp(dir, "geeta_playback_*.wav")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

type mediaClip struct {
	duration      time.Duration
	blockAutoplay bool
	playoutCmd    []string
	spooled       string

	mu      sync.Mutex
	blocked bool
	proc    *exec.Cmd
}

func (c *mediaClip) Duration() time.Duration { return c.duration }

// Start refuses the first programmatic attempt when autoplay is disabled,
// mirroring browser policy: a later, user-initiated Start succeeds.
func (c *mediaClip) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.blockAutoplay && !c.blocked {
		c.blocked = true
		return ErrAutoplayBlocked
	}
	if len(c.playoutCmd) > 0 && c.proc == nil {
		cmd := exec.Command(c.playoutCmd[0], c.playoutCmd[1:]...)
		if err := cmd.Start(); err != nil {
			return fmt.Errorf("start playout command: %w", err)
		}
		c.proc = cmd
		go cmd.Wait()
	}
	return nil
}

func (c *mediaClip) Pause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopProcLocked()
	return nil
}

func (c *mediaClip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopProcLocked()
	if c.spooled != "" {
		os.Remove(c.spooled)
		c.spooled = ""
	}
	return nil
}

func (c *mediaClip) stopProcLocked() {
	if c.proc != nil && c.proc.Process != nil {
		_ = c.proc.Process.Kill()
	}
	c.proc = nil
}
