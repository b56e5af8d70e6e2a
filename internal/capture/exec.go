package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mattn/go-shellwords"

	"github.com/geetalabs/geeta-core/internal/config"
)

// execRecognizer captures PCM with an external command (ffmpeg, arecord)
// and hands the buffered utterance to a transcriber command that prints
// {"text": ..., "confidence": ...} JSON.
type execRecognizer struct {
	captureCmd    []string
	transcribeCmd []string
	cfg           config.CaptureConfig
	log           *slog.Logger
	active        atomic.Bool
}

// NewExecRecognizer parses the configured commands and returns a
// recognizer backed by them.
func NewExecRecognizer(cfg config.CaptureConfig, log *slog.Logger) (Recognizer, error) {
	parser := shellwords.NewParser()
	captureCmd, err := parser.Parse(cfg.CaptureCommand)
	if err != nil {
		return nil, fmt.Errorf("parse capture command: %w", err)
	}
	transcribeCmd, err := parser.Parse(cfg.TranscribeCommand)
	if err != nil {
		return nil, fmt.Errorf("parse transcribe command: %w", err)
	}
	if len(transcribeCmd) == 0 {
		return nil, fmt.Errorf("transcribe command is empty")
	}
	return &execRecognizer{
		captureCmd:    captureCmd,
		transcribeCmd: transcribeCmd,
		cfg:           cfg,
		log:           log.With(slog.String("component", "capture")),
	}, nil
}

func (r *execRecognizer) Start(ctx context.Context) (Session, error) {
	if len(r.captureCmd) == 0 {
		return nil, ErrUnsupportedPlatform
	}
	if !r.active.CompareAndSwap(false, true) {
		return nil, ErrAlreadyActive
	}
	if r.cfg.Device != "" {
		f, err := os.OpenFile(r.cfg.Device, os.O_RDONLY, 0)
		switch {
		case err == nil:
			f.Close()
		case os.IsPermission(err):
			r.active.Store(false)
			return nil, ErrPermissionDenied
		case os.IsNotExist(err):
			r.active.Store(false)
			return nil, ErrUnsupportedPlatform
		default:
			r.active.Store(false)
			return nil, fmt.Errorf("%w: open device: %v", ErrCaptureFailed, err)
		}
	}

	sessCtx, cancel := context.WithCancel(ctx)
	sess := &execSession{
		cancel:  cancel,
		results: make(chan Result, 1),
	}
	go r.run(sessCtx, sess)
	return sess, nil
}

type execSession struct {
	cancel   context.CancelFunc
	results  chan Result
	stopOnce sync.Once
	stopped  atomic.Bool
}

func (s *execSession) Result() <-chan Result { return s.results }

func (s *execSession) Stop() {
	s.stopOnce.Do(func() {
		s.stopped.Store(true)
		s.cancel()
	})
}

func (r *execRecognizer) run(ctx context.Context, sess *execSession) {
	defer r.active.Store(false)
	defer close(sess.results)

	pcm, err := r.capturePCM(ctx)
	if sess.stopped.Load() {
		return
	}
	if err != nil {
		sess.results <- Result{Err: fmt.Errorf("%w: %v", ErrCaptureFailed, err)}
		return
	}
	if len(pcm) == 0 {
		sess.results <- Result{Err: ErrNoSpeech}
		return
	}

	text, confidence, err := r.transcribe(ctx, pcm)
	if sess.stopped.Load() {
		return
	}
	if err != nil {
		sess.results <- Result{Err: fmt.Errorf("%w: %v", ErrCaptureFailed, err)}
		return
	}
	if text == "" {
		sess.results <- Result{Err: ErrNoSpeech}
		return
	}
	sess.results <- Result{Transcript: text, Confidence: confidence}
}

// capturePCM runs the capture command and buffers its stdout until the
// utterance window elapses or the session is stopped.
func (r *execRecognizer) capturePCM(ctx context.Context) ([]byte, error) {
	window := time.Duration(r.cfg.MaxUtteranceMS) * time.Millisecond
	captureCtx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	cmd := exec.CommandContext(captureCtx, r.captureCmd[0], r.captureCmd[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start capture command: %w", err)
	}

	pcm, readErr := io.ReadAll(stdout)
	waitErr := cmd.Wait()

	if len(pcm) == 0 {
		if waitErr != nil && captureCtx.Err() == nil {
			return nil, fmt.Errorf("capture command failed: %w: %s", waitErr, stderr.String())
		}
		if readErr != nil && captureCtx.Err() == nil {
			return nil, fmt.Errorf("read capture output: %w", readErr)
		}
	}
	// Truncation by the utterance window or Stop is expected; keep what we got.
	if len(pcm)%2 != 0 {
		pcm = pcm[:len(pcm)-1]
	}
	return pcm, nil
}

type transcribeResult struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (r *execRecognizer) transcribe(ctx context.Context, pcm []byte) (string, float64, error) {
	file, err := os.CreateTemp(os.TempDir(), "geeta_capture_*.wav")
	if err != nil {
		return "", 0, fmt.Errorf("temp file: %w", err)
	}
	defer os.Remove(file.Name())
	defer file.Close()

	if err := writePCMToWav(file, pcm, r.cfg.SampleRate, r.cfg.Channels); err != nil {
		return "", 0, err
	}

	args := transcribeArgs(r.transcribeCmd, file.Name(), r.cfg)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", 0, fmt.Errorf("transcribe command failed: %w: %s", err, stderr.String())
	}

	var resp transcribeResult
	if err := json.Unmarshal(stdout.Bytes(), &resp); err != nil {
		return "", 0, fmt.Errorf("decode transcribe response: %w", err)
	}
	return resp.Text, resp.Confidence, nil
}

func transcribeArgs(base []string, wavPath string, cfg config.CaptureConfig) []string {
	args := append([]string{}, base...)
	args = append(args, "--audio", wavPath)
	if cfg.ModelPath != "" {
		args = append(args, "--model", cfg.ModelPath)
	}
	if cfg.Language != "" {
		args = append(args, "--language", cfg.Language)
	}
	return args
}

func writePCMToWav(file *os.File, pcm []byte, sampleRate int, channels int) error {
	if len(pcm)%2 != 0 {
		return fmt.Errorf("pcm payload not aligned")
	}
	buffer := &audio.IntBuffer{Format: &audio.Format{NumChannels: channels, SampleRate: sampleRate}}
	samples := make([]int, len(pcm)/2)
	for i := 0; i < len(samples); i++ {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buffer.Data = samples

	enc := wav.NewEncoder(file, sampleRate, 16, channels, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
