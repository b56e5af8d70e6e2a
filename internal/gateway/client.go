// Package gateway holds the client for the remote inference backend. The
// backend answers a text query in the voice of a chosen commentary author,
// returning shloka citations and, on request, a synthesized audio resource.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/geetalabs/geeta-core/internal/config"
	"github.com/geetalabs/geeta-core/internal/store"
)

// ErrUnavailable wraps every transport or remote failure. Callers match it
// with errors.Is and turn it into a local outcome instead of letting a raw
// network error escape.
var ErrUnavailable = errors.New("inference gateway unavailable")

// Query is one request to the backend.
type Query struct {
	Text           string
	Author         string
	OutputLanguage string
	GenerateAudio  bool
}

// Answer is the backend's reply. AudioURL is set only when audio was
// requested and synthesis succeeded.
type Answer struct {
	Text     string
	Sources  []store.SourceDocument
	AudioURL string
}

// Client exchanges a query for an answer.
type Client interface {
	Ask(ctx context.Context, q Query) (Answer, error)
}

type httpClient struct {
	endpoint string
	timeout  time.Duration
	http     *http.Client
}

// NewHTTPClient builds a client for the /ask endpoint described by cfg.
func NewHTTPClient(cfg config.GatewayConfig) Client {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	return &httpClient{
		endpoint: cfg.Endpoint,
		timeout:  timeout,
		http:     &http.Client{Timeout: timeout},
	}
}

type askRequest struct {
	Query          string `json:"query"`
	Author         string `json:"author"`
	OutputLanguage string `json:"output_language"`
	GenerateAudio  bool   `json:"generate_audio"`
}

type askSource struct {
	ShlokaID       string `json:"shloka_id"`
	ShlokaSanskrit string `json:"shloka_sanskrit"`
	Commentary     string `json:"commentary"`
	Author         string `json:"author"`
}

type askResponse struct {
	Answer   string      `json:"answer"`
	Sources  []askSource `json:"sources"`
	AudioURL string      `json:"audio_url"`
}

func (c *httpClient) Ask(ctx context.Context, q Query) (Answer, error) {
	payload := askRequest{
		Query:          q.Text,
		Author:         q.Author,
		OutputLanguage: q.OutputLanguage,
		GenerateAudio:  q.GenerateAudio,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: encode request: %v", ErrUnavailable, err)
	}

	reqCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.endpoint+"/ask", bytes.NewReader(body))
	if err != nil {
		return Answer{}, fmt.Errorf("%w: build request: %v", ErrUnavailable, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return Answer{}, fmt.Errorf("%w: gateway returned status %s", ErrUnavailable, resp.Status)
	}

	var decoded askResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return Answer{}, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	answer := Answer{Text: decoded.Answer, AudioURL: decoded.AudioURL}
	for _, src := range decoded.Sources {
		answer.Sources = append(answer.Sources, store.SourceDocument{
			ReferenceID:  src.ShlokaID,
			SanskritText: src.ShlokaSanskrit,
			Commentary:   src.Commentary,
			AuthorLabel:  src.Author,
		})
	}
	return answer, nil
}
