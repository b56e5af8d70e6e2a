package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geetalabs/geeta-core/internal/config"
)

func TestAskSuccess(t *testing.T) {
	var received askRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ask" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(askResponse{
			Answer: "Dharma is the eternal law.",
			Sources: []askSource{{
				ShlokaID:       "BG 2.31",
				ShlokaSanskrit: "svadharmam api cavekshya",
				Commentary:     "Duty must be considered.",
				Author:         "Swami Sivananda",
			}},
			AudioURL: "http://audio/abc.mp3",
		})
	}))
	defer server.Close()

	client := NewHTTPClient(config.GatewayConfig{Endpoint: server.URL, TimeoutMS: 2000})
	answer, err := client.Ask(context.Background(), Query{
		Text:           "What is dharma?",
		Author:         "Swami Sivananda",
		OutputLanguage: "english",
		GenerateAudio:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Text != "Dharma is the eternal law." {
		t.Fatalf("unexpected answer: %q", answer.Text)
	}
	if len(answer.Sources) != 1 || answer.Sources[0].ReferenceID != "BG 2.31" {
		t.Fatalf("sources not mapped: %+v", answer.Sources)
	}
	if answer.AudioURL != "http://audio/abc.mp3" {
		t.Fatalf("audio url not mapped: %q", answer.AudioURL)
	}
	if !received.GenerateAudio || received.Author != "Swami Sivananda" {
		t.Fatalf("request fields not forwarded: %+v", received)
	}
}

func TestAskNonSuccessStatusIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(config.GatewayConfig{Endpoint: server.URL, TimeoutMS: 2000})
	_, err := client.Ask(context.Background(), Query{Text: "hello"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestAskNetworkFailureIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close() // connection refused from here on

	client := NewHTTPClient(config.GatewayConfig{Endpoint: server.URL, TimeoutMS: 500})
	_, err := client.Ask(context.Background(), Query{Text: "hello"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestAskMalformedBodyIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	client := NewHTTPClient(config.GatewayConfig{Endpoint: server.URL, TimeoutMS: 2000})
	_, err := client.Ask(context.Background(), Query{Text: "hello"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
