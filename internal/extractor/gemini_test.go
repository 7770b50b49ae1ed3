package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// zeroDelay retries immediately so tests never sleep.
func zeroDelay() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, Delay: 0}
}

func modelResponse(text string) string {
	resp := map[string]any{
		"candidates": []map[string]any{
			{"content": map[string]any{"parts": []map[string]string{{"text": text}}}},
		},
	}
	b, _ := json.Marshal(resp)
	return string(b)
}

func newTestGemini(serverURL string) *Gemini {
	return NewGemini(GeminiConfig{
		APIKey:  "test-key",
		BaseURL: serverURL,
		Policy:  zeroDelay(),
		Logger:  testLogger(),
	})
}

func TestExtract_Success(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(modelResponse("```json\n" + sampleJSON + "\n```")))
	}))
	defer srv.Close()

	g := newTestGemini(srv.URL)
	r, err := g.Extract(context.Background(), []byte("jpeg-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if r.Merchant.Name != "Trader Joe's" || r.Details.Total != 42.17 {
		t.Fatalf("unexpected receipt: %+v", r)
	}
	if !strings.Contains(string(gotBody), "image/jpeg") {
		t.Fatal("request body should carry the image mime type")
	}
}

func TestExtract_RetryBudget(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := newTestGemini(srv.URL)
	_, err := g.Extract(context.Background(), []byte("x"), "image/jpeg")
	if err == nil {
		t.Fatal("expected terminal failure")
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected rate-limit cause, got %v", err)
	}
	// 1 initial attempt + 3 retries, never a 5th call.
	if attempts != 4 {
		t.Fatalf("expected exactly 4 attempts, got %d", attempts)
	}
}

func TestExtract_RateLimitThenSuccess(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(modelResponse(sampleJSON)))
	}))
	defer srv.Close()

	g := newTestGemini(srv.URL)
	r, err := g.Extract(context.Background(), []byte("x"), "image/jpeg")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if r.Details.Total != 42.17 {
		t.Fatalf("total: %v", r.Details.Total)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}

func TestExtract_ServerErrorIsTerminal(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	g := newTestGemini(srv.URL)
	if _, err := g.Extract(context.Background(), []byte("x"), "image/jpeg"); err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("5xx must not be retried, got %d attempts", attempts)
	}
}

func TestExtract_EmptyResponseIsTerminal(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.Write([]byte(modelResponse("")))
	}))
	defer srv.Close()

	g := newTestGemini(srv.URL)
	_, err := g.Extract(context.Background(), []byte("x"), "image/jpeg")
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("empty response must not be retried, got %d attempts", attempts)
	}
}

func TestExtract_BadJSONIsTerminal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(modelResponse("I could not read this receipt, sorry!")))
	}))
	defer srv.Close()

	g := newTestGemini(srv.URL)
	if _, err := g.Extract(context.Background(), []byte("x"), "image/jpeg"); !errors.Is(err, ErrBadJSON) {
		t.Fatalf("expected ErrBadJSON, got %v", err)
	}
}

func TestExtract_ContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := NewGemini(GeminiConfig{
		APIKey:  "k",
		BaseURL: srv.URL,
		Policy:  RetryPolicy{MaxRetries: 3, Delay: time.Hour},
		Logger:  testLogger(),
	})
	if _, err := g.Extract(ctx, []byte("x"), "image/jpeg"); err == nil {
		t.Fatal("expected context error")
	}
}
