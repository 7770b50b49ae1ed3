package server

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

	"dimeagent/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeNotifier struct {
	to   string
	text string
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, to, text string) error {
	if n.err != nil {
		return n.err
	}
	n.to, n.text = to, text
	return nil
}

func testServer(n *fakeNotifier) *Server {
	return New(Config{
		Host:      "127.0.0.1",
		Port:      0,
		Notifier:  n,
		Collector: metrics.NewCollector(),
		Logger:    testLogger(),
	})
}

func TestSendSuccess(t *testing.T) {
	n := &fakeNotifier{}
	srv := httptest.NewServer(testServer(n).Handler())
	defer srv.Close()

	body := strings.NewReader(`{"phoneNumber": "(555) 123-4567", "message": "hello"}`)
	resp, err := http.Post(srv.URL+"/api/send", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got struct {
		Success bool   `json:"success"`
		SentAt  string `json:"sentAt"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if !got.Success || got.SentAt == "" {
		t.Errorf("response = %+v", got)
	}
	if n.to != "+15551234567" {
		t.Errorf("recipient = %q, want normalized number", n.to)
	}
	if n.text != "hello" {
		t.Errorf("text = %q", n.text)
	}
}

func TestSendValidation(t *testing.T) {
	n := &fakeNotifier{}
	srv := httptest.NewServer(testServer(n).Handler())
	defer srv.Close()

	cases := []struct {
		name string
		body string
	}{
		{"missing phone", `{"message": "hi"}`},
		{"missing message", `{"phoneNumber": "+15551234567"}`},
		{"blank message", `{"phoneNumber": "+15551234567", "message": "   "}`},
		{"invalid json", `{`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := http.Post(srv.URL+"/api/send", "application/json", strings.NewReader(tc.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
	if n.to != "" {
		t.Errorf("notifier called with invalid input: %q", n.to)
	}
}

func TestSendDeliveryFailure(t *testing.T) {
	n := &fakeNotifier{err: errors.New("osascript exited 1")}
	srv := httptest.NewServer(testServer(n).Handler())
	defer srv.Close()

	body := strings.NewReader(`{"phoneNumber": "+15551234567", "message": "hi"}`)
	resp, err := http.Post(srv.URL+"/api/send", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(testServer(&fakeNotifier{}).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["status"] != "ok" {
		t.Errorf("status field = %v", got["status"])
	}
}

func TestMetricsExposed(t *testing.T) {
	c := metrics.NewCollector()
	c.Counter("dimeagent_receipts_saved_total", "Receipts persisted as transactions").Inc()
	s := New(Config{Notifier: &fakeNotifier{}, Collector: c, Logger: testLogger()})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(out), "dimeagent_receipts_saved_total 1") {
		t.Errorf("metrics output missing counter:\n%s", out)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := httptest.NewServer(testServer(&fakeNotifier{}).Handler())
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/send", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing CORS header")
	}
}
