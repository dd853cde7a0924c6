package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{APIKey: "test-key", BaseURL: srv.URL, HTTPClient: srv.Client()})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	return c
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Options{APIKey: "  "}); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("err = %v, want ErrMissingAPIKey", err)
	}
}

func TestGenerateSendsRequest(t *testing.T) {
	var got generateRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models/gemini-2.5-flash:generateContent" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("missing api key header")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_, _ = io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"hello"}]}}]}`)
	})

	text, err := c.Generate(context.Background(), Request{
		SystemInstruction: "be brief",
		UserContent:       "hi",
		MaxOutputTokens:   2048,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if text != "hello" {
		t.Fatalf("text = %q, want hello", text)
	}

	if got.SystemInstruction == nil || got.SystemInstruction.Parts[0].Text != "be brief" {
		t.Errorf("system instruction not sent: %+v", got.SystemInstruction)
	}
	if got.Contents[0].Parts[0].Text != "hi" {
		t.Errorf("user content = %+v", got.Contents)
	}
	cfg := got.GenerationConfig
	if cfg.Temperature != 0.7 || cfg.TopP != 0.95 || cfg.TopK != 40 || cfg.MaxOutputTokens != 2048 {
		t.Errorf("generation config = %+v", cfg)
	}
}

func TestGenerateEmptyCandidates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"candidates":[]}`)
	})

	text, err := c.Generate(context.Background(), Request{UserContent: "x"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if text != "" {
		t.Fatalf("text = %q, want empty", text)
	}
}

func TestGenerateUpstreamStatusPassesThrough(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"error":{"code":503,"message":"The model is overloaded.","status":"UNAVAILABLE"}}`)
	})

	_, err := c.Generate(context.Background(), Request{UserContent: "x"})
	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("err = %v, want *UpstreamError", err)
	}
	if upErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("StatusCode = %d", upErr.StatusCode)
	}
	if upErr.Message != "The model is overloaded." {
		t.Errorf("Message = %q", upErr.Message)
	}
	if upErr.Details == nil {
		t.Error("expected decoded details")
	}
}

func TestGenerateNonJSONError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, "slow down")
	})

	_, err := c.Generate(context.Background(), Request{UserContent: "x"})
	var upErr *UpstreamError
	if !errors.As(err, &upErr) || upErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("err = %v", err)
	}
	if !strings.Contains(upErr.Error(), "429") {
		t.Errorf("Error() = %q", upErr.Error())
	}
}
