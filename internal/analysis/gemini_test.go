package analysis

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"vocabot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestAvailable(t *testing.T) {
	withKey := NewGemini(GeminiConfig{APIKey: "k", Logger: testLogger()})
	if !withKey.Available() {
		t.Error("Available = false with API key")
	}

	withoutKey := NewGemini(GeminiConfig{Logger: testLogger()})
	if withoutKey.Available() {
		t.Error("Available = true without API key")
	}
}

func TestAnalyze_Unconfigured(t *testing.T) {
	g := NewGemini(GeminiConfig{Logger: testLogger()})
	_, err := g.Analyze(context.Background(), []byte("x"), "audio/ogg", domain.DepthBrief)
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestAnalyze_UnknownDepth(t *testing.T) {
	g := NewGemini(GeminiConfig{APIKey: "k", Logger: testLogger()})
	if _, err := g.Analyze(context.Background(), []byte("x"), "audio/ogg", "bogus"); err == nil {
		t.Error("expected error for unknown depth")
	}
}

func TestAnalyze_SendsTemplateAndMedia(t *testing.T) {
	var got geminiRequest
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-goog-api-key")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]string{{"text": "RESUME : ok"}},
				},
			}},
		})
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{APIKey: "secret", BaseURL: srv.URL, Logger: testLogger()})

	text, err := g.Analyze(context.Background(), []byte("audio-bytes"), "audio/ogg", domain.DepthFull)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if text != "RESUME : ok" {
		t.Errorf("text = %q", text)
	}
	if gotKey != "secret" {
		t.Errorf("api key header = %q", gotKey)
	}

	if len(got.Contents) != 1 || len(got.Contents[0].Parts) != 2 {
		t.Fatalf("request shape: %+v", got)
	}
	wantPrompt, _ := Template(domain.DepthFull)
	if got.Contents[0].Parts[0].Text != wantPrompt {
		t.Error("first part should carry the depth's prompt template")
	}
	inline := got.Contents[0].Parts[1].InlineData
	if inline == nil || inline.MimeType != "audio/ogg" {
		t.Fatalf("inline data: %+v", inline)
	}
	if decoded, _ := base64.StdEncoding.DecodeString(inline.Data); string(decoded) != "audio-bytes" {
		t.Error("media bytes not base64-encoded correctly")
	}
}

func TestAnalyze_RemoteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{APIKey: "k", BaseURL: srv.URL, Logger: testLogger()})
	if _, err := g.Analyze(context.Background(), []byte("x"), "audio/ogg", domain.DepthBrief); err == nil {
		t.Error("expected error on non-200 response")
	}
}

func TestAnalyze_EmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"candidates": []any{}})
	}))
	defer srv.Close()

	g := NewGemini(GeminiConfig{APIKey: "k", BaseURL: srv.URL, Logger: testLogger()})
	if _, err := g.Analyze(context.Background(), []byte("x"), "audio/ogg", domain.DepthBrief); err == nil {
		t.Error("expected error when the engine returns no text")
	}
}

func TestTemplates_CoverAllDepths(t *testing.T) {
	for _, depth := range []domain.AnalysisDepth{
		domain.DepthTranscript, domain.DepthBrief, domain.DepthFull,
		domain.DepthDetails, domain.DepthActions, domain.DepthTranslate,
		domain.DepthDescribe, domain.DepthContact,
	} {
		if _, ok := Template(depth); !ok {
			t.Errorf("no template for depth %q", depth)
		}
	}
}
