// Package analysis wraps the remote Gemini engine behind domain.Analyzer:
// one prompt template per depth, one request/response per call, no retry
// and no streaming.
package analysis

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"vocabot/internal/domain"
	"vocabot/internal/metrics"
)

const (
	defaultBaseURL     = "https://generativelanguage.googleapis.com"
	defaultModel       = "gemini-2.0-flash"
	defaultHTTPTimeout = 120 * time.Second
)

// ErrUnavailable is returned when the engine was never configured with an
// API key. Handlers check Available first; this is the backstop.
var ErrUnavailable = errors.New("analysis engine not configured")

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // overridable for tests
	Logger  *slog.Logger
}

// Gemini implements domain.Analyzer against the Gemini generateContent API.
type Gemini struct {
	apiKey  string
	model   string
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

func NewGemini(cfg GeminiConfig) *Gemini {
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Gemini{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		logger:  cfg.Logger,
	}
}

// Available reports whether an API key was configured. Checked once at
// construction; unconfigured stays unconfigured for the process life.
func (g *Gemini) Available() bool {
	return g.apiKey != ""
}

// --- generateContent wire types ---

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"` // base64
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// Analyze sends the media with the depth's prompt template and returns the
// engine's text. One synchronous exchange; errors propagate to the caller,
// which converts them to a user-facing message.
func (g *Gemini) Analyze(ctx context.Context, data []byte, mimeType string, depth domain.AnalysisDepth) (string, error) {
	if !g.Available() {
		return "", ErrUnavailable
	}

	prompt, ok := Template(depth)
	if !ok {
		return "", fmt.Errorf("unknown analysis depth %q", depth)
	}

	reqBody := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &geminiInlineData{
					MimeType: mimeType,
					Data:     base64.StdEncoding.EncodeToString(data),
				}},
			},
		}},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", g.baseURL, g.model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", g.apiKey)

	start := time.Now()
	metrics.AnalysesTotal.Inc()
	resp, err := g.client.Do(req)
	if err != nil {
		metrics.AnalysisErrors.Inc()
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.AnalysisErrors.Inc()
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("gemini API %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode gemini response: %w", err)
	}

	var sb strings.Builder
	for _, cand := range parsed.Candidates {
		for _, part := range cand.Content.Parts {
			sb.WriteString(part.Text)
		}
		break // single candidate requested
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		metrics.AnalysisErrors.Inc()
		return "", fmt.Errorf("gemini returned no text")
	}
	metrics.AnalysisLatency.Observe(time.Since(start).Seconds())

	g.logger.Info("analysis complete",
		"depth", string(depth),
		"media_bytes", len(data),
		"response_len", len(text),
		"latency_ms", time.Since(start).Milliseconds(),
	)

	return text, nil
}
