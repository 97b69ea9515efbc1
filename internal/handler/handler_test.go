package handler

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"vocabot/internal/dispatch"
	"vocabot/internal/domain"
	"vocabot/internal/store"
)

type analyzeCall struct {
	mimeType string
	depth    domain.AnalysisDepth
}

type fakeAnalyzer struct {
	available bool
	reply     string
	err       error
	calls     []analyzeCall
}

func (f *fakeAnalyzer) Available() bool { return f.available }

func (f *fakeAnalyzer) Analyze(_ context.Context, _ []byte, mimeType string, depth domain.AnalysisDepth) (string, error) {
	f.calls = append(f.calls, analyzeCall{mimeType: mimeType, depth: depth})
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func collect(out *[]string) dispatch.SendFunc {
	return func(text string) { *out = append(*out, text) }
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mediaMessage(kind domain.MessageKind, duration int, payload *domain.MediaPayload) domain.InboundMessage {
	return domain.InboundMessage{
		Channel:  "test",
		ChatID:   "chat@s.whatsapp.net",
		SenderID: "33612345678",
		Kind:     kind,
		HasMedia: true,
		Duration: duration,
		Download: func(context.Context) (*domain.MediaPayload, error) {
			return payload, nil
		},
	}
}

func lastReply(t *testing.T, replies []string) string {
	t.Helper()
	if len(replies) == 0 {
		t.Fatal("no reply sent")
	}
	return replies[len(replies)-1]
}

func requireContains(t *testing.T, s, sub string) {
	t.Helper()
	if !strings.Contains(s, sub) {
		t.Fatalf("expected %q in %q", sub, s)
	}
}

func newVoiceHandler(analyzer domain.Analyzer) (*Voice, *store.StateStore, *store.VoiceCache) {
	states := store.NewStateStore()
	voices := store.NewVoiceCache()
	v := NewVoice(VoiceConfig{
		Analyzer: analyzer,
		States:   states,
		Voices:   voices,
		Logger:   testLogger(),
	})
	return v, states, voices
}
