package dispatch_test

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"vocabot/internal/bus"
	"vocabot/internal/dispatch"
	"vocabot/internal/domain"
	"vocabot/internal/handler"
	"vocabot/internal/store"
)

type echoAnalyzer struct {
	mu    sync.Mutex
	calls []domain.AnalysisDepth
}

func (a *echoAnalyzer) Available() bool { return true }

func (a *echoAnalyzer) Analyze(_ context.Context, _ []byte, _ string, depth domain.AnalysisDepth) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, depth)
	return "result:" + string(depth), nil
}

func (a *echoAnalyzer) depths() []domain.AnalysisDepth {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.AnalysisDepth(nil), a.calls...)
}

type fixture struct {
	dispatcher *dispatch.Dispatcher
	analyzer   *echoAnalyzer
	mu         sync.Mutex
	replies    []string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{analyzer: &echoAnalyzer{}}
	mb := bus.New(16, logger)
	t.Cleanup(mb.Close)
	mb.OnOutbound("test", func(msg domain.OutboundMessage) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.replies = append(f.replies, msg.Content)
	})

	states := store.NewStateStore()
	voices := store.NewVoiceCache()
	reg := dispatch.NewRegistry()

	handler.NewVoice(handler.VoiceConfig{
		Analyzer: f.analyzer, States: states, Voices: voices, Logger: logger,
	}).Register(reg)
	handler.NewCommands(handler.CommandsConfig{
		Analyzer: f.analyzer, Voices: voices, Prefix: "!", Logger: logger,
	}).Register(reg)

	f.dispatcher = dispatch.New(dispatch.DispatcherConfig{
		Bus:       mb,
		Registry:  reg,
		Whitelist: dispatch.NewWhitelist([]string{"33612345678"}, false),
		States:    states,
		Prefix:    "!",
		Logger:    logger,
	})
	return f
}

func (f *fixture) dispatch(t *testing.T, msg domain.InboundMessage) []string {
	t.Helper()
	f.mu.Lock()
	f.replies = nil
	f.mu.Unlock()

	f.dispatcher.Dispatch(context.Background(), msg)

	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.replies...)
}

func voiceNote(seconds int) domain.InboundMessage {
	return domain.InboundMessage{
		Channel:  "test",
		ChatID:   "chat@s.whatsapp.net",
		SenderID: "33612345678@s.whatsapp.net",
		Kind:     domain.KindVoice,
		HasMedia: true,
		Duration: seconds,
		Download: func(context.Context) (*domain.MediaPayload, error) {
			return &domain.MediaPayload{Data: []byte("opus"), MimeType: "audio/ogg"}, nil
		},
	}
}

func text(body string) domain.InboundMessage {
	return domain.InboundMessage{
		Channel:  "test",
		ChatID:   "chat@s.whatsapp.net",
		SenderID: "33612345678@s.whatsapp.net",
		Body:     body,
		Kind:     domain.KindText,
	}
}

// A whitelisted user sends a 45 second voice note, picks the short summary
// from the menu, then asks for !details. The menu flow never feeds the
// voice cache, so !details reports that no audio is cached.
func TestVoiceMenuConversation(t *testing.T) {
	f := newFixture(t)

	replies := f.dispatch(t, voiceNote(45))
	if len(replies) != 1 || !strings.Contains(replies[0], "1.") {
		t.Fatalf("expected the menu, got %v", replies)
	}

	replies = f.dispatch(t, text("2"))
	joined := strings.Join(replies, "\n")
	if !strings.Contains(joined, "result:"+string(domain.DepthBrief)) {
		t.Fatalf("expected a brief analysis, got %v", replies)
	}
	depths := f.analyzer.depths()
	if len(depths) != 1 || depths[0] != domain.DepthBrief {
		t.Fatalf("analyzer depths = %v, want [brief]", depths)
	}

	replies = f.dispatch(t, text("!details"))
	if len(replies) != 1 || !strings.Contains(replies[0], "Aucun vocal") {
		t.Fatalf("details should report an empty voice cache, got %v", replies)
	}
}

// The same user can show up under different JID forms (device suffix,
// bare number). The menu state opened under one form must be found when
// the digit arrives under another.
func TestVoiceMenuSurvivesJIDFormChange(t *testing.T) {
	f := newFixture(t)

	note := voiceNote(45)
	note.SenderID = "33612345678:5@s.whatsapp.net"
	replies := f.dispatch(t, note)
	if len(replies) != 1 || !strings.Contains(replies[0], "1.") {
		t.Fatalf("expected the menu, got %v", replies)
	}

	choice := text("2")
	choice.SenderID = "33612345678@s.whatsapp.net"
	replies = f.dispatch(t, choice)
	if !strings.Contains(strings.Join(replies, "\n"), "result:"+string(domain.DepthBrief)) {
		t.Fatalf("menu choice lost across JID forms, got %v", replies)
	}
}

// A digit reply is consumed once: after the menu interaction completes,
// the same digit is an ordinary message again and is silently dropped.
func TestMenuStateConsumedOnce(t *testing.T) {
	f := newFixture(t)

	f.dispatch(t, voiceNote(10))
	f.dispatch(t, text("1"))

	replies := f.dispatch(t, text("1"))
	if len(replies) != 0 {
		t.Fatalf("a bare digit with no pending menu should be dropped, got %v", replies)
	}
}

func TestNonWhitelistedSenderIsInvisible(t *testing.T) {
	f := newFixture(t)

	msg := text("!ping")
	msg.SenderID = "999999999@s.whatsapp.net"
	if replies := f.dispatch(t, msg); len(replies) != 0 {
		t.Fatalf("stranger should get no reply, got %v", replies)
	}
}
