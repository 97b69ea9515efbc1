// Package handler implements the user-facing behavior: command handlers,
// media handlers and menu resolution. Handlers send their own error
// messages for expected failures; returned errors only feed the logs.
package handler

import (
	"context"
	"fmt"
	"log/slog"

	"vocabot/internal/dispatch"
	"vocabot/internal/domain"
	"vocabot/internal/history"
	"vocabot/internal/store"
)

// Fixed user-facing messages. French, like the rest of the bot's replies.
const (
	msgEngineUnavailable = "Service d'analyse non disponible. Configure une clé API Gemini."
	msgDownloadFailed    = "Téléchargement du média échoué. Réessaie."
	msgAnalysisFailed    = "Erreur pendant l'analyse. Réessaie."
	msgAnalyzing         = "Analyse en cours..."
	msgVoiceExpired      = "Le vocal a expiré. Renvoie-le."
)

// VoiceConfig holds the voice handler's dependencies. History may be nil.
type VoiceConfig struct {
	Analyzer domain.Analyzer
	States   *store.StateStore
	Voices   *store.VoiceCache
	History  *history.Store
	Logger   *slog.Logger
}

// Voice handles voice notes and audio files. A push-to-talk voice note
// opens the numbered menu (two-phase interaction); a plain audio file is
// analyzed immediately at the depth its duration suggests and feeds the
// voice cache used by !details.
type Voice struct {
	analyzer domain.Analyzer
	states   *store.StateStore
	voices   *store.VoiceCache
	history  *history.Store
	logger   *slog.Logger
}

func NewVoice(cfg VoiceConfig) *Voice {
	return &Voice{
		analyzer: cfg.Analyzer,
		states:   cfg.States,
		voices:   cfg.Voices,
		history:  cfg.History,
		logger:   cfg.Logger,
	}
}

// Register wires the handler into the registry: both audio kinds route
// here, and the voice-menu pending action resolves here.
func (v *Voice) Register(reg *dispatch.Registry) {
	reg.RegisterMedia(dispatch.MediaHandler{
		Kinds:       []domain.MessageKind{domain.KindVoice, domain.KindAudio},
		Description: "Analyse des messages vocaux",
		Execute:     v.handleMedia,
	})
	reg.RegisterResolver(store.PendingVoiceMenu, v.resolveMenu)
}

// menuDepths maps menu digits to analysis depths. Fixed set, documented in
// the help text.
var menuDepths = map[string]domain.AnalysisDepth{
	"1": domain.DepthTranscript,
	"2": domain.DepthBrief,
	"3": domain.DepthFull,
	"4": domain.DepthActions,
}

// suggestedChoice inverts ClassifyByDuration into a menu digit.
func suggestedChoice(seconds int) string {
	switch domain.ClassifyByDuration(seconds) {
	case domain.DepthTranscript:
		return "1"
	case domain.DepthBrief:
		return "2"
	default:
		return "3"
	}
}

func voiceMenuText(seconds int) string {
	return fmt.Sprintf(`Vocal reçu (%ds). Que veux-tu ?

1. Transcription seule
2. Résumé court
3. Transcription + résumé
4. Actions à faire

Réponds avec un chiffre. Suggestion : %s`, seconds, suggestedChoice(seconds))
}

func (v *Voice) handleMedia(ctx context.Context, msg domain.InboundMessage, send dispatch.SendFunc) error {
	if !v.analyzer.Available() {
		send(msgEngineUnavailable)
		return nil
	}

	media, err := msg.Download(ctx)
	if err != nil || media == nil {
		send(msgDownloadFailed)
		if err != nil {
			return fmt.Errorf("download media: %w", err)
		}
		return nil
	}

	switch msg.Kind {
	case domain.KindVoice:
		// Phase 1 of the menu interaction: park the payload, ask for a choice.
		v.states.Update(msg.SenderID, func(st *store.UserState) {
			st.Pending = store.PendingVoiceMenu
			st.Voice = &store.CachedMedia{
				Data:     media.Data,
				MimeType: media.MimeType,
				Duration: msg.Duration,
			}
		})
		send(voiceMenuText(msg.Duration))
		return nil

	default: // KindAudio: analyze right away at the duration-adapted depth
		depth := domain.ClassifyByDuration(msg.Duration)
		send(msgAnalyzing)

		text, err := v.analyzer.Analyze(ctx, media.Data, media.MimeType, depth)
		if err != nil {
			send(msgAnalysisFailed)
			return fmt.Errorf("analyze audio: %w", err)
		}

		v.voices.Put(msg.SenderID, store.CachedVoice{
			Data:     media.Data,
			MimeType: media.MimeType,
			Duration: msg.Duration,
		})
		v.record(ctx, msg.SenderID, msg.Kind, depth, msg.Duration, len(text))

		send(formatAnalysis(text))
		return nil
	}
}

// resolveMenu is phase 2: a bare digit arrived while the voice menu was
// pending. A recognized choice consumes the message and clears the state
// even when the analysis itself fails; the user can resend the voice note.
func (v *Voice) resolveMenu(ctx context.Context, msg domain.InboundMessage, choice string, send dispatch.SendFunc) (bool, error) {
	depth, ok := menuDepths[choice]
	if !ok {
		return false, nil
	}

	st := v.states.Get(msg.SenderID)
	v.states.Clear(msg.SenderID)

	if st.Voice == nil {
		send(msgVoiceExpired)
		return true, nil
	}
	if !v.analyzer.Available() {
		send(msgEngineUnavailable)
		return true, nil
	}

	send(msgAnalyzing)
	text, err := v.analyzer.Analyze(ctx, st.Voice.Data, st.Voice.MimeType, depth)
	if err != nil {
		send(msgAnalysisFailed)
		return true, fmt.Errorf("analyze menu choice %s: %w", choice, err)
	}

	v.record(ctx, msg.SenderID, domain.KindVoice, depth, st.Voice.Duration, len(text))
	send(formatAnalysis(text))
	return true, nil
}

func (v *Voice) record(ctx context.Context, sender string, kind domain.MessageKind, depth domain.AnalysisDepth, duration, chars int) {
	if v.history == nil {
		return
	}
	if err := v.history.RecordAnalysis(ctx, sender, kind, depth, duration, chars); err != nil {
		v.logger.Warn("history write failed", "err", err)
	}
}

func formatAnalysis(text string) string {
	return "*ANALYSE VOCALE*\n\n" + text
}
