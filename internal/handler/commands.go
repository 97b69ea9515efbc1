package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"vocabot/internal/dispatch"
	"vocabot/internal/domain"
	"vocabot/internal/history"
	"vocabot/internal/store"
)

const msgNoCachedVoice = "Aucun vocal en mémoire. Envoie d'abord un fichier audio."

// CommandsConfig holds the dependencies of the prefix commands. History
// may be nil; !stats then reports that the journal is disabled.
type CommandsConfig struct {
	Analyzer domain.Analyzer
	Voices   *store.VoiceCache
	History  *history.Store
	Prefix   string
	Logger   *slog.Logger
}

// Commands provides the built-in prefix commands: ping, help, details,
// translate and stats.
type Commands struct {
	analyzer domain.Analyzer
	voices   *store.VoiceCache
	history  *history.Store
	prefix   string
	logger   *slog.Logger
	reg      *dispatch.Registry
}

func NewCommands(cfg CommandsConfig) *Commands {
	return &Commands{
		analyzer: cfg.Analyzer,
		voices:   cfg.Voices,
		history:  cfg.History,
		prefix:   cfg.Prefix,
		logger:   cfg.Logger,
	}
}

func (c *Commands) Register(reg *dispatch.Registry) {
	c.reg = reg
	reg.RegisterCommand(
		dispatch.Command{Name: "ping", Description: "Vérifie que le bot répond", Execute: c.ping},
		dispatch.Command{Name: "help", Description: "Affiche cette aide", Execute: c.help},
		dispatch.Command{Name: "details", Description: "Analyse détaillée du dernier audio", Execute: c.details},
		dispatch.Command{Name: "translate", Description: "Traduit le dernier audio en français", Execute: c.translate},
		dispatch.Command{Name: "stats", Description: "Statistiques d'utilisation", Execute: c.stats},
	)
}

func (c *Commands) ping(_ context.Context, _ domain.InboundMessage, _ []string, send dispatch.SendFunc) error {
	send("pong")
	return nil
}

func (c *Commands) help(_ context.Context, _ domain.InboundMessage, _ []string, send dispatch.SendFunc) error {
	var b strings.Builder
	b.WriteString("*VOCABOT*\n\nCommandes :\n")
	for _, cmd := range c.reg.Commands() {
		fmt.Fprintf(&b, "%s%s : %s\n", c.prefix, cmd.Name, cmd.Description)
	}
	b.WriteString(`
Envoie un vocal pour ouvrir le menu d'analyse :
1. Transcription seule
2. Résumé court
3. Transcription + résumé
4. Actions à faire

Un fichier audio est analysé directement, une image ouvre le menu image.`)
	send(b.String())
	return nil
}

// details reruns the last cached audio at the deepest level. Only the
// direct audio flow feeds the cache, so a voice note handled through the
// menu is not reachable here.
func (c *Commands) details(ctx context.Context, msg domain.InboundMessage, _ []string, send dispatch.SendFunc) error {
	return c.reanalyze(ctx, msg, send, domain.DepthDetails, "*ANALYSE DÉTAILLÉE*")
}

func (c *Commands) translate(ctx context.Context, msg domain.InboundMessage, _ []string, send dispatch.SendFunc) error {
	return c.reanalyze(ctx, msg, send, domain.DepthTranslate, "*TRADUCTION*")
}

func (c *Commands) reanalyze(ctx context.Context, msg domain.InboundMessage, send dispatch.SendFunc, depth domain.AnalysisDepth, header string) error {
	if !c.analyzer.Available() {
		send(msgEngineUnavailable)
		return nil
	}
	cached := c.voices.Get(msg.SenderID)
	if cached == nil {
		send(msgNoCachedVoice)
		return nil
	}

	send(msgAnalyzing)
	text, err := c.analyzer.Analyze(ctx, cached.Data, cached.MimeType, depth)
	if err != nil {
		send(msgAnalysisFailed)
		return fmt.Errorf("reanalyze at %s: %w", depth, err)
	}

	if c.history != nil {
		if err := c.history.RecordAnalysis(ctx, msg.SenderID, domain.KindAudio, depth, cached.Duration, len(text)); err != nil {
			c.logger.Warn("history write failed", "err", err)
		}
	}
	send(header + "\n\n" + text)
	return nil
}

func (c *Commands) stats(ctx context.Context, _ domain.InboundMessage, _ []string, send dispatch.SendFunc) error {
	if c.history == nil {
		send("Historique désactivé.")
		return nil
	}
	st, err := c.history.Stats(ctx)
	if err != nil {
		send(msgAnalysisFailed)
		return fmt.Errorf("read stats: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "*STATISTIQUES*\n\nAnalyses : %d\nContacts : %d\n", st.Analyses, st.Contacts)
	if len(st.ByDepth) > 0 {
		b.WriteString("\nPar type :\n")
		for _, depth := range []domain.AnalysisDepth{
			domain.DepthTranscript, domain.DepthBrief, domain.DepthFull,
			domain.DepthDetails, domain.DepthActions, domain.DepthTranslate,
			domain.DepthDescribe, domain.DepthContact,
		} {
			if n := st.ByDepth[string(depth)]; n > 0 {
				fmt.Fprintf(&b, "%s : %d\n", depth, n)
			}
		}
	}
	send(strings.TrimRight(b.String(), "\n"))
	return nil
}
