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

const (
	msgImageExpired  = "L'image a expiré. Renvoie-la."
	msgContactSaved  = "Contact enregistré."
	msgContactDrop   = "Contact ignoré."
	msgContactFailed = "Impossible d'extraire un contact de cette image."
	msgNoHistory     = "Historique désactivé, le contact n'a pas été enregistré."
)

// ImageConfig holds the image handler's dependencies. History may be nil;
// saving a contact then degrades to a notice instead of a write.
type ImageConfig struct {
	Analyzer domain.Analyzer
	States   *store.StateStore
	History  *history.Store
	Logger   *slog.Logger
}

// Image handles incoming pictures with the same two-phase menu pattern as
// voice notes: park the payload, offer describe-or-extract-contact, and on
// a contact extraction ask for confirmation before persisting.
type Image struct {
	analyzer domain.Analyzer
	states   *store.StateStore
	history  *history.Store
	logger   *slog.Logger
}

func NewImage(cfg ImageConfig) *Image {
	return &Image{
		analyzer: cfg.Analyzer,
		states:   cfg.States,
		history:  cfg.History,
		logger:   cfg.Logger,
	}
}

func (i *Image) Register(reg *dispatch.Registry) {
	reg.RegisterMedia(dispatch.MediaHandler{
		Kinds:       []domain.MessageKind{domain.KindImage},
		Description: "Analyse des images",
		Execute:     i.handleMedia,
	})
	reg.RegisterResolver(store.PendingImageMenu, i.resolveMenu)
	reg.RegisterResolver(store.PendingContactConfirm, i.resolveConfirm)
}

const imageMenuText = `Image reçue. Que veux-tu ?

1. Décrire l'image
2. Extraire un contact (carte de visite)

Réponds avec un chiffre.`

func (i *Image) handleMedia(ctx context.Context, msg domain.InboundMessage, send dispatch.SendFunc) error {
	if !i.analyzer.Available() {
		send(msgEngineUnavailable)
		return nil
	}

	media, err := msg.Download(ctx)
	if err != nil || media == nil {
		send(msgDownloadFailed)
		if err != nil {
			return fmt.Errorf("download image: %w", err)
		}
		return nil
	}

	i.states.Update(msg.SenderID, func(st *store.UserState) {
		st.Pending = store.PendingImageMenu
		st.Image = &store.CachedMedia{Data: media.Data, MimeType: media.MimeType}
	})
	send(imageMenuText)
	return nil
}

func (i *Image) resolveMenu(ctx context.Context, msg domain.InboundMessage, choice string, send dispatch.SendFunc) (bool, error) {
	if choice != "1" && choice != "2" {
		return false, nil
	}

	st := i.states.Get(msg.SenderID)
	if st.Image == nil {
		i.states.Clear(msg.SenderID)
		send(msgImageExpired)
		return true, nil
	}
	if !i.analyzer.Available() {
		i.states.Clear(msg.SenderID)
		send(msgEngineUnavailable)
		return true, nil
	}

	if choice == "1" {
		i.states.Clear(msg.SenderID)
		send(msgAnalyzing)
		text, err := i.analyzer.Analyze(ctx, st.Image.Data, st.Image.MimeType, domain.DepthDescribe)
		if err != nil {
			send(msgAnalysisFailed)
			return true, fmt.Errorf("describe image: %w", err)
		}
		i.record(ctx, msg.SenderID, domain.DepthDescribe, len(text))
		send("*DESCRIPTION*\n\n" + text)
		return true, nil
	}

	// Choice 2: extract a contact, then hold it for confirmation. The image
	// payload stays parked until the user decides.
	send(msgAnalyzing)
	text, err := i.analyzer.Analyze(ctx, st.Image.Data, st.Image.MimeType, domain.DepthContact)
	if err != nil {
		i.states.Clear(msg.SenderID)
		send(msgAnalysisFailed)
		return true, fmt.Errorf("extract contact: %w", err)
	}

	contact := parseContact(text)
	if contact.Name == "" && contact.Phone == "" && contact.Email == "" {
		i.states.Clear(msg.SenderID)
		send(msgContactFailed)
		return true, nil
	}

	i.record(ctx, msg.SenderID, domain.DepthContact, len(text))
	i.states.Update(msg.SenderID, func(st *store.UserState) {
		st.Pending = store.PendingContactConfirm
		st.Image = nil
		st.Contact = &contact
	})
	send(formatContact(contact) + "\n\n1. Enregistrer\n2. Ignorer")
	return true, nil
}

func (i *Image) resolveConfirm(ctx context.Context, msg domain.InboundMessage, choice string, send dispatch.SendFunc) (bool, error) {
	if choice != "1" && choice != "2" {
		return false, nil
	}

	st := i.states.Get(msg.SenderID)
	i.states.Clear(msg.SenderID)

	if st.Contact == nil {
		send(msgImageExpired)
		return true, nil
	}
	if choice == "2" {
		send(msgContactDrop)
		return true, nil
	}
	if i.history == nil {
		send(msgNoHistory)
		return true, nil
	}
	if err := i.history.SaveContact(ctx, msg.SenderID, *st.Contact); err != nil {
		send(msgAnalysisFailed)
		return true, fmt.Errorf("save contact: %w", err)
	}
	send(msgContactSaved)
	return true, nil
}

func (i *Image) record(ctx context.Context, sender string, depth domain.AnalysisDepth, chars int) {
	if i.history == nil {
		return
	}
	if err := i.history.RecordAnalysis(ctx, sender, domain.KindImage, depth, 0, chars); err != nil {
		i.logger.Warn("history write failed", "err", err)
	}
}

// parseContact reads the line-oriented "Field: value" shape the contact
// extraction prompt asks the model for. Unknown lines land in Raw.
func parseContact(text string) store.Contact {
	c := store.Contact{Raw: strings.TrimSpace(text)}
	for _, line := range strings.Split(text, "\n") {
		key, val, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		val = strings.TrimSpace(val)
		if val == "" || val == "-" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "name", "nom":
			c.Name = val
		case "company", "société", "societe", "entreprise":
			c.Company = val
		case "phone", "téléphone", "telephone", "tel":
			c.Phone = val
		case "email", "e-mail", "mail":
			c.Email = val
		case "address", "adresse":
			c.Address = val
		case "website", "site", "site web":
			c.Website = val
		}
	}
	return c
}

func formatContact(c store.Contact) string {
	var b strings.Builder
	b.WriteString("*CONTACT DÉTECTÉ*\n")
	writeField := func(label, val string) {
		if val != "" {
			fmt.Fprintf(&b, "\n%s : %s", label, val)
		}
	}
	writeField("Nom", c.Name)
	writeField("Société", c.Company)
	writeField("Téléphone", c.Phone)
	writeField("Email", c.Email)
	writeField("Adresse", c.Address)
	writeField("Site", c.Website)
	return b.String()
}
