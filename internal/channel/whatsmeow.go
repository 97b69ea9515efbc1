// Package channel binds the bus to concrete WhatsApp transports. Each
// binding normalizes wire events into domain.InboundMessage and delivers
// outbound replies for its own channel name.
package channel

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	waProto "go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"

	"vocabot/internal/config"
	"vocabot/internal/domain"
)

// Whatsmeow is the personal-account transport: it pairs as a linked
// device over the multidevice protocol, with the session persisted in a
// local sqlite store.
type Whatsmeow struct {
	cfg    config.WhatsmeowConfig
	bus    domain.MessageBus
	logger *slog.Logger
	client *whatsmeow.Client
}

type WhatsmeowChannelConfig struct {
	Config config.WhatsmeowConfig
	Logger *slog.Logger
}

func NewWhatsmeow(cfg WhatsmeowChannelConfig) *Whatsmeow {
	return &Whatsmeow{
		cfg:    cfg.Config,
		logger: cfg.Logger,
	}
}

func (c *Whatsmeow) Name() string { return "whatsmeow" }

// Start opens the session store, connects and, if the device is not
// paired yet, prints a QR code to stdout and waits for the scan. Inbound
// events flow to the bus until Stop.
func (c *Whatsmeow) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	waLogger := newWALogger(c.logger)
	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", c.cfg.DBPath), waLogger.Sub("db"))
	if err != nil {
		return fmt.Errorf("open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err == sql.ErrNoRows {
		device = container.NewDevice()
	} else if err != nil {
		return fmt.Errorf("load device: %w", err)
	}

	c.client = whatsmeow.NewClient(device, waLogger.Sub("client"))
	c.client.AddEventHandler(func(evt any) { c.handleEvent(ctx, evt) })

	if c.client.Store.ID == nil {
		// Not paired yet. The QR channel must be requested before Connect.
		qrChan, _ := c.client.GetQRChannel(ctx)
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		c.logger.Info("scan the QR code to pair this device")
		for evt := range qrChan {
			switch evt.Event {
			case "code":
				qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
			case "success":
				c.logger.Info("device paired")
			}
		}
	} else {
		if err := c.client.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
	}

	bus.OnOutbound(c.Name(), func(msg domain.OutboundMessage) {
		if err := c.Send(ctx, msg.ChatID, msg.Content); err != nil {
			c.logger.Error("whatsmeow send failed", "err", err, "chat", msg.ChatID)
		}
	})

	c.logger.Info("whatsmeow channel connected")
	return nil
}

func (c *Whatsmeow) Stop() error {
	if c.client != nil {
		c.client.Disconnect()
	}
	return nil
}

func (c *Whatsmeow) Send(ctx context.Context, chatID string, content string) error {
	jid, err := types.ParseJID(chatID)
	if err != nil {
		return fmt.Errorf("parse chat jid %q: %w", chatID, err)
	}
	for _, chunk := range splitMessage(content, maxMessageLen) {
		_, err = c.client.SendMessage(ctx, jid, &waProto.Message{
			Conversation: proto.String(chunk),
		})
		if err != nil {
			return fmt.Errorf("send message: %w", err)
		}
	}
	return nil
}

func (c *Whatsmeow) handleEvent(ctx context.Context, evt any) {
	switch v := evt.(type) {
	case *events.Message:
		c.handleMessage(ctx, v)
	case *events.Connected:
		c.logger.Info("whatsmeow connected")
	case *events.Disconnected:
		c.logger.Warn("whatsmeow disconnected")
	case *events.LoggedOut:
		c.logger.Error("device logged out, delete the session store and pair again")
	}
}

// handleMessage normalizes a wire event into an InboundMessage. Own
// messages and status broadcasts are dropped at the edge; group messages
// pass through and are gated per sender by the whitelist downstream.
func (c *Whatsmeow) handleMessage(ctx context.Context, v *events.Message) {
	if v.Info.IsFromMe || v.Info.Chat.User == "status" {
		return
	}

	// ChatID keeps the wire-format JID for replies; SenderID is reduced
	// to the bare number so state keys match across device suffixes.
	msg := domain.InboundMessage{
		Channel:   c.Name(),
		ChatID:    v.Info.Chat.String(),
		SenderID:  domain.NormalizeNumber(v.Info.Sender.String()),
		Kind:      domain.KindText,
		Timestamp: v.Info.Timestamp,
	}

	raw := v.Message
	switch {
	case raw.GetConversation() != "":
		msg.Body = raw.GetConversation()

	case raw.GetExtendedTextMessage() != nil:
		msg.Body = raw.GetExtendedTextMessage().GetText()

	case raw.GetAudioMessage() != nil:
		au := raw.GetAudioMessage()
		if au.GetPTT() {
			msg.Kind = domain.KindVoice
		} else {
			msg.Kind = domain.KindAudio
		}
		msg.HasMedia = true
		msg.Duration = int(au.GetSeconds())
		msg.Download = c.downloader(au, au.GetMimetype())

	case raw.GetImageMessage() != nil:
		im := raw.GetImageMessage()
		msg.Kind = domain.KindImage
		msg.HasMedia = true
		msg.Body = im.GetCaption()
		msg.Download = c.downloader(im, im.GetMimetype())

	default:
		msg.Kind = domain.KindOther
	}

	if msg.Body == "" && !msg.HasMedia {
		return
	}

	c.logger.Debug("inbound message",
		"sender", msg.SenderID, "kind", string(msg.Kind), "duration", msg.Duration)
	c.bus.Publish(ctx, msg)
}

// downloader defers the media fetch until a handler decides it needs the
// payload; text-only traffic never touches the media servers.
func (c *Whatsmeow) downloader(part whatsmeow.DownloadableMessage, mimeType string) domain.DownloadFunc {
	return func(ctx context.Context) (*domain.MediaPayload, error) {
		ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
		defer cancel()

		data, err := c.client.Download(ctx, part)
		if err != nil {
			return nil, fmt.Errorf("download media: %w", err)
		}
		return &domain.MediaPayload{Data: data, MimeType: mimeType}, nil
	}
}
