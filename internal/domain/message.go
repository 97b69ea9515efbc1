package domain

import (
	"context"
	"time"
)

// MessageKind classifies the content of an inbound message.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindVoice MessageKind = "voice" // push-to-talk voice note
	KindAudio MessageKind = "audio" // regular audio file
	KindImage MessageKind = "image"
	KindOther MessageKind = "other"
)

// MediaPayload holds downloaded media bytes and their MIME type.
type MediaPayload struct {
	Data     []byte
	MimeType string
}

// DownloadFunc fetches the raw media attached to a message. It is only
// invoked when a handler actually needs the bytes.
type DownloadFunc func(ctx context.Context) (*MediaPayload, error)

// InboundMessage is the transport-independent shape of a received message.
// Channels normalize their native event into this before publishing it on
// the bus; it is owned by the dispatch call that consumes it and discarded
// after routing completes.
type InboundMessage struct {
	Channel   string // originating channel name ("whatsmeow", "cloudapi")
	ChatID    string // wire-format reply target (JID or phone number)
	SenderID  string // canonical bare phone number of the sender
	Body      string // text content, empty for pure media messages
	Kind      MessageKind
	HasMedia  bool
	Duration  int // seconds, only meaningful for voice/audio
	Timestamp time.Time

	// Download fetches the media bytes lazily. Nil when HasMedia is false.
	Download DownloadFunc
}

// OutboundMessage is a reply routed back through the originating channel.
type OutboundMessage struct {
	Channel string
	ChatID  string
	Content string
}
