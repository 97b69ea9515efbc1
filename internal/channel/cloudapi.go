package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"time"

	"vocabot/internal/config"
	"vocabot/internal/domain"
	"vocabot/internal/metrics"
)

const graphAPIBase = "https://graph.facebook.com/v21.0"

// CloudAPI implements domain.Channel for the WhatsApp Business Cloud API:
// inbound messages arrive on a webhook, outbound replies and media
// downloads go through the Graph API.
type CloudAPI struct {
	cfg     config.CloudAPIConfig
	bus     domain.MessageBus
	logger  *slog.Logger
	client  *http.Client
	mux     *http.ServeMux
	server  *http.Server
	apiBase string
}

type CloudAPIChannelConfig struct {
	Config config.CloudAPIConfig
	Logger *slog.Logger

	// APIBase overrides the Graph API endpoint, for tests.
	APIBase string
}

func NewCloudAPI(cfg CloudAPIChannelConfig) *CloudAPI {
	base := cfg.APIBase
	if base == "" {
		base = graphAPIBase
	}
	return &CloudAPI{
		cfg:     cfg.Config,
		logger:  cfg.Logger,
		client:  &http.Client{Timeout: 30 * time.Second},
		apiBase: base,
	}
}

func (c *CloudAPI) Name() string { return "cloudapi" }

func (c *CloudAPI) Start(ctx context.Context, bus domain.MessageBus) error {
	c.bus = bus

	bus.OnOutbound(c.Name(), func(msg domain.OutboundMessage) {
		if err := c.Send(ctx, msg.ChatID, msg.Content); err != nil {
			c.logger.Error("cloudapi send failed", "err", err, "chat", msg.ChatID)
		}
	})

	webhookPath := c.cfg.WebhookPath
	if webhookPath == "" {
		webhookPath = "/webhook/whatsapp"
	}

	c.mux = http.NewServeMux()
	c.mux.HandleFunc("GET "+webhookPath, c.handleVerification)
	c.mux.HandleFunc("POST "+webhookPath, c.handleIncoming)
	c.mux.Handle("GET /metrics", metrics.Collector.Handler())

	c.server = &http.Server{
		Addr:              c.cfg.ListenAddr,
		Handler:           c.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := c.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("cloudapi server failed", "err", err)
		}
	}()

	c.logger.Info("cloudapi channel ready", "addr", c.cfg.ListenAddr, "webhook", webhookPath)
	return nil
}

func (c *CloudAPI) Stop() error {
	if c.server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.server.Shutdown(ctx)
}

// Handler exposes the webhook mux for tests and for mounting on a shared
// server.
func (c *CloudAPI) Handler() http.Handler {
	if c.mux == nil {
		return http.NotFoundHandler()
	}
	return c.mux
}

// handleVerification answers Meta's webhook subscription challenge.
func (c *CloudAPI) handleVerification(rw http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "subscribe" && token == c.cfg.VerifyToken {
		c.logger.Info("cloudapi webhook verified")
		rw.WriteHeader(http.StatusOK)
		fmt.Fprint(rw, html.EscapeString(challenge))
		return
	}

	c.logger.Warn("cloudapi webhook verification failed", "mode", mode)
	http.Error(rw, "Forbidden", http.StatusForbidden)
}

func (c *CloudAPI) handleIncoming(rw http.ResponseWriter, r *http.Request) {
	if c.cfg.AppSecret != "" {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(rw, "Bad request", http.StatusBadRequest)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		if !c.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
			c.logger.Warn("cloudapi invalid signature")
			http.Error(rw, "Forbidden", http.StatusForbidden)
			return
		}
	}

	var payload waPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		c.logger.Warn("cloudapi bad payload", "err", err)
		http.Error(rw, "Bad request", http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if inbound, ok := c.normalize(msg); ok {
					c.bus.Publish(r.Context(), inbound)
				}
			}
		}
	}

	rw.WriteHeader(http.StatusOK)
}

// normalize maps a webhook message to an InboundMessage. Unsupported
// types are dropped here; the webhook still acks them.
func (c *CloudAPI) normalize(msg waMessage) (domain.InboundMessage, bool) {
	inbound := domain.InboundMessage{
		Channel:   c.Name(),
		ChatID:    msg.From,
		SenderID:  domain.NormalizeNumber(msg.From),
		Kind:      domain.KindText,
		Timestamp: time.Now(),
	}

	switch msg.Type {
	case "text":
		if msg.Text == nil {
			return inbound, false
		}
		inbound.Body = msg.Text.Body

	case "audio":
		if msg.Audio == nil {
			return inbound, false
		}
		if msg.Audio.Voice {
			inbound.Kind = domain.KindVoice
		} else {
			inbound.Kind = domain.KindAudio
		}
		inbound.HasMedia = true
		inbound.Download = c.downloader(msg.Audio.ID, msg.Audio.MimeType)

	case "image":
		if msg.Image == nil {
			return inbound, false
		}
		inbound.Kind = domain.KindImage
		inbound.HasMedia = true
		inbound.Body = msg.Image.Caption
		inbound.Download = c.downloader(msg.Image.ID, msg.Image.MimeType)

	default:
		c.logger.Debug("cloudapi unsupported message type", "type", msg.Type)
		return inbound, false
	}

	c.logger.Info("cloudapi message received", "from", msg.From, "type", msg.Type)
	return inbound, true
}

func (c *CloudAPI) verifySignature(body []byte, signature string) bool {
	if len(signature) < 7 || signature[:7] != "sha256=" {
		return false
	}
	expected := signature[7:]

	mac := hmac.New(sha256.New, []byte(c.cfg.AppSecret))
	mac.Write(body)
	computed := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(computed))
}

// downloader resolves a media ID in two hops: the Graph API metadata call
// yields a short-lived URL, the URL yields the bytes. Both need the
// bearer token.
func (c *CloudAPI) downloader(mediaID, mimeType string) domain.DownloadFunc {
	return func(ctx context.Context) (*domain.MediaPayload, error) {
		meta, err := c.getJSON(ctx, fmt.Sprintf("%s/%s", c.apiBase, mediaID))
		if err != nil {
			return nil, fmt.Errorf("resolve media %s: %w", mediaID, err)
		}

		var info struct {
			URL      string `json:"url"`
			MimeType string `json:"mime_type"`
		}
		if err := json.Unmarshal(meta, &info); err != nil {
			return nil, fmt.Errorf("decode media metadata: %w", err)
		}
		if info.URL == "" {
			return nil, fmt.Errorf("media %s has no download url", mediaID)
		}

		data, err := c.getJSON(ctx, info.URL)
		if err != nil {
			return nil, fmt.Errorf("download media %s: %w", mediaID, err)
		}

		mt := mimeType
		if info.MimeType != "" {
			mt = info.MimeType
		}
		return &domain.MediaPayload{Data: data, MimeType: mt}, nil
	}
}

func (c *CloudAPI) getJSON(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("graph API %d: %s", resp.StatusCode, string(body))
	}
	return io.ReadAll(resp.Body)
}

// Send delivers a text message through the Graph API, chunked when the
// content exceeds the API limit.
func (c *CloudAPI) Send(ctx context.Context, chatID string, content string) error {
	for _, chunk := range splitMessage(content, maxMessageLen) {
		if err := c.sendOne(ctx, chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (c *CloudAPI) sendOne(ctx context.Context, chatID string, content string) error {
	url := fmt.Sprintf("%s/%s/messages", c.apiBase, c.cfg.PhoneNumberID)

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                chatID,
		"type":              "text",
		"text":              map[string]string{"body": content},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("graph API %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// --- Webhook payload types ---

type waPayload struct {
	Object string    `json:"object"`
	Entry  []waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Value waValue `json:"value"`
	Field string  `json:"field"`
}

type waValue struct {
	MessagingProduct string      `json:"messaging_product"`
	Messages         []waMessage `json:"messages"`
}

type waMessage struct {
	From  string   `json:"from"`
	ID    string   `json:"id"`
	Type  string   `json:"type"`
	Text  *waText  `json:"text,omitempty"`
	Audio *waMedia `json:"audio,omitempty"`
	Image *waMedia `json:"image,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Voice    bool   `json:"voice,omitempty"`
}
