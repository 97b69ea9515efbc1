package channel

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"vocabot/internal/config"
	"vocabot/internal/domain"
)

func testChannelLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// captureBus records published inbound messages.
type captureBus struct {
	mu  sync.Mutex
	in  []domain.InboundMessage
	out []domain.OutboundMessage
}

func (b *captureBus) Publish(_ context.Context, msg domain.InboundMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.in = append(b.in, msg)
}

func (b *captureBus) Subscribe() <-chan domain.InboundMessage { return nil }

func (b *captureBus) OnOutbound(string, func(domain.OutboundMessage)) {}

func (b *captureBus) Close() {}

func (b *captureBus) SendOutbound(msg domain.OutboundMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.out = append(b.out, msg)
}

func (b *captureBus) published() []domain.InboundMessage {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.InboundMessage(nil), b.in...)
}

func newTestCloudAPI(cfg config.CloudAPIConfig, apiBase string) (*CloudAPI, *captureBus) {
	c := NewCloudAPI(CloudAPIChannelConfig{Config: cfg, Logger: testChannelLogger(), APIBase: apiBase})
	bus := &captureBus{}
	c.bus = bus
	c.mux = http.NewServeMux()
	path := cfg.WebhookPath
	if path == "" {
		path = "/webhook/whatsapp"
	}
	c.mux.HandleFunc("GET "+path, c.handleVerification)
	c.mux.HandleFunc("POST "+path, c.handleIncoming)
	return c, bus
}

func TestCloudAPIVerification(t *testing.T) {
	c, _ := newTestCloudAPI(config.CloudAPIConfig{VerifyToken: "tok"}, "")
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=tok&hub.challenge=12345")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "12345" {
		t.Fatalf("challenge echo = %q", body)
	}
}

func TestCloudAPIVerificationWrongToken(t *testing.T) {
	c, _ := newTestCloudAPI(config.CloudAPIConfig{VerifyToken: "tok"}, "")
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/webhook/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

func webhookBody(t *testing.T, msg waMessage) []byte {
	t.Helper()
	payload := waPayload{
		Object: "whatsapp_business_account",
		Entry: []waEntry{{
			Changes: []waChange{{
				Field: "messages",
				Value: waValue{Messages: []waMessage{msg}},
			}},
		}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	return body
}

func TestCloudAPITextMessagePublished(t *testing.T) {
	c, bus := newTestCloudAPI(config.CloudAPIConfig{}, "")
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	body := webhookBody(t, waMessage{From: "33612345678", Type: "text", Text: &waText{Body: "!ping"}})
	resp, err := http.Post(srv.URL+"/webhook/whatsapp", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	in := bus.published()
	if len(in) != 1 {
		t.Fatalf("published %d messages, want 1", len(in))
	}
	if in[0].Body != "!ping" || in[0].Kind != domain.KindText || in[0].SenderID != "33612345678" {
		t.Fatalf("published = %+v", in[0])
	}
}

func TestCloudAPIVoiceNoteKind(t *testing.T) {
	c, bus := newTestCloudAPI(config.CloudAPIConfig{}, "")
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	body := webhookBody(t, waMessage{
		From: "33612345678", Type: "audio",
		Audio: &waMedia{ID: "media-1", MimeType: "audio/ogg", Voice: true},
	})
	resp, err := http.Post(srv.URL+"/webhook/whatsapp", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	in := bus.published()
	if len(in) != 1 {
		t.Fatalf("published %d messages, want 1", len(in))
	}
	if in[0].Kind != domain.KindVoice || !in[0].HasMedia || in[0].Download == nil {
		t.Fatalf("published = %+v, want a downloadable voice note", in[0])
	}
}

func TestCloudAPISignatureRequired(t *testing.T) {
	c, bus := newTestCloudAPI(config.CloudAPIConfig{AppSecret: "secret"}, "")
	srv := httptest.NewServer(c.Handler())
	defer srv.Close()

	body := webhookBody(t, waMessage{From: "1", Type: "text", Text: &waText{Body: "hi"}})

	// no signature
	resp, err := http.Post(srv.URL+"/webhook/whatsapp", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("unsigned status = %d, want 403", resp.StatusCode)
	}

	// valid signature
	mac := hmac.New(sha256.New, []byte("secret"))
	mac.Write(body)
	sig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	req, _ := http.NewRequest("POST", srv.URL+"/webhook/whatsapp", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", sig)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("signed status = %d, want 200", resp.StatusCode)
	}
	if len(bus.published()) != 1 {
		t.Fatal("signed message should be published")
	}
}

func TestCloudAPIMediaDownload(t *testing.T) {
	var gotAuth string
	api := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		switch r.URL.Path {
		case "/media-1":
			json.NewEncoder(rw).Encode(map[string]string{
				"url":       "http://" + r.Host + "/files/media-1",
				"mime_type": "audio/ogg",
			})
		case "/files/media-1":
			rw.Write([]byte("opus-bytes"))
		default:
			http.NotFound(rw, r)
		}
	}))
	defer api.Close()

	c, _ := newTestCloudAPI(config.CloudAPIConfig{AccessToken: "token-1"}, api.URL)
	download := c.downloader("media-1", "audio/mpeg")

	payload, err := download(context.Background())
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(payload.Data) != "opus-bytes" {
		t.Fatalf("data = %q", payload.Data)
	}
	if payload.MimeType != "audio/ogg" {
		t.Fatalf("mime = %q, metadata should win over the webhook hint", payload.MimeType)
	}
	if gotAuth != "Bearer token-1" {
		t.Fatalf("auth header = %q", gotAuth)
	}
}

func TestCloudAPISend(t *testing.T) {
	var gotBody map[string]any
	api := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/phone-1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		rw.WriteHeader(http.StatusOK)
	}))
	defer api.Close()

	c, _ := newTestCloudAPI(config.CloudAPIConfig{AccessToken: "tok", PhoneNumberID: "phone-1"}, api.URL)
	if err := c.Send(context.Background(), "33612345678", "bonjour"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotBody["to"] != "33612345678" {
		t.Errorf("to = %v", gotBody["to"])
	}
	text, _ := gotBody["text"].(map[string]any)
	if text["body"] != "bonjour" {
		t.Errorf("body = %v", text["body"])
	}
}
