// Package dispatch contains the message-routing core: the whitelist gate,
// the command/media/menu registries and the dispatcher that classifies
// each inbound message and routes it, first match wins.
package dispatch

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"vocabot/internal/domain"
	"vocabot/internal/metrics"
	"vocabot/internal/store"
)

const defaultConcurrency = 5

// menuChoiceRe matches the menu-choice alphabet: one bare digit 1-4.
var menuChoiceRe = regexp.MustCompile(`^[1-4]$`)

// Dispatcher consumes inbound messages from the bus and routes each one in
// strict priority order: pending menu reply, then command, then media.
// It is stateless across invocations except for what it reads and writes
// in the state store.
type Dispatcher struct {
	bus         domain.MessageBus
	registry    *Registry
	whitelist   *Whitelist
	states      *store.StateStore
	prefix      string
	logger      *slog.Logger
	concurrency int
}

// DispatcherConfig holds all dependencies for the dispatcher. Registries
// and stores are injected at startup; nothing is resolved lazily at call
// time.
type DispatcherConfig struct {
	Bus         domain.MessageBus
	Registry    *Registry
	Whitelist   *Whitelist
	States      *store.StateStore
	Prefix      string
	Logger      *slog.Logger
	Concurrency int
}

func New(cfg DispatcherConfig) *Dispatcher {
	if cfg.Prefix == "" {
		cfg.Prefix = "!"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	return &Dispatcher{
		bus:         cfg.Bus,
		registry:    cfg.Registry,
		whitelist:   cfg.Whitelist,
		states:      cfg.States,
		prefix:      cfg.Prefix,
		logger:      cfg.Logger,
		concurrency: cfg.Concurrency,
	}
}

// Run consumes inbound messages until the context is cancelled or the bus
// closes. Messages from different senders may be handled concurrently; a
// semaphore bounds the number in flight.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started", "prefix", d.prefix, "concurrency", d.concurrency)

	sem := make(chan struct{}, d.concurrency)
	inbound := d.bus.Subscribe()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopping")
			return
		case msg, ok := <-inbound:
			if !ok {
				d.logger.Info("inbound channel closed, dispatcher stopping")
				return
			}
			sem <- struct{}{}
			go func(m domain.InboundMessage) {
				defer func() { <-sem }()
				d.Dispatch(ctx, m)
			}(msg)
		}
	}
}

// Dispatch routes a single message. No error from one message's handling
// may escape: failures are logged and the next message proceeds.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.InboundMessage) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in message handler", "panic", r, "sender", msg.SenderID)
		}
	}()

	metrics.MessagesTotal.Inc()

	// Every store key downstream derives from SenderID; canonicalize it
	// once here so varying JID forms map to the same state.
	msg.SenderID = domain.NormalizeNumber(msg.SenderID)

	if !d.whitelist.Allowed(msg.SenderID) {
		metrics.MessagesRejected.Inc()
		d.logger.Info("sender not whitelisted, ignoring", "sender", msg.SenderID)
		return
	}

	send := func(text string) {
		d.bus.SendOutbound(domain.OutboundMessage{
			Channel: msg.Channel,
			ChatID:  msg.ChatID,
			Content: text,
		})
	}

	body := strings.TrimSpace(msg.Body)

	// 1. Bare digit while a menu is pending. An unrecognized choice falls
	// through without clearing state, so the user can retry or a command
	// can take precedence.
	if menuChoiceRe.MatchString(body) {
		if action := d.states.PendingAction(msg.SenderID); action != store.PendingNone {
			if resolver, ok := d.registry.Resolver(action); ok {
				handled, err := resolver(ctx, msg, body, send)
				if err != nil {
					d.logger.Error("menu resolution failed",
						"sender", msg.SenderID, "action", string(action), "err", err)
				}
				if handled {
					metrics.MenuRepliesTotal.Inc()
					return
				}
			}
		}
	}

	// 2. Prefixed command. Unknown names fall through silently.
	if strings.HasPrefix(body, d.prefix) {
		parts := strings.Fields(strings.TrimPrefix(body, d.prefix))
		if len(parts) > 0 {
			if cmd, ok := d.registry.Command(parts[0]); ok {
				metrics.CommandsTotal.Inc()
				d.logger.Info("command", "name", cmd.Name, "sender", msg.SenderID)
				if err := cmd.Execute(ctx, msg, parts[1:], send); err != nil {
					d.logger.Error("command failed", "name", cmd.Name, "err", err)
				}
				return
			}
		}
	}

	// 3. Unsolicited media. Unsupported kinds are silently dropped.
	if msg.HasMedia {
		if h, ok := d.registry.MediaHandler(msg.Kind); ok {
			metrics.MediaTotal.Inc()
			d.logger.Info("media", "kind", string(msg.Kind), "sender", msg.SenderID)
			if err := h.Execute(ctx, msg, send); err != nil {
				d.logger.Error("media handler failed", "kind", string(msg.Kind), "err", err)
			}
			return
		}
	}

	d.logger.Debug("message not claimed by any handler", "sender", msg.SenderID, "kind", string(msg.Kind))
}
