package dispatch

import (
	"context"
	"sort"
	"strings"

	"vocabot/internal/domain"
	"vocabot/internal/store"
)

// SendFunc sends a text reply to the chat the current message came from.
type SendFunc func(text string)

// Command is a prefixed text command (for example "!ping"). Execute sends
// its own user-facing error messages for expected failures; a returned
// error is logged by the dispatcher, never propagated further.
type Command struct {
	Name        string
	Description string
	Execute     func(ctx context.Context, msg domain.InboundMessage, args []string, send SendFunc) error
}

// MediaHandler handles unsolicited media messages. A handler may claim
// several kinds (a voice note and a plain audio file route to the same
// handler).
type MediaHandler struct {
	Kinds       []domain.MessageKind
	Description string
	Execute     func(ctx context.Context, msg domain.InboundMessage, send SendFunc) error
}

// MenuResolver resolves a bare digit reply against a pending action. It
// returns true when the choice was recognized and the message consumed;
// false lets the message fall through to normal dispatch with the pending
// state intact.
type MenuResolver func(ctx context.Context, msg domain.InboundMessage, choice string, send SendFunc) (bool, error)

// Registry is the immutable-after-init lookup table for commands, media
// handlers and menu resolvers. All registration happens at startup; there
// is no dynamic re-registration.
type Registry struct {
	commands  map[string]Command
	media     []MediaHandler
	resolvers map[store.PendingAction]MenuResolver
}

func NewRegistry() *Registry {
	return &Registry{
		commands:  make(map[string]Command),
		resolvers: make(map[store.PendingAction]MenuResolver),
	}
}

func (r *Registry) RegisterCommand(cmds ...Command) {
	for _, cmd := range cmds {
		r.commands[strings.ToLower(cmd.Name)] = cmd
	}
}

func (r *Registry) RegisterMedia(handlers ...MediaHandler) {
	r.media = append(r.media, handlers...)
}

func (r *Registry) RegisterResolver(action store.PendingAction, fn MenuResolver) {
	r.resolvers[action] = fn
}

// Command looks up a command case-insensitively.
func (r *Registry) Command(name string) (Command, bool) {
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// MediaHandler returns the first handler claiming the given kind.
func (r *Registry) MediaHandler(kind domain.MessageKind) (MediaHandler, bool) {
	for _, h := range r.media {
		for _, k := range h.Kinds {
			if k == kind {
				return h, true
			}
		}
	}
	return MediaHandler{}, false
}

func (r *Registry) Resolver(action store.PendingAction) (MenuResolver, bool) {
	fn, ok := r.resolvers[action]
	return fn, ok
}

// Commands returns all registered commands sorted by name, for help text.
func (r *Registry) Commands() []Command {
	out := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
