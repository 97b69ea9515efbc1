package dispatch

import "vocabot/internal/domain"

// Whitelist is the gate at pipeline entry: a pure predicate over the
// sender's phone number. An empty list denies everyone unless allowAll
// was set explicitly.
type Whitelist struct {
	allowAll bool
	numbers  map[string]struct{}
}

func NewWhitelist(numbers []string, allowAll bool) *Whitelist {
	w := &Whitelist{
		allowAll: allowAll,
		numbers:  make(map[string]struct{}, len(numbers)),
	}
	for _, n := range numbers {
		if norm := domain.NormalizeNumber(n); norm != "" {
			w.numbers[norm] = struct{}{}
		}
	}
	return w
}

func (w *Whitelist) Allowed(sender string) bool {
	if w.allowAll {
		return true
	}
	_, ok := w.numbers[domain.NormalizeNumber(sender)]
	return ok
}
