package channel

import (
	"strings"
	"unicode/utf8"
)

// maxMessageLen matches the Cloud API text body limit; long analyses are
// sent as multiple messages.
const maxMessageLen = 4096

// splitMessage breaks a long message into chunks of at most maxLen bytes,
// preferring newline boundaries to keep paragraphs intact.
func splitMessage(msg string, maxLen int) []string {
	if len(msg) <= maxLen {
		return []string{msg}
	}

	var chunks []string
	for len(msg) > 0 {
		if len(msg) <= maxLen {
			chunks = append(chunks, msg)
			break
		}

		// Try to split on a newline.
		cut := maxLen
		if idx := strings.LastIndex(msg[:maxLen], "\n"); idx > maxLen/2 {
			cut = idx + 1
		} else {
			// Back up so the cut lands on a rune boundary.
			for cut > 0 && !utf8.RuneStart(msg[cut]) {
				cut--
			}
		}

		chunks = append(chunks, msg[:cut])
		msg = msg[cut:]
	}
	return chunks
}
