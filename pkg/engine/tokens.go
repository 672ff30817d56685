package engine

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken
)

// truncateTokens bounds text to roughly max tokens using the cl100k_base
// encoding. When the encoder cannot be loaded (offline environments), it
// falls back to a word-count approximation so page content is still bounded.
func truncateTokens(text string, max int) string {
	if max <= 0 {
		return text
	}

	encodingOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			encoding = enc
		}
	})

	if encoding != nil {
		tokens := encoding.Encode(text, nil, nil)
		if len(tokens) <= max {
			return text
		}
		return encoding.Decode(tokens[:max]) + "..."
	}

	words := strings.Fields(text)
	if len(words) <= max {
		return text
	}
	return strings.Join(words[:max], " ") + "..."
}
