package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const encodingName = "cl100k_base"

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// loadEncoding fetches the BPE ranks on first use (cached under the tiktoken
// cache dir). When that fails the package falls back to a character heuristic.
func loadEncoding() {
	e, err := tiktoken.GetEncoding(encodingName)
	if err == nil {
		enc = e
	}
}

func encoder() *tiktoken.Tiktoken {
	encOnce.Do(loadEncoding)
	return enc
}

// CountTokens returns the number of prompt tokens in text.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if e := encoder(); e != nil {
		return len(e.EncodeOrdinary(text))
	}
	return (len([]rune(text)) + 3) / 4
}

// TruncateTokens cuts text to at most max tokens. max <= 0 keeps text whole.
func TruncateTokens(text string, max int) string {
	if max <= 0 || text == "" {
		return text
	}
	if e := encoder(); e != nil {
		toks := e.EncodeOrdinary(text)
		if len(toks) <= max {
			return text
		}
		return e.Decode(toks[:max])
	}
	r := []rune(text)
	if len(r) <= max*4 {
		return text
	}
	return string(r[:max*4])
}
