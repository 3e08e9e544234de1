// Package tokens estimates the token footprint of a chat transcript so callers
// can watch it grow against a budget.
package tokens

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"

	"github.com/tjfontaine/flowchat/internal/transcript"
)

const (
	// Overhead per turn for chat formatting: 3 tokens per message + 1 for role.
	tokensPerMessage = 3
	tokensPerRole    = 1
	// Assistant priming at the end of a chat prompt.
	primingTokens = 3

	charsPerToken = 4.0
)

// Counter counts tokens with the cl100k_base encoding, falling back to a
// character-based estimate when the codec cannot be loaded.
type Counter struct {
	encoding tokenizer.Encoding

	once  sync.Once
	codec tokenizer.Codec
	err   error
}

// NewCounter creates a counter for cl100k_base.
func NewCounter() *Counter {
	return &Counter{encoding: tokenizer.Cl100kBase}
}

func (c *Counter) getCodec() (tokenizer.Codec, error) {
	c.once.Do(func() {
		c.codec, c.err = tokenizer.Get(c.encoding)
	})
	return c.codec, c.err
}

// CountText counts tokens for a plain text string.
func (c *Counter) CountText(text string) int {
	if text == "" {
		return 0
	}
	codec, err := c.getCodec()
	if err != nil {
		return estimate(len(text))
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return estimate(len(text))
	}
	return len(ids)
}

// CountTurns counts the tokens a transcript would occupy as chat history.
// An empty transcript counts as zero.
func (c *Counter) CountTurns(turns []transcript.Turn) int {
	if len(turns) == 0 {
		return 0
	}

	total := primingTokens
	for _, turn := range turns {
		total += tokensPerMessage + tokensPerRole
		total += c.CountText(turn.Content)
	}
	return total
}

func estimate(chars int) int {
	n := int(float64(chars) / charsPerToken)
	if n == 0 && chars > 0 {
		n = 1
	}
	return n
}
