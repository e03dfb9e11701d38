package pdftext

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

const defaultEncoding = "cl100k_base"

// TokenCounter counts transcript tokens with a tiktoken encoding. The encoding is
// loaded lazily; when it cannot be loaded the counter estimates four characters per token.
type TokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

var getEncoding = tiktoken.GetEncoding

func NewTokenCounter(encoding string) *TokenCounter {
	if encoding == "" {
		encoding = defaultEncoding
	}
	return &TokenCounter{encoding: encoding}
}

func (c *TokenCounter) init() error {
	c.once.Do(func() {
		enc, err := getEncoding(c.encoding)
		if err != nil {
			c.initErr = fmt.Errorf("init tiktoken encoding %s: %w", c.encoding, err)
			return
		}
		c.enc = enc
	})
	return c.initErr
}

func (c *TokenCounter) Count(text string) int {
	if err := c.init(); err != nil {
		return EstimateTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// Err reports why the encoding is unavailable, if it is.
func (c *TokenCounter) Err() error {
	return c.init()
}

func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}
