// Package assistant produces the short replies behind the focus chat and the
// daily oracle. Only an offline generator ships with the server.
package assistant

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

// Reply length ceilings, in runes.
const (
	MaxChatReply   = 300
	MaxOracleReply = 200
	MaxQuote       = 200
)

// DefaultQuote is served when no quote can be generated.
const DefaultQuote = "Focus is the art of knowing what to ignore."

// ErrNoReply is returned by a generator with nothing to say.
var ErrNoReply = errors.New("assistant: no reply available")

// Generator turns a user prompt into a reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Topic is a canned reply chosen when the prompt mentions any of Keywords.
type Topic struct {
	Keywords []string
	Reply    string
}

// Fallback answers without any remote model. Topics are matched first, in
// order; otherwise one of the general replies is picked from a hash of the
// prompt, so the same prompt always gets the same answer.
type Fallback struct {
	topics  []Topic
	replies []string
}

// NewFallback returns a Fallback over the given topics and general replies.
func NewFallback(topics []Topic, replies []string) *Fallback {
	return &Fallback{topics: topics, replies: replies}
}

// NewOracleFallback returns the offline oracle.
func NewOracleFallback() *Fallback {
	return NewFallback(nil, oracleReplies)
}

// NewQuoteFallback returns the offline deep work quote source.
func NewQuoteFallback() *Fallback {
	return NewFallback(nil, quoteReplies)
}

// NewChatFallback returns the offline focus chat assistant.
func NewChatFallback() *Fallback {
	return NewFallback(chatTopics, []string{chatDefault})
}

func (f *Fallback) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	normalized := strings.ToLower(strings.TrimSpace(prompt))
	for _, t := range f.topics {
		for _, kw := range t.Keywords {
			if strings.Contains(normalized, kw) {
				return t.Reply, nil
			}
		}
	}

	if len(f.replies) == 0 {
		return "", ErrNoReply
	}
	return f.replies[xxhash.Sum64String(normalized)%uint64(len(f.replies))], nil
}

// Clean strips surrounding quotes and speaker labels from a generated reply
// and truncates it to max runes, ending with "..." when cut.
func Clean(reply string, max int) string {
	reply = strings.TrimSpace(reply)
	for _, label := range []string{"Assistant:", "Oracle:"} {
		if len(reply) >= len(label) && strings.EqualFold(reply[:len(label)], label) {
			reply = strings.TrimSpace(reply[len(label):])
		}
	}
	reply = strings.Trim(reply, `"'`)

	if max <= 3 || utf8.RuneCountInString(reply) <= max {
		return reply
	}
	runes := []rune(reply)
	return string(runes[:max-3]) + "..."
}
