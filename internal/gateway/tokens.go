package gateway

import (
	"log/slog"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"

	"github.com/zhengjr9/edgechat/internal/api"
)

// TokenCounter estimates token counts when the runtime does not report them.
type TokenCounter interface {
	Count(text string) int
}

// The BPE ranks are embedded; the default loader would fetch them over the
// network with no deadline.
func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// tiktokenCounter uses the cl100k_base encoding. The encoding is loaded on
// first use; if it cannot be loaded the counter falls back to a
// four-characters-per-token heuristic.
type tiktokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTiktokenCounter returns the default TokenCounter.
func NewTiktokenCounter() TokenCounter {
	return &tiktokenCounter{}
}

func (c *tiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			slog.Warn("token encoding unavailable, using heuristic", "error", err)
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return HeuristicCounter{}.Count(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// HeuristicCounter approximates one token per four bytes of text.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

// countMessages estimates the prompt size of a chat history, including the
// small per-message framing overhead chat templates add.
func countMessages(c TokenCounter, msgs []api.Message) int {
	const perMessage = 4
	n := 0
	for _, m := range msgs {
		n += perMessage + c.Count(m.Role) + c.Count(m.Content)
	}
	return n
}
