package providers

import (
	"context"
	"errors"

	"github.com/arielsz/jarvisz/pkg/config"
)

// ErrRateLimited is returned once the retry budget for 429/quota responses is
// exhausted. Callers translate it into a fixed in-voice apology.
var ErrRateLimited = errors.New("llm backend rate limited")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompleteOptions struct {
	Temperature float64
	MaxTokens   int
}

// LLMProvider is the black-box completion capability: messages in, text out.
type LLMProvider interface {
	Complete(ctx context.Context, messages []Message, opts CompleteOptions) (string, error)
}

// FromConfig builds an OpenAI-compatible provider from one provider block.
func FromConfig(pc config.ProviderConfig) *HTTPProvider {
	return NewHTTPProvider(pc.APIKey, pc.APIBase, pc.Model)
}
