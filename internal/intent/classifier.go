package intent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/EASONTAN03/zus-api-deployment/internal/openai"
)

// Intent is the classified purpose of a user message. The set is closed:
// anything the model emits outside of it collapses to General.
type Intent string

const (
	Product Intent = "product"
	Outlet  Intent = "outlet"
	General Intent = "general"
)

// Chatter is the chat completion interface the classifier depends on.
type Chatter interface {
	Chat(ctx context.Context, messages []openai.Message) (string, error)
}

// Classifier labels a user message with a single-shot chat completion call.
type Classifier struct {
	client Chatter
}

// NewClassifier creates a Classifier using the given chat client.
func NewClassifier(client Chatter) *Classifier {
	return &Classifier{client: client}
}

// Classify returns the intent of the query. Intent is advisory routing, not
// correctness-critical, so every failure mode (provider error, unexpected
// label) degrades to General without surfacing an error. One call, no retry.
func (c *Classifier) Classify(ctx context.Context, q string) Intent {
	raw, err := c.client.Chat(ctx, BuildPrompt(q))
	if err != nil {
		slog.Warn("intent classification failed, falling back to general", "error", err)
		return General
	}

	switch Intent(strings.ToLower(strings.TrimSpace(raw))) {
	case Product:
		return Product
	case Outlet:
		return Outlet
	case General:
		return General
	default:
		slog.Warn("unexpected intent label, falling back to general", "label", raw)
		return General
	}
}
