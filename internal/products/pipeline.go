package products

import (
	"context"
	"fmt"
	"strings"

	"github.com/EASONTAN03/zus-api-deployment/internal/openai"
	"github.com/EASONTAN03/zus-api-deployment/internal/query"
)

// NoResultsMessage is returned when the index yields zero matches.
const NoResultsMessage = "I couldn't find any relevant products based on your query. Please try a different query."

const summarySystemPrompt = `You are a helpful assistant for ZUS Coffee. Based on the following product information, provide a concise and informative summary that answers the user's question.`

// Chatter is the chat completion interface the pipeline summarizes with.
type Chatter interface {
	Chat(ctx context.Context, messages []openai.Message) (string, error)
}

// Result is the product pipeline output.
type Result struct {
	Summary string  `json:"summary"`
	Matches []Match `json:"retrieved_products"`
}

// Pipeline turns a free-text product question into matched catalog entries
// plus a natural-language summary.
type Pipeline struct {
	embedder *Embedder
	index    Index
	llm      Chatter
}

// NewPipeline creates a product retrieval Pipeline.
func NewPipeline(embedder *Embedder, index Index, llm Chatter) *Pipeline {
	return &Pipeline{embedder: embedder, index: index, llm: llm}
}

// Search embeds the query, fetches the topK nearest products, and summarizes
// them. Zero matches short-circuit to NoResultsMessage without a
// summarization call. Each provider call is attempted exactly once.
func (p *Pipeline) Search(ctx context.Context, q string, topK int) (Result, error) {
	vec, err := p.embedder.Embed(ctx, q)
	if err != nil {
		return Result{}, fmt.Errorf("embedding query: %w", err)
	}

	matches, err := p.index.Query(ctx, vec, topK)
	if err != nil {
		return Result{}, fmt.Errorf("querying index: %w", err)
	}

	if len(matches) == 0 {
		return Result{Summary: NoResultsMessage, Matches: []Match{}}, nil
	}

	raw, err := p.llm.Chat(ctx, summaryPrompt(q, matches))
	if err != nil {
		return Result{}, fmt.Errorf("summarizing matches: %w", err)
	}

	return Result{Summary: query.CleanAnswer(raw), Matches: matches}, nil
}

// summaryPrompt builds the summarization messages from the matched products.
func summaryPrompt(q string, matches []Match) []openai.Message {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	for i, m := range matches {
		if i > 0 {
			sb.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&sb, "Product Name: %s\n", m.Name)
		fmt.Fprintf(&sb, "Category: %s\n", m.Category)
		fmt.Fprintf(&sb, "Colors Available: %s\n", m.Color)
		fmt.Fprintf(&sb, "Price: %.2f\n", m.Price)
		fmt.Fprintf(&sb, "Description Snippet: %s", m.Description)
	}
	fmt.Fprintf(&sb, "\n\nUser Question: %s", q)

	return []openai.Message{
		{Role: "system", Content: summarySystemPrompt},
		{Role: "user", Content: sb.String()},
	}
}
