package intent

import "github.com/EASONTAN03/zus-api-deployment/internal/openai"

const systemPrompt = `Classify the user's intent into one of the following categories:
- product: questions about ZUS Coffee products (drinkware, cups, tumblers, mugs, etc.)
- outlet: questions about ZUS Coffee outlets (locations, stores, branches, opening hours, etc.)
- general: general conversation or any other topic

Respond with only one word: "product", "outlet", or "general".`

// BuildPrompt constructs the chat messages for intent classification.
func BuildPrompt(q string) []openai.Message {
	return []openai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: q},
	}
}
