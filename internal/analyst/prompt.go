package analyst

import "fmt"

// promptTemplate is the fixed analyst instruction rendered for every query.
// The refusal sentence keeps the model from answering beyond the retrieved
// context.
const promptTemplate = `You are an elite financial analyst.
Use the provided historical context and live news to answer the user's question.
If the answer is not contained in the context, say "I do not have enough data to answer this."

Historical Context (Wisdom):
%s

Live News (The Wire):
%s

Question: %s
`

// renderPrompt fills the analyst template with the two labeled context
// blocks and the user's question.
func renderPrompt(wisdomContext, wireContext, question string) string {
	return fmt.Sprintf(promptTemplate, wisdomContext, wireContext, question)
}
