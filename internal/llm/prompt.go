package llm

import (
	"fmt"
	"strings"
)

// MaxHistoryExamples caps how many prior categorizations go into a prompt.
const MaxHistoryExamples = 10

const systemPrompt = "You are a financial transaction categorizer for bookkeeping. " +
	"You MUST respond with ONLY a valid JSON object. Do not include any explanatory text, " +
	"markdown formatting, or commentary before or after the JSON. Start your response directly with { and end with }."

// renderPrompt builds the user message shared by all backends.
func renderPrompt(p Prompt) string {
	txn := p.Transaction

	var details strings.Builder
	fmt.Fprintf(&details, "Description: %s\n", txn.Description)
	if txn.Merchant != "" {
		fmt.Fprintf(&details, "Merchant: %s\n", txn.Merchant)
	}
	fmt.Fprintf(&details, "Amount: %s\n", txn.Amount.StringFixed(2))
	if !txn.OccurredAt.IsZero() {
		fmt.Fprintf(&details, "Date: %s\n", txn.OccurredAt.Format("2006-01-02"))
	}
	if txn.Reference != "" {
		fmt.Fprintf(&details, "Reference: %s\n", txn.Reference)
	}

	var history strings.Builder
	examples := p.History
	if len(examples) > MaxHistoryExamples {
		examples = examples[:MaxHistoryExamples]
	}
	for _, h := range examples {
		fmt.Fprintf(&history, "- %q -> %s", h.Description, h.Category)
		if h.Subcategory != "" {
			fmt.Fprintf(&history, " / %s", h.Subcategory)
		}
		history.WriteString("\n")
	}
	if history.Len() == 0 {
		history.WriteString("(none)\n")
	}

	return fmt.Sprintf(`Categorize this financial transaction.

IMPORTANT GUIDELINES:
- Base your answer on what the transaction IS, judged from the merchant and description
- Prefer categories the user has used before when they fit
- Use short lowercase category names such as "software", "travel", "meals", "office_supplies"

Transaction Details:
%s
Recent categorizations for this user:
%s
Respond with JSON in exactly this shape:
{
  "category": "<category>",
  "subcategory": "<optional subcategory>",
  "confidence": <0.0-1.0>,
  "reasoning": "<one or two sentences>",
  "evidence": ["<fact supporting the choice>"],
  "alternatives": [{"category": "<category>", "confidence": <0.0-1.0>, "reasoning": "<why>"}],
  "rules": [{"pattern": "<merchant keyword>", "category": "<category>", "confidence": <0.0-1.0>}]
}`, details.String(), history.String())
}
