// Package llm routes categorization prompts to interchangeable AI backends.
// It holds the provider registry, the weighted provider selector and one
// adapter per backend (OpenAI, Anthropic and Gemini), with shared rate
// limiting and typed provider errors.
package llm
