// Package summarize generates meeting summaries from transcripts
// through ollama, OpenAI or Anthropic chat backends.
package summarize
