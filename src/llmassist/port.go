// Package llmassist defines the narrow port the WebSocket bridge uses to
// hand command/output analysis off to an external LLM, plus the
// session-scoped conversation bookkeeping. The real implementation
// (HTTP/WebSocket client to the LLM adapter service) lives in
// src/llmadapter so this package, and anything built on it, stays
// testable without a live external service.
package llmassist

import "context"

// AnalyzerPort is the external port the bridge calls for command and
// output analysis. It must be safe to call concurrently for different
// sessions, and any single call must not block other sessions' calls.
type AnalyzerPort interface {
	AnalyzeCommand(ctx context.Context, sessionID, command string) (string, error)
	AnalyzeOutput(ctx context.Context, sessionID, command, output string) (string, error)
}

// DefaultSystemPrompt seeds every session's conversation context.
const DefaultSystemPrompt = "You are a terminal assistant that helps users with command-line tasks. " +
	"Provide concise explanations and suggestions for terminal commands. " +
	"Focus on being helpful, accurate, and security-conscious."
