package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/terma-io/terma/src/llmassist"
)

type AssistCommandInput struct {
	SessionID string `json:"sessionId" jsonschema:"Session whose conversation context this belongs to"`
	Command   string `json:"command" jsonschema:"The shell command to explain"`
}

type AssistOutputInput struct {
	SessionID string `json:"sessionId" jsonschema:"Session whose conversation context this belongs to"`
	Command   string `json:"command" jsonschema:"The shell command that produced the output"`
	Output    string `json:"output" jsonschema:"The shell output to explain"`
}

type AssistOutput struct {
	Explanation string `json:"explanation"`
}

// registerAssistTools registers the LLM-backed explain tools, the MCP twin
// of the bridge's llm_assist WebSocket message (src/bridge/bridge.go).
func (s *Server) registerAssistTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "terminalAssistCommand",
		Description: "Ask the assistant to explain a shell command before running it",
	}, LogToolCall("terminalAssistCommand", func(ctx context.Context, req *mcp.CallToolRequest, input AssistCommandInput) (*mcp.CallToolResult, AssistOutput, error) {
		s.context.Append(input.SessionID, "user", input.Command)
		explanation, err := s.analyzer.AnalyzeCommand(ctx, input.SessionID, input.Command)
		if err != nil {
			return nil, AssistOutput{}, fmt.Errorf("failed to analyze command: %w", err)
		}
		s.context.Append(input.SessionID, "assistant", explanation)
		return nil, AssistOutput{Explanation: explanation}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "terminalAssistOutput",
		Description: "Ask the assistant to explain a command's output",
	}, LogToolCall("terminalAssistOutput", func(ctx context.Context, req *mcp.CallToolRequest, input AssistOutputInput) (*mcp.CallToolResult, AssistOutput, error) {
		s.context.Append(input.SessionID, "user", input.Command+"\nOutput:\n"+llmassist.TruncateOutput(input.Output, 2000))
		explanation, err := s.analyzer.AnalyzeOutput(ctx, input.SessionID, input.Command, input.Output)
		if err != nil {
			return nil, AssistOutput{}, fmt.Errorf("failed to analyze output: %w", err)
		}
		s.context.Append(input.SessionID, "assistant", explanation)
		return nil, AssistOutput{Explanation: explanation}, nil
	}))
}
