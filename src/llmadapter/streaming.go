package llmadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coder/websocket"
	"github.com/sirupsen/logrus"
)

// streamFrame is one chunk of a streaming analysis response from the
// Tekton LLM service's WebSocket endpoint.
type streamFrame struct {
	Delta string `json:"delta"`
	Done  bool   `json:"done"`
	Error string `json:"error,omitempty"`
}

// StreamingAnalyzer is an AnalyzerPort backed by a WebSocket connection to
// the LLM service, used when the adapter advertises streaming support. It
// coalesces partial tokens internally so callers (the bridge) still only
// ever see one final string per call, even though the transport streams.
//
// This is intentionally a distinct transport from the bridge's own
// gorilla/websocket server side: the adapter is a WebSocket *client* here,
// built on github.com/coder/websocket rather than gorilla's client
// helpers, keeping the outbound LLM client and the inbound terminal
// server on separate websocket stacks.
type StreamingAnalyzer struct {
	cfg Config
}

func NewStreamingAnalyzer(cfg Config) *StreamingAnalyzer {
	return &StreamingAnalyzer{cfg: cfg}
}

func (s *StreamingAnalyzer) AnalyzeCommand(ctx context.Context, sessionID, command string) (string, error) {
	prompt := fmt.Sprintf("Please explain this command concisely: %s", command)
	return s.stream(ctx, sessionID, prompt)
}

func (s *StreamingAnalyzer) AnalyzeOutput(ctx context.Context, sessionID, command, output string) (string, error) {
	prompt := fmt.Sprintf(
		"The user ran this command:\n%s\n\nIt produced this output:\n%s\n\nExplain what happened concisely.",
		command, output,
	)
	return s.stream(ctx, sessionID, prompt)
}

func (s *StreamingAnalyzer) stream(ctx context.Context, sessionID, prompt string) (string, error) {
	wsURL := strings.Replace(s.cfg.AdapterURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL += "/analyze/stream"

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return "", fmt.Errorf("llmadapter: dial stream: %w", err)
	}
	defer conn.CloseNow()

	reqBody := analyzeRequest{SessionID: sessionID, Provider: s.cfg.Provider, Model: s.cfg.Model, Prompt: prompt}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("llmadapter: marshal stream request: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
		return "", fmt.Errorf("llmadapter: write stream request: %w", err)
	}

	var builder strings.Builder
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return "", fmt.Errorf("llmadapter: read stream frame: %w", err)
		}

		var frame streamFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			logrus.Warnf("llmadapter: malformed stream frame for session %s: %v", sessionID, err)
			continue
		}
		if frame.Error != "" {
			_ = conn.Close(websocket.StatusNormalClosure, "analysis failed")
			return "", fmt.Errorf("llmadapter: %s", frame.Error)
		}
		builder.WriteString(frame.Delta)
		if frame.Done {
			_ = conn.Close(websocket.StatusNormalClosure, "")
			return builder.String(), nil
		}
	}
}
