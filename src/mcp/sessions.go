package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/terma-io/terma/src/terminal"
)

// Session tool input/output types, mirroring the REST surface in
// src/handler/sessions.go so both faces agree on the same registry ops.

type SessionsListInput struct{}

type SessionsListOutput struct {
	Sessions []terminal.Info `json:"sessions"`
}

type SessionCreateInput struct {
	ID           *string           `json:"id,omitempty" jsonschema:"Caller-supplied session id; a UUID is generated if omitted"`
	ShellCommand *string           `json:"shellCommand,omitempty" jsonschema:"Shell command to run (default: $SHELL or /bin/sh)"`
	WorkingDir   *string           `json:"workingDir,omitempty" jsonschema:"Working directory for the shell"`
	Env          map[string]string `json:"env,omitempty" jsonschema:"Extra environment variables for the shell"`
	Cols         *int              `json:"cols,omitempty" jsonschema:"Initial terminal width in columns (default 80)"`
	Rows         *int              `json:"rows,omitempty" jsonschema:"Initial terminal height in rows (default 24)"`
}

type SessionCreateOutput struct {
	SessionID string `json:"sessionId"`
	Created   bool   `json:"created"`
}

type SessionIdentifierInput struct {
	SessionID string `json:"sessionId" jsonschema:"Target session id"`
}

type SessionWriteInput struct {
	SessionID string `json:"sessionId" jsonschema:"Target session id"`
	Data      string `json:"data" jsonschema:"Raw bytes to write to the session's stdin"`
}

type SessionWriteOutput struct {
	BytesWritten int `json:"bytesWritten"`
}

type SessionReadInput struct {
	SessionID string `json:"sessionId" jsonschema:"Target session id"`
	Size      *int   `json:"size,omitempty" jsonschema:"Maximum number of trailing bytes to return (default 4096)"`
}

type SessionReadOutput struct {
	Data string `json:"data"`
}

type SessionStatusOutput struct {
	Status string `json:"status"`
}

const defaultReadSize = 4096

// registerSessionTools registers the tools that manage and drive terminal
// sessions, the MCP-facing twin of src/handler/sessions.go.
func (s *Server) registerSessionTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sessionsList",
		Description: "List every active terminal session",
	}, LogToolCall("sessionsList", func(ctx context.Context, req *mcp.CallToolRequest, input SessionsListInput) (*mcp.CallToolResult, SessionsListOutput, error) {
		return nil, SessionsListOutput{Sessions: s.registry.List()}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sessionCreate",
		Description: "Create a new terminal session backed by a real PTY and shell",
	}, LogToolCall("sessionCreate", func(ctx context.Context, req *mcp.CallToolRequest, input SessionCreateInput) (*mcp.CallToolResult, SessionCreateOutput, error) {
		id := ""
		if input.ID != nil {
			id = *input.ID
		}
		opts := terminal.CreateOptions{Env: input.Env}
		if input.ShellCommand != nil {
			opts.ShellCommand = *input.ShellCommand
		}
		if input.WorkingDir != nil {
			opts.WorkingDir = *input.WorkingDir
		}
		if input.Cols != nil {
			opts.Cols = uint16(*input.Cols)
		}
		if input.Rows != nil {
			opts.Rows = uint16(*input.Rows)
		}

		sessionID, err := s.registry.Create(id, opts)
		if err != nil && !errors.Is(err, terminal.ErrDuplicateSession) {
			return nil, SessionCreateOutput{}, fmt.Errorf("failed to create session: %w", err)
		}
		return nil, SessionCreateOutput{SessionID: sessionID, Created: err == nil}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sessionGet",
		Description: "Get metadata for a single terminal session",
	}, LogToolCall("sessionGet", func(ctx context.Context, req *mcp.CallToolRequest, input SessionIdentifierInput) (*mcp.CallToolResult, terminal.Info, error) {
		t, err := s.registry.Get(input.SessionID)
		if err != nil {
			return nil, terminal.Info{}, fmt.Errorf("failed to get session: %w", err)
		}
		return nil, t.Info(), nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sessionWrite",
		Description: "Write raw input bytes to a session's shell, as if typed at the keyboard",
	}, LogToolCall("sessionWrite", func(ctx context.Context, req *mcp.CallToolRequest, input SessionWriteInput) (*mcp.CallToolResult, SessionWriteOutput, error) {
		n, err := s.registry.Write(input.SessionID, []byte(input.Data))
		if err != nil {
			return nil, SessionWriteOutput{}, fmt.Errorf("failed to write to session: %w", err)
		}
		return nil, SessionWriteOutput{BytesWritten: n}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sessionRead",
		Description: "Read the trailing output a session's shell has produced",
	}, LogToolCall("sessionRead", func(ctx context.Context, req *mcp.CallToolRequest, input SessionReadInput) (*mcp.CallToolResult, SessionReadOutput, error) {
		size := defaultReadSize
		if input.Size != nil {
			size = *input.Size
		}
		data, err := s.registry.Peek(input.SessionID, size)
		if err != nil {
			return nil, SessionReadOutput{}, fmt.Errorf("failed to read session: %w", err)
		}
		return nil, SessionReadOutput{Data: string(data)}, nil
	}))

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "sessionClose",
		Description: "Terminate a session's shell process and free its resources",
	}, LogToolCall("sessionClose", func(ctx context.Context, req *mcp.CallToolRequest, input SessionIdentifierInput) (*mcp.CallToolResult, SessionStatusOutput, error) {
		if !s.registry.Close(input.SessionID) {
			return nil, SessionStatusOutput{}, fmt.Errorf("session not found: %s", input.SessionID)
		}
		return nil, SessionStatusOutput{Status: "closed"}, nil
	}))
}
