package mcp

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"

	"github.com/terma-io/terma/src/llmassist"
	"github.com/terma-io/terma/src/terminal"
)

// Server exposes Terma's session/assist surface as MCP tools, mounted
// under /mcp on the same Gin engine the REST API serves from.
type Server struct {
	mcpServer *mcp.Server
	registry  *terminal.Registry
	analyzer  llmassist.AnalyzerPort
	context   *llmassist.ContextStore
	engine    *gin.Engine
}

// NewServer creates a new MCP server using the official SDK, wired against
// the same terminal registry and LLM analyzer the REST API uses.
func NewServer(ginEngine *gin.Engine, registry *terminal.Registry, analyzer llmassist.AnalyzerPort, context *llmassist.ContextStore) (*Server, error) {
	logrus.Info("Creating MCP server")

	mcpServer := mcp.NewServer(
		&mcp.Implementation{
			Name:    "Terma Terminal Server",
			Version: "1.0.0",
		},
		nil,
	)

	server := &Server{
		mcpServer: mcpServer,
		registry:  registry,
		analyzer:  analyzer,
		context:   context,
		engine:    ginEngine,
	}

	logrus.Info("Registering tools")
	server.registerTools()
	logrus.Info("Tools registered")

	server.setupHTTPEndpoints()

	return server, nil
}

// Serve starts the MCP server. It is a no-op: the server is served via
// HTTP endpoints mounted on the shared Gin engine.
func (s *Server) Serve() error {
	return nil
}

// setupHTTPEndpoints mounts the MCP streamable-HTTP handler under /mcp.
func (s *Server) setupHTTPEndpoints() {
	handler := mcp.NewStreamableHTTPHandler(func(req *http.Request) *mcp.Server {
		return s.mcpServer
	}, nil)

	s.engine.Any("/mcp/*path", gin.WrapH(http.StripPrefix("/mcp", handler)))
	s.engine.Any("/mcp", gin.WrapH(handler))

	logrus.Info("MCP HTTP endpoints configured at /mcp")
}

// registerTools registers every tool Terma exposes over MCP.
func (s *Server) registerTools() {
	s.registerSessionTools()
	logrus.Info("Session tools registered")

	s.registerAssistTools()
	logrus.Info("Assist tools registered")
}
