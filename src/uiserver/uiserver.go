// Package uiserver serves the minimal browser terminal client: a
// path-based /ws/{id} endpoint, rows/cols resize fields, and llm_assist
// support in the client JS.
package uiserver

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Server serves the static terminal UI on its own Gin engine, bindable to
// a distinct host:port from the REST/WebSocket API.
type Server struct {
	restBaseURL string
	wsBaseURL   string
}

// New constructs a Server. restBaseURL and wsBaseURL point at the REST and
// WebSocket surfaces the page's JS should call — they may be the same
// host:port as this server or a different one entirely.
func New(restBaseURL, wsBaseURL string) *Server {
	return &Server{restBaseURL: restBaseURL, wsBaseURL: wsBaseURL}
}

// Engine builds a standalone Gin engine serving the UI. Kept separate from
// the REST API's engine so the UI can be disabled (--no-ui) or bound to a
// different port without touching the REST router.
func (s *Server) Engine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/", s.handleIndex)
	r.GET("/s/:id", s.handleIndex)

	return r
}

func (s *Server) handleIndex(c *gin.Context) {
	sessionID := c.Param("id") // empty on "/": the page creates one itself
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, renderTerminalPage(s.restBaseURL, s.wsBaseURL, sessionID))
}

// Run starts the UI engine and logs its listen address.
func (s *Server) Run(addr string) error {
	logrus.Infof("uiserver: listening on %s", addr)
	return s.Engine().Run(addr)
}

func renderTerminalPage(restBaseURL, wsBaseURL, sessionID string) string {
	return fmt.Sprintf(terminalPageTemplate, restBaseURL, wsBaseURL, sessionID)
}
