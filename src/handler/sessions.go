package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/terma-io/terma/src/registry/hermesclient"
	"github.com/terma-io/terma/src/terminal"
)

// SessionsHandler implements the REST session-management surface.
type SessionsHandler struct {
	*BaseHandler
	registry *terminal.Registry
	hermes   *hermesclient.Client
}

func NewSessionsHandler(registry *terminal.Registry, hermes *hermesclient.Client) *SessionsHandler {
	return &SessionsHandler{
		BaseHandler: NewBaseHandler(),
		registry:    registry,
		hermes:      hermes,
	}
}

// SessionsResponse is the body of GET /api/sessions.
type SessionsResponse struct {
	Sessions []terminal.Info `json:"sessions"`
} // @name SessionsResponse

// CreateSessionRequest is the body of POST /api/sessions.
type CreateSessionRequest struct {
	ShellCommand string `json:"shell_command,omitempty"`
} // @name CreateSessionRequest

// CreateSessionResponse is the body of a successful POST /api/sessions.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	CreatedAt string `json:"created_at"`
} // @name CreateSessionResponse

// WriteRequest is the body of POST /api/sessions/{id}/write.
type WriteRequest struct {
	Data string `json:"data"`
} // @name WriteRequest

// WriteResponse is the body of a successful write.
type WriteResponse struct {
	Status       string `json:"status"`
	BytesWritten int    `json:"bytes_written"`
} // @name WriteResponse

// ReadResponse is the body of GET /api/sessions/{id}/read.
type ReadResponse struct {
	Data string `json:"data"`
} // @name ReadResponse

// StatusResponse is a generic {status:"success"} body.
type StatusResponse struct {
	Status string `json:"status"`
} // @name StatusResponse

// HandleList handles GET /api/sessions.
// @Summary List sessions
// @Tags sessions
// @Produce json
// @Success 200 {object} SessionsResponse
// @Router /api/sessions [get]
func (h *SessionsHandler) HandleList(c *gin.Context) {
	h.SendJSON(c, http.StatusOK, SessionsResponse{Sessions: h.registry.List()})
}

// HandleCreate handles POST /api/sessions.
// @Summary Create a session
// @Tags sessions
// @Accept json
// @Produce json
// @Param body body CreateSessionRequest false "optional shell command"
// @Success 200 {object} CreateSessionResponse
// @Failure 500 {object} ErrorResponse
// @Router /api/sessions [post]
func (h *SessionsHandler) HandleCreate(c *gin.Context) {
	var req CreateSessionRequest
	// An empty body is valid (defaults apply); only reject malformed JSON.
	if c.Request.ContentLength > 0 {
		if err := h.BindJSON(c, &req); err != nil {
			h.SendError(c, http.StatusBadRequest, err)
			return
		}
	}

	id, err := h.registry.Create("", terminal.CreateOptions{ShellCommand: req.ShellCommand})
	if err != nil {
		h.SendError(c, http.StatusInternalServerError, err)
		return
	}

	info, err := h.registry.Get(id)
	if err != nil {
		h.SendError(c, http.StatusInternalServerError, err)
		return
	}

	h.hermes.PublishSessionCreated(c.Request.Context(), id)

	h.SendJSON(c, http.StatusOK, CreateSessionResponse{
		SessionID: id,
		CreatedAt: info.Info().CreatedAt.Format(time.RFC3339),
	})
}

// HandleGet handles GET /api/sessions/{id}.
// @Summary Get session info
// @Tags sessions
// @Produce json
// @Param id path string true "session id"
// @Success 200 {object} terminal.Info
// @Failure 404 {object} ErrorResponse
// @Router /api/sessions/{id} [get]
func (h *SessionsHandler) HandleGet(c *gin.Context) {
	id := c.Param("id")
	t, err := h.registry.Get(id)
	if err != nil {
		h.SendError(c, http.StatusNotFound, err)
		return
	}
	h.SendJSON(c, http.StatusOK, t.Info())
}

// HandleClose handles DELETE /api/sessions/{id}.
// @Summary Close a session
// @Tags sessions
// @Produce json
// @Param id path string true "session id"
// @Success 200 {object} StatusResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/sessions/{id} [delete]
func (h *SessionsHandler) HandleClose(c *gin.Context) {
	id := c.Param("id")
	if !h.registry.Close(id) {
		h.SendError(c, http.StatusNotFound, terminal.ErrSessionNotFound)
		return
	}
	h.hermes.PublishSessionClosed(c.Request.Context(), id)
	h.SendJSON(c, http.StatusOK, StatusResponse{Status: "success"})
}

// HandleWrite handles POST /api/sessions/{id}/write.
// @Summary Write input to a session
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path string true "session id"
// @Param body body WriteRequest true "data to write"
// @Success 200 {object} WriteResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/sessions/{id}/write [post]
func (h *SessionsHandler) HandleWrite(c *gin.Context) {
	id := c.Param("id")

	var req WriteRequest
	if err := h.BindJSON(c, &req); err != nil {
		h.SendError(c, http.StatusBadRequest, err)
		return
	}

	n, err := h.registry.Write(id, []byte(req.Data))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, terminal.ErrSessionNotFound) {
			status = http.StatusNotFound
		}
		h.SendError(c, status, err)
		return
	}

	h.SendJSON(c, http.StatusOK, WriteResponse{Status: "success", BytesWritten: n})
}

// HandleRead handles GET /api/sessions/{id}/read?size=N.
// @Summary Read recent output from a session
// @Tags sessions
// @Produce json
// @Param id path string true "session id"
// @Param size query int false "max bytes to return, most recent first"
// @Success 200 {object} ReadResponse
// @Failure 404 {object} ErrorResponse
// @Router /api/sessions/{id}/read [get]
func (h *SessionsHandler) HandleRead(c *gin.Context) {
	id := c.Param("id")

	size := 0
	if raw := c.Query("size"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.SendError(c, http.StatusBadRequest, terminal.ErrBadArgument)
			return
		}
		size = parsed
	}

	data, err := h.registry.Peek(id, size)
	if err != nil {
		h.SendError(c, http.StatusNotFound, err)
		return
	}
	h.SendJSON(c, http.StatusOK, ReadResponse{Data: string(data)})
}
