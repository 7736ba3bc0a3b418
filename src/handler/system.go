package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/terma-io/terma/src/terminal"
)

// Build information - set via ldflags at build time.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var startTime = time.Now()

// SystemHandler handles system-level operations.
type SystemHandler struct {
	*BaseHandler
	registry *terminal.Registry
}

func NewSystemHandler(registry *terminal.Registry) *SystemHandler {
	return &SystemHandler{BaseHandler: NewBaseHandler(), registry: registry}
}

// HealthResponse is the response body for the health endpoint.
type HealthResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	GitCommit     string  `json:"gitCommit"`
	BuildTime     string  `json:"buildTime"`
	GoVersion     string  `json:"goVersion"`
	OS            string  `json:"os"`
	Arch          string  `json:"arch"`
	Uptime        string  `json:"uptime"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
	Sessions      int     `json:"sessions"`
	StartedAt     string  `json:"startedAt"`
} // @name HealthResponse

// HandleHealth handles GET requests to /health.
// @Summary Health check
// @Description Returns health status, build information, and the current session count
// @Tags system
// @Produce json
// @Success 200 {object} HealthResponse "Health status"
// @Router /health [get]
func (h *SystemHandler) HandleHealth(c *gin.Context) {
	uptime := time.Since(startTime)

	h.SendJSON(c, http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       Version,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		GoVersion:     runtime.Version(),
		OS:            runtime.GOOS,
		Arch:          runtime.GOARCH,
		Uptime:        uptime.Round(time.Second).String(),
		UptimeSeconds: uptime.Seconds(),
		Sessions:      len(h.registry.List()),
		StartedAt:     startTime.Format(time.RFC3339),
	})
}
