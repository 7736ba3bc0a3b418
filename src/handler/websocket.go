package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/terma-io/terma/src/bridge"
	"github.com/terma-io/terma/src/llmassist"
	"github.com/terma-io/terma/src/terminal"
)

const (
	// pingInterval/pongWait implement the 30s ping / 35s pong-timeout
	// keepalive policy.
	pingInterval = 30 * time.Second
	pongWait     = 35 * time.Second

	// maxMessageBytes is the inbound message cap: 1 MiB.
	maxMessageBytes = 1 << 20
)

// WebSocketHandler upgrades incoming connections and hands them to a
// bridge.Bridge bound against the shared terminal registry.
type WebSocketHandler struct {
	registry *terminal.Registry
	analyzer llmassist.AnalyzerPort
	context  *llmassist.ContextStore
	upgrader websocket.Upgrader
}

func NewWebSocketHandler(registry *terminal.Registry, analyzer llmassist.AnalyzerPort, context *llmassist.ContextStore) *WebSocketHandler {
	return &WebSocketHandler{
		registry: registry,
		analyzer: analyzer,
		context:  context,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// HandleWS upgrades the connection and runs the bridge until it ends.
// Registered on the wildcard route "/ws/*path" so a malformed path (no
// segment, or more than one) still reaches the handshake and can be
// rejected with WebSocket close code 1008 rather than a plain HTTP 404.
func (h *WebSocketHandler) HandleWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.Warnf("websocket: upgrade failed: %v", err)
		return
	}

	b := bridge.New(newGorillaConn(conn), h.registry, h.analyzer, h.context)

	rawPath := c.Param("path")
	opts := terminal.CreateOptions{}
	if cols, err := terminal.ParseDimension(c.Query("cols"), 0); err == nil {
		opts.Cols = cols
	}
	if rows, err := terminal.ParseDimension(c.Query("rows"), 0); err == nil {
		opts.Rows = rows
	}

	if err := b.Bind(rawPath, opts); err != nil {
		logrus.Infof("websocket: bind failed for %s: %v", rawPath, err)
		return
	}

	b.Run(c.Request.Context())
}

// gorillaConn adapts *websocket.Conn to bridge.Conn, applying the
// ping/pong and message-size policy in one place.
//
// gorilla/websocket allows at most one concurrent writer: Bridge's outbound
// loop and the goroutines handleLLMAssist spawns per llm_assist message both
// call WriteJSON on this same connection, so writeMu serializes them.
type gorillaConn struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

func newGorillaConn(conn *websocket.Conn) *gorillaConn {
	conn.SetReadLimit(maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for range ticker.C {
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}()

	return &gorillaConn{conn: conn}
}

func (g *gorillaConn) ReadMessage() ([]byte, error) {
	_, data, err := g.conn.ReadMessage()
	return data, err
}

func (g *gorillaConn) WriteJSON(v interface{}) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.conn.WriteJSON(v)
}

func (g *gorillaConn) Close(code int, reason string) error {
	if code != 0 {
		deadline := time.Now().Add(time.Second)
		_ = g.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	}
	return g.conn.Close()
}
