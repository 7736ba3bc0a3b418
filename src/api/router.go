package api

import (
	"fmt"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/terma-io/terma/src/docs" // import generated docs
	"github.com/terma-io/terma/src/handler"
	"github.com/terma-io/terma/src/llmassist"
	"github.com/terma-io/terma/src/registry/hermesclient"
	"github.com/terma-io/terma/src/terminal"
)

// SetupRouter configures every Terma REST/WebSocket route on one Gin
// engine. disableRequestLogging skips the logrus middleware;
// enableProcessingTime adds the Server-Timing header middleware.
func SetupRouter(
	registry *terminal.Registry,
	analyzer llmassist.AnalyzerPort,
	context *llmassist.ContextStore,
	hermes *hermesclient.Client,
	disableRequestLogging bool,
	enableProcessingTime bool,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(corsMiddleware())
	r.Use(noCacheMiddleware())
	if enableProcessingTime {
		r.Use(processingTimeMiddleware())
	}
	if !disableRequestLogging {
		r.Use(logrusMiddleware())
	}

	r.GET("/swagger", func(c *gin.Context) {
		c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
	})
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	baseHandler := handler.NewBaseHandler()
	systemHandler := handler.NewSystemHandler(registry)
	sessionsHandler := handler.NewSessionsHandler(registry, hermes)
	wsHandler := handler.NewWebSocketHandler(registry, analyzer, context)

	head := headHandler()

	r.GET("/health", systemHandler.HandleHealth)
	r.HEAD("/health", head)

	r.GET("/api/sessions", sessionsHandler.HandleList)
	r.HEAD("/api/sessions", head)
	r.POST("/api/sessions", sessionsHandler.HandleCreate)
	r.GET("/api/sessions/:id", sessionsHandler.HandleGet)
	r.HEAD("/api/sessions/:id", head)
	r.DELETE("/api/sessions/:id", sessionsHandler.HandleClose)
	r.POST("/api/sessions/:id/write", sessionsHandler.HandleWrite)
	r.GET("/api/sessions/:id/read", sessionsHandler.HandleRead)
	r.HEAD("/api/sessions/:id/read", head)

	// Wildcard so a malformed session path still reaches the WebSocket
	// handshake and can be rejected with close code 1008 over the wire,
	// instead of a plain HTTP 404 from gin's router.
	r.GET("/ws/*path", wsHandler.HandleWS)

	r.GET("/", baseHandler.HandleWelcome)

	return r
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, HEAD, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func headHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Status(http.StatusOK)
	}
}

func noCacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
		c.Writer.Header().Set("Pragma", "no-cache")
		c.Writer.Header().Set("Expires", "0")
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		c.Next()
	}
}

// sensitiveQueryParams contains query parameter names redacted from logs.
var sensitiveQueryParams = []string{
	"api_key", "apikey", "api-key",
	"token", "access_token", "refresh_token", "auth_token", "bearer",
	"password", "passwd", "pwd",
	"secret", "client_secret", "api_secret",
	"key", "private_key", "encryption_key",
	"authorization", "auth",
	"credential", "credentials",
	"session", "session_id", "sessionid",
	"jwt",
}

func redactSecrets(pathWithQuery string) string {
	parts := strings.SplitN(pathWithQuery, "?", 2)
	if len(parts) != 2 {
		return pathWithQuery
	}

	basePath := parts[0]
	queryString := parts[1]

	values, err := url.ParseQuery(queryString)
	if err != nil {
		return redactQueryPatterns(pathWithQuery)
	}

	hasSecrets := false
	for key := range values {
		for _, param := range sensitiveQueryParams {
			if strings.EqualFold(key, param) {
				hasSecrets = true
				break
			}
		}
	}
	if !hasSecrets {
		return pathWithQuery
	}

	for key := range values {
		for _, param := range sensitiveQueryParams {
			if strings.EqualFold(key, param) {
				values.Set(key, "[REDACTED]")
				break
			}
		}
	}
	return basePath + "?" + values.Encode()
}

func redactQueryPatterns(pathWithQuery string) string {
	result := pathWithQuery
	for _, param := range sensitiveQueryParams {
		pattern := regexp.MustCompile(`(?i)(` + regexp.QuoteMeta(param) + `=)[^&\s]*`)
		result = pattern.ReplaceAllString(result, "${1}[REDACTED]")
	}
	return result
}

func logrusMiddleware() gin.HandlerFunc {
	var skip map[string]struct{}

	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}
		sanitizedPath := redactSecrets(path)

		start := time.Now()
		c.Next()
		stop := time.Since(start)
		latency := int(math.Ceil(float64(stop.Nanoseconds()) / 1000000.0))
		statusCode := c.Writer.Status()
		dataLength := c.Writer.Size()
		if dataLength < 0 {
			dataLength = 0
		}

		if _, ok := skip[path]; ok {
			return
		}

		if len(c.Errors) > 0 {
			logrus.Error(c.Errors.ByType(gin.ErrorTypePrivate).String())
			return
		}

		msg := fmt.Sprintf("%s %s %d %d %dms", c.Request.Method, sanitizedPath, statusCode, dataLength, latency)
		switch {
		case statusCode >= http.StatusInternalServerError:
			logrus.Error(msg)
		case statusCode >= http.StatusBadRequest:
			logrus.Error(msg)
		default:
			logrus.Info(msg)
		}
	}
}
