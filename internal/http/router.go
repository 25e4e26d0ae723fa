package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"charla-llm/internal/service"
)

// RouterOptions agrupa los colaboradores opcionales del router.
type RouterOptions struct {
	JWTService  *service.JWTService
	RateLimiter service.SendRateLimiter
}

// NewRouter configura el router de Gin con middlewares y rutas del chat.
func NewRouter(logger *zap.Logger, chatH *ChatHandler, opts RouterOptions) *gin.Engine {
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())

	chat := r.Group("/chat")
	if opts.JWTService != nil {
		chat.Use(JWTAuthMiddleware(opts.JWTService))
	}
	chat.POST("/send", sendRateLimitMiddleware(opts.RateLimiter), chatH.SendMessage)
	chat.GET("/transcript", chatH.GetTranscript)
	chat.GET("/status", chatH.GetStatus)
	chat.POST("/reset", chatH.ResetSession)

	return r
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}

// sendRateLimitMiddleware limita envios por IP de cliente cuando hay limiter.
func sendRateLimitMiddleware(limiter service.SendRateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter != nil && !limiter.Allow(c.ClientIP()) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many messages"})
			c.Abort()
			return
		}
		c.Next()
	}
}
