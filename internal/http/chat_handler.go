package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"charla-llm/internal/service"
)

// ChatHandler expone el motor de intercambios sobre HTTP: enviar un mensaje,
// leer el transcript, consultar el estado y reiniciar la conversacion.
type ChatHandler struct {
	logger   *zap.Logger
	exchange *service.ExchangeService
	store    *service.TranscriptStore
}

// NewChatHandler crea una instancia de ChatHandler con dependencias necesarias.
func NewChatHandler(logger *zap.Logger, exchange *service.ExchangeService, store *service.TranscriptStore) *ChatHandler {
	return &ChatHandler{
		logger:   logger,
		exchange: exchange,
		store:    store,
	}
}

// SendMessage maneja POST /chat/send. El intercambio se resuelve de forma
// asincrona: el 202 solo confirma que fue aceptado; el resultado aparece en
// el transcript.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid send request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	err := h.exchange.Send(c.Request.Context(), req.Text)
	switch {
	case errors.Is(err, service.ErrExchangeInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty message"})
	case errors.Is(err, service.ErrExchangeBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "exchange in flight"})
	case err != nil:
		h.logger.Error("send failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not send message"})
	default:
		c.JSON(http.StatusAccepted, gin.H{"accepted": true})
	}
}

// GetTranscript maneja GET /chat/transcript.
func (h *ChatHandler) GetTranscript(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"session_id": h.exchange.Session().ID,
		"busy":       h.exchange.Busy(),
		"messages":   h.store.Snapshot(),
	})
}

// GetStatus maneja GET /chat/status.
func (h *ChatHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"busy": h.exchange.Busy()})
}

// ResetSession maneja POST /chat/reset.
func (h *ChatHandler) ResetSession(c *gin.Context) {
	h.exchange.Reset()
	c.JSON(http.StatusOK, gin.H{"messages": h.store.Snapshot()})
}
