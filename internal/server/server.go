// Package server exposes the conversation engine over a small HTTP API:
// start a conversation, send a message. Authentication is a single shared
// API key.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/careai/careai-go/internal/engine"
	"github.com/careai/careai-go/internal/logger"
)

type Server struct {
	engine *engine.Engine
	router *gin.Engine
}

type startConversationRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type sendMessageRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Message string `json:"message" binding:"required"`
}

func New(eng *engine.Engine, apiKey string) *Server {
	s := &Server{engine: eng, router: gin.New()}
	s.router.Use(gin.Recovery())

	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.router.Group("/api", APIKeyAuth(apiKey))
	api.POST("/conversation/start", s.startConversation)
	api.POST("/conversation/:conversationId/message", s.sendMessage)

	return s
}

// Handler returns the underlying http.Handler, used by tests and by Run.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Run(addr string) error {
	logger.L.Info("starting server", "address", addr)
	return s.router.Run(addr)
}

func (s *Server) startConversation(c *gin.Context) {
	var req startConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User ID is required"})
		return
	}

	id, err := s.engine.StartConversation(c.Request.Context(), req.UserID)
	if err != nil {
		s.writeError(c, err, "An error occurred while starting the conversation")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation_id": id,
		"message":         "Conversation started successfully",
	})
}

func (s *Server) sendMessage(c *gin.Context) {
	conversationID := c.Param("conversationId")

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id and message are required"})
		return
	}

	reply, err := s.engine.HandleTurn(c.Request.Context(), conversationID, req.UserID, req.Message)
	if err != nil {
		s.writeError(c, err, "An error occurred while processing your message")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":   reply,
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, engine.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, engine.ErrConversationCompleted):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		logger.L.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}
