package server

import (
	"errors"
	"net/http"
	"strconv"

	"livecard-chat/internal/chat"
	"livecard-chat/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type startChatRequest struct {
	ChatID     string `json:"chat_id"`
	LiveCardID string `json:"live_card_id"`
}

type streamChatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleStartChat(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req startChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	result, err := s.service.StartChat(c.Request.Context(), user, req.ChatID, req.LiveCardID)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// handleStreamChat 接收一条用户消息并以SSE流回复wire事件。
//
// 会话解析失败发生在任何事件发出之前，此时仍返回普通JSON错误；
// 一旦SSE头已写出，后续错误只能通过流内的error事件表达。
func (s *Server) handleStreamChat(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	var req streamChatRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Message == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	chatID := c.Param("chat_id")
	ctx := c.Request.Context()

	streaming := false
	emit := func(event chat.WireEvent) error {
		if err := ctx.Err(); err != nil {
			// 客户端已断开，停止消费上游
			return err
		}
		if !streaming {
			writeSSEHeaders(c)
			streaming = true
		}
		if _, err := c.Writer.Write(event.Format()); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	}

	err := s.service.StreamTurn(ctx, user, chatID, req.Message, emit)
	if err != nil && !streaming {
		s.writeServiceError(c, err)
		return
	}
	if err != nil {
		s.logger.Warn("chat stream ended early", logrus.Fields{
			"chat_id": chatID,
			"error":   err.Error(),
		})
	}
}

func (s *Server) handleHistory(c *gin.Context) {
	user := currentUser(c)
	if user == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	messages, err := s.service.History(c.Request.Context(), user, c.Param("chat_id"), limit)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

func (s *Server) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, chat.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	case errors.Is(err, chat.ErrBadRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", err, logrus.Fields{"path": c.Request.URL.Path})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func writeSSEHeaders(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream; charset=utf-8")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // 防止中间层缓冲
	c.Writer.WriteHeader(http.StatusOK)
}
