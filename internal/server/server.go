package server

import (
	"context"
	"fmt"
	"net/http"

	"livecard-chat/internal/chat"
	"livecard-chat/internal/config"
	"livecard-chat/internal/logger"
	"livecard-chat/internal/store"

	"github.com/gin-gonic/gin"
)

// UserResolver 按API令牌解析用户，用于认证中间件
type UserResolver interface {
	UserByToken(ctx context.Context, token string) (*store.User, error)
}

type Server struct {
	config     *config.Config
	logger     *logger.Logger
	service    *chat.Service
	users      UserResolver
	router     *gin.Engine
	httpServer *http.Server
	version    string
}

func NewServer(cfg *config.Config, service *chat.Service, users UserResolver, log *logger.Logger, buildVersion string) *Server {
	server := &Server{
		config:  cfg,
		logger:  log,
		service: service,
		users:   users,
		version: buildVersion,
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	gin.SetMode(gin.ReleaseMode)

	s.router = gin.New()
	s.router.Use(gin.Recovery())

	s.router.GET("/health", s.handleHealth)

	// 聊天API需要认证
	apiGroup := s.router.Group("/v1")
	apiGroup.Use(s.loggingMiddleware())
	apiGroup.Use(s.authMiddleware())
	{
		apiGroup.POST("/chats/start", s.handleStartChat)
		apiGroup.POST("/chats/:chat_id/stream", s.handleStreamChat)
		apiGroup.GET("/chats/:chat_id/messages", s.handleHistory)
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.logger.Info(fmt.Sprintf("Starting chat server on %s", addr))

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown 停止接收新连接并等待进行中的请求结束
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) GetRouter() *gin.Engine {
	return s.router
}
