package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"livecard-chat/internal/botclient"
	"livecard-chat/internal/chat"
	"livecard-chat/internal/config"
	"livecard-chat/internal/logger"
	"livecard-chat/internal/server"
	"livecard-chat/internal/store"
	"livecard-chat/internal/utils"
)

var (
	configFile = flag.String("config", "config.yaml", "Configuration file path")
	port       = flag.Int("port", 0, "Override chat server port")
	version    = flag.Bool("version", false, "Show version information")

	// This will be set by build process
	Version = "dev"
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("LiveCard Chat %s\n", Version)
		os.Exit(0)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}

	appLogger := logger.NewLogger(logger.LogConfig{Level: cfg.Logging.Level})

	db, err := store.Open(cfg.Database.Path, appLogger)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	botClient, err := buildBotClient(cfg, appLogger)
	if err != nil {
		log.Fatalf("Failed to initialize AI service client: %v", err)
	}

	chatService := chat.NewService(db, botClient, cfg.Chat.HistoryLimit, appLogger)
	chatServer := server.NewServer(cfg, chatService, db, appLogger, Version)

	go func() {
		if err := chatServer.Start(); err != nil {
			log.Fatalf("Chat server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("\n=== LiveCard Chat %s ===\n", Version)
	fmt.Printf("Chat Server: http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Printf("Configuration File: %s\n", *configFile)
	fmt.Printf("\nPress Ctrl+C to stop the server...\n\n")

	<-quit
	fmt.Println("\nShutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := chatServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}

	if err := db.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}
}

// buildBotClient 按配置的超时构造上游客户端
func buildBotClient(cfg *config.Config, log *logger.Logger) (*botclient.Client, error) {
	timeouts := botclient.Timeouts{}

	var err error
	if timeouts.TLSHandshake, err = utils.ParseTimeoutWithDefault(cfg.Upstream.TLSHandshake, "upstream.tls_handshake", 10*time.Second); err != nil {
		return nil, err
	}

	if timeouts.ResponseHeader, err = utils.ParseTimeoutWithDefault(cfg.Upstream.ResponseHeader, "upstream.response_header", 60*time.Second); err != nil {
		return nil, err
	}

	if timeouts.IdleConnection, err = utils.ParseTimeoutWithDefault(cfg.Upstream.IdleConnection, "upstream.idle_connection", 90*time.Second); err != nil {
		return nil, err
	}

	if timeouts.OverallRequest, err = utils.ParseTimeoutWithDefault(cfg.Upstream.OverallRequest, "upstream.overall_request", 30*time.Second); err != nil {
		return nil, err
	}

	retryDelay, err := utils.ParseTimeoutWithDefault(cfg.Upstream.RetryDelay, "upstream.retry_delay", time.Second)
	if err != nil {
		return nil, err
	}

	return botclient.New(cfg.Upstream.BotURL, timeouts, retryDelay, log), nil
}
