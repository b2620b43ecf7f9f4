// todoagent-mcp serves the todo tools over MCP (stdio transport) for one user,
// identified by the JWT in MCP_TOKEN.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"todoagent/internal/agent/tools"
	"todoagent/internal/bootstrap"
	"todoagent/internal/config"
	"todoagent/internal/httpserver"
	"todoagent/internal/service/taskstore"
	pkgconfig "todoagent/pkg/config"
	"todoagent/pkg/logger"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(pkgconfig.GetConfigEnv(), pkgconfig.GetEnv("CONFIG_DIR", "config"))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// zap writes to stderr, stdout belongs to the MCP transport
	log := logger.NewLogger(cfg.Log)
	defer log.Sync()

	token := os.Getenv("MCP_TOKEN")
	if token == "" {
		return fmt.Errorf("MCP_TOKEN is required")
	}
	userID, err := httpserver.NewTokenVerifier(cfg.JWT.Secret).Verify(token)
	if err != nil {
		return fmt.Errorf("verifying MCP_TOKEN: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := bootstrap.OpenStorage(ctx, cfg, nil, log)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer storage.Close()

	registry := tools.NewTodoRegistry(taskstore.NewService(storage.Tasks, storage.Tags, log))
	s := tools.NewMCPServer(registry, userID, version, log)

	log.Info("MCP server starting on stdio",
		zap.String("user_id", userID),
		zap.Strings("tools", registry.Names()),
	)
	return server.ServeStdio(s)
}
