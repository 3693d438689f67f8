package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"browsermcp/internal/adapter/tool"
	"browsermcp/internal/domain"
	"browsermcp/internal/infra/config"
)

const (
	serverName    = "browsermcp"
	serverVersion = "1.0.0"
)

// Server exposes the tool registry over MCP SSE transport, plus a health
// endpoint for probes.
type Server struct {
	cfg      config.ServerConfig
	registry *tool.Registry
	logger   *slog.Logger
	httpSrv  *http.Server
}

func New(cfg config.ServerConfig, registry *tool.Registry, logger *slog.Logger) *Server {
	return &Server{cfg: cfg, registry: registry, logger: logger}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	mcpSrv := server.NewMCPServer(serverName, serverVersion,
		server.WithToolCapabilities(false),
	)

	for _, t := range s.registry.List() {
		schema := t.Schema()
		mcpSrv.AddTool(
			mcp.NewToolWithRawSchema(schema.Name, schema.Description, schema.Parameters),
			s.handlerFor(t),
		)
		s.logger.Info("tool registered", "name", schema.Name)
	}

	sse := server.NewSSEServer(mcpSrv,
		server.WithSSEEndpoint(s.cfg.SSEPath),
		server.WithMessageEndpoint(s.cfg.MessagePath),
	)

	mux := http.NewServeMux()
	mux.Handle(s.cfg.SSEPath, sse.SSEHandler())
	mux.Handle(s.cfg.MessagePath, sse.MessageHandler())
	mux.HandleFunc("/health", s.handleHealth)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.withCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("mcp server listening",
			"addr", addr, "sse", s.cfg.SSEPath, "messages", s.cfg.MessagePath)
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("mcp server stopped")
	return nil
}

// handlerFor bridges one registry tool into an MCP tool handler. Tool-level
// failures become MCP error results, never transport errors.
func (s *Server) handlerFor(t domain.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("invalid arguments: %v", err)), nil
		}

		res, err := t.Execute(ctx, args)
		if err != nil {
			s.logger.Error("tool execution error", "tool", t.Name(), "error", err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		if res.IsError {
			return mcp.NewToolResultError(res.Content), nil
		}
		return mcp.NewToolResultText(res.Content), nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "ok",
		"server":  serverName,
		"version": serverVersion,
		"tools":   len(s.registry.List()),
	})
}

// withCORS allows the configured origins on all endpoints. Origins are
// matched by prefix so port-qualified localhost origins pass.
func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.CORSOrigins {
		if allowed == "*" || origin == allowed {
			return true
		}
		if len(origin) > len(allowed) && origin[:len(allowed)] == allowed && origin[len(allowed)] == ':' {
			return true
		}
	}
	return false
}
