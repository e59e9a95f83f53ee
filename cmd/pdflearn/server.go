package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/netutil"

	"github.com/utpalchakraborty/pdf-learn-ai/internal/api"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/config"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/ingest"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/library"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/ollama"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/proxy"
	"github.com/utpalchakraborty/pdf-learn-ai/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pdflearn server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and model status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP over stdio")
}

func runServer(withMCP bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("pdflearn starting", "version", version, "library", cfg.Library.Dir, "model", cfg.Ollama.Model)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// With MCP on stdio, stdout belongs to the protocol.
	progressOut := os.Stdout
	if withMCP {
		progressOut = os.Stderr
	}
	llm := ollama.New(cfg.Ollama.BaseURL)
	if err := ollama.EnsureReady(ctx, llm, cfg.Ollama.Model, progressOut); err != nil {
		return err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	if err := os.MkdirAll(cfg.Library.Dir, 0o755); err != nil {
		return fmt.Errorf("creating library dir: %w", err)
	}
	lib := library.New(cfg.Library.Dir, library.WithCache(store))

	worker := ingest.NewWorker(store, lib, 500*time.Millisecond)
	go worker.Run(ctx)

	if cfg.Library.WarmOnStart {
		go func() {
			n, err := queueUncached(ctx, store, lib)
			if err != nil {
				slog.Warn("queueing page extraction", "error", err)
				return
			}
			if n > 0 {
				slog.Info("queued page extraction", "documents", n)
			}
		}()
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Store: store, Library: lib})
		stdioSrv := server.NewStdioServer(mcpSrv)
		go func() {
			if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
		}()
		slog.Info("MCP server started (stdio transport)")
	}

	handler := api.NewHandler(api.Deps{
		Store:   store,
		Library: lib,
		LLM:     llm,
		Model:   cfg.Ollama.Model,
	})

	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	ln = netutil.LimitListener(ln, cfg.Server.MaxConns)

	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("pdflearn listening", "addr", addr, "max_conns", cfg.Server.MaxConns)
		if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// extractionQueue is the part of the store queueUncached needs.
type extractionQueue interface {
	ingest.JobStore
	CachedPages(documentRef string) (int, error)
}

// queueUncached enqueues page extraction for every readable document whose
// pages are not all cached. It returns the number of jobs queued.
func queueUncached(ctx context.Context, store extractionQueue, lib *library.Library) (int, error) {
	infos, err := lib.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing library: %w", err)
	}
	queued := 0
	for _, info := range infos {
		if info.Error != "" || info.NumPages == 0 {
			continue
		}
		cached, err := store.CachedPages(info.Filename)
		if err != nil {
			return queued, fmt.Errorf("counting cached pages of %s: %w", info.Filename, err)
		}
		if cached >= info.NumPages {
			continue
		}
		if _, err := ingest.Enqueue(store, info.Filename); err != nil {
			return queued, err
		}
		queued++
	}
	return queued, nil
}

func showStatus(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	serverURL := cfg.ServerURL()
	health, err := proxy.NewClient(serverURL).Health(ctx)
	if err != nil {
		printStatus("Server", "stopped (%s)", serverURL)
	} else {
		printStatus("Server", "running at %s", serverURL)
		printStatus("Ollama", "%s", health.Ollama)
		printStatus("Model", "%s", health.Model)
	}

	if err != nil {
		if ollama.New(cfg.Ollama.BaseURL).IsRunning(ctx) {
			printStatus("Ollama", "running at %s", cfg.Ollama.BaseURL)
		} else {
			printStatus("Ollama", "not running")
		}
		printStatus("Model", "%s", cfg.Ollama.Model)
	}

	printStatus("Library", "%s", cfg.Library.Dir)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	return nil
}
