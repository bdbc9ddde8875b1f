package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/EASONTAN03/zus-api-deployment/internal/api"
	"github.com/EASONTAN03/zus-api-deployment/internal/auth"
	"github.com/EASONTAN03/zus-api-deployment/internal/cache"
	"github.com/EASONTAN03/zus-api-deployment/internal/chat"
	"github.com/EASONTAN03/zus-api-deployment/internal/config"
	"github.com/EASONTAN03/zus-api-deployment/internal/intent"
	"github.com/EASONTAN03/zus-api-deployment/internal/openai"
	"github.com/EASONTAN03/zus-api-deployment/internal/outlets"
	"github.com/EASONTAN03/zus-api-deployment/internal/products"
	"github.com/EASONTAN03/zus-api-deployment/internal/ratelimit"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the product and outlet datasets without starting the server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed()
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the product and outlet tools over MCP stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMCP()
	},
}

// app holds the wired service graph shared by the serve, seed, and mcp
// commands.
type app struct {
	cfg      config.Config
	store    *outlets.Store
	index    *products.SQLiteIndex
	embedder *products.Embedder
	prods    *products.Pipeline
	outs     *outlets.Pipeline
	bot      *chat.Orchestrator
	tokens   *auth.TokenIssuer
	redis    *cache.Redis
}

func buildApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	store, err := outlets.Open(cfg.Data.Dir)
	if err != nil {
		return nil, fmt.Errorf("opening outlet store: %w", err)
	}

	index, err := products.NewSQLiteIndex(store.DB())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("opening product index: %w", err)
	}

	client := openai.New(cfg.OpenAI.BaseURL, cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel, cfg.OpenAI.EmbedModel)
	embedder := products.NewEmbedder(client)

	a := &app{
		cfg:      cfg,
		store:    store,
		index:    index,
		embedder: embedder,
		prods:    products.NewPipeline(embedder, index, client),
		outs:     outlets.NewPipeline(outlets.NewGenerator(client, "sqlite"), store, client),
	}

	var responseCache chat.Cache
	if cfg.Cache.Backend == "redis" {
		redisCache, err := cache.NewRedis(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		if err := redisCache.Ping(ctx); err != nil {
			store.Close()
			return nil, fmt.Errorf("pinging redis: %w", err)
		}
		a.redis = redisCache
		responseCache = redisCache
		slog.Info("using redis response cache")
	} else {
		responseCache = cache.NewMemory(cfg.Cache.Size, cfg.Cache.TTL)
	}

	limiter := ratelimit.New(
		ratelimit.Tier{Limit: cfg.RateLimit.AnonLimit, Window: cfg.RateLimit.AnonWindow},
		ratelimit.Tier{Limit: cfg.RateLimit.AuthLimit, Window: cfg.RateLimit.AuthWindow},
		auth.AnonymousIdentity,
	)
	a.tokens = auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.TokenTTL)

	a.bot = chat.New(a.tokens, limiter, intent.NewClassifier(client), a.prods, a.outs, responseCache)
	return a, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Warn("closing redis", "error", err)
		}
	}
	if err := a.store.Close(); err != nil {
		slog.Warn("closing outlet store", "error", err)
	}
}

// seed loads both datasets if their stores are empty.
func (a *app) seed(ctx context.Context) error {
	if err := a.store.SeedFromCSV(ctx, filepath.Join(a.cfg.Data.Dir, a.cfg.Data.OutletsCSV)); err != nil {
		return fmt.Errorf("seeding outlets: %w", err)
	}

	catalog, err := products.LoadCSV(filepath.Join(a.cfg.Data.Dir, a.cfg.Data.ProductsCSV))
	if err != nil {
		return fmt.Errorf("loading product catalog: %w", err)
	}
	if err := products.Seed(ctx, a.index, a.embedder, catalog); err != nil {
		return fmt.Errorf("seeding products: %w", err)
	}
	return nil
}

// storeHealth reports row counts for the readiness endpoint.
type storeHealth struct {
	index *products.SQLiteIndex
	store *outlets.Store
}

func (h storeHealth) ProductCount(ctx context.Context) (int, error) {
	return h.index.Count(ctx)
}

func (h storeHealth) OutletCount(ctx context.Context) (int, error) {
	return h.store.Count(ctx)
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "zusapi version %s\n", version)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.seed(ctx); err != nil {
		return err
	}

	users, err := auth.NewFileStore(filepath.Join(a.cfg.Data.Dir, a.cfg.Data.UsersFile))
	if err != nil {
		return fmt.Errorf("opening user store: %w", err)
	}

	handler := api.NewHandler(api.Deps{
		Chatbot:     a.bot,
		Products:    a.prods,
		Outlets:     a.outs,
		Users:       users,
		Tokens:      a.tokens,
		Health:      storeHealth{index: a.index, store: a.store},
		CORSOrigins: a.cfg.Server.CORSOrigins,
	})

	addr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("zusapi listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "shutting down...")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runSeed() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	return a.seed(ctx)
}

func runMCP() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.seed(ctx); err != nil {
		return err
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{Products: a.prods, Outlets: a.outs})
	stdioSrv := server.NewStdioServer(mcpSrv)
	slog.Info("MCP server started (stdio transport)")
	if err := stdioSrv.Listen(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("mcp server error: %w", err)
	}
	return nil
}
