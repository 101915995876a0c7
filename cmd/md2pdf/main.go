package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"md2pdf/internal/config"
	"md2pdf/internal/http/server"
	"md2pdf/internal/infra/cache"
	"md2pdf/internal/infra/chrome"
	"md2pdf/internal/infra/logging"
	"md2pdf/internal/infra/postgres"
	"md2pdf/internal/markdown"
	"md2pdf/internal/pdf"
	"md2pdf/internal/pipeline"
	"md2pdf/internal/tokens"
)

type cliFlags struct {
	config string
	port   string
}

func parseFlags(args []string) (cliFlags, error) {
	var f cliFlags
	fs := flag.NewFlagSet(filepath.Base(args[0]), flag.ContinueOnError)
	fs.StringVarP(&f.config, "config", "c", "", "path to the YAML config file (default $CONFIG_PATH or config.yaml)")
	fs.StringVarP(&f.port, "port", "p", "", "listen port, overrides config and $PORT")
	if err := fs.Parse(args[1:]); err != nil {
		return cliFlags{}, err
	}
	return f, nil
}

func loadConfig(f cliFlags) config.Config {
	var cfg config.Config
	if f.config != "" {
		cfg = config.LoadFrom(f.config)
	} else {
		cfg = config.Load()
	}
	if f.port != "" {
		cfg.Server.Port = ":" + strings.TrimPrefix(f.port, ":")
	}
	return cfg
}

// ensureLogDir creates the directory of a log file path.
func ensureLogDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func main() {
	flags, err := parseFlags(os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg := loadConfig(flags)
	if err := ensureLogDir(cfg.Logger.File); err != nil {
		fmt.Fprintln(os.Stderr, "cannot create log directory:", err)
		os.Exit(1)
	}
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)
	_, _ = maxprocs.Set(maxprocs.Logger(func(format string, args ...interface{}) {
		logging.Debug(fmt.Sprintf(format, args...))
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	engines := chrome.NewManager(chrome.ChromeLauncher(cfg.PDF))
	if cfg.PDF.EagerStart {
		launchCtx, launchCancel := context.WithTimeout(ctx, cfg.PDF.LaunchTimeout())
		if _, err := engines.Ensure(launchCtx); err != nil {
			logging.Warn("Render engine not started at boot, will retry on first request", "error", err)
		}
		launchCancel()
	}

	opts := []pipeline.Option{pipeline.WithMargin(cfg.PDF.MarginMM)}
	var rdb *redis.Client
	if cfg.Cache.PDFCacheEnabled {
		rdb = redis.NewClient(&redis.Options{
			Addr: cfg.Cache.RedisHost,
			DB:   cfg.Cache.PDFCacheDB,
		})
		opts = append(opts, pipeline.WithCache(cache.New(rdb, cfg.Cache.PDFCacheTTL)))
	}

	var tokenCache *tokens.Cache
	var tokenDB *postgres.DB
	if cfg.Auth.Enabled {
		tokenCache, tokenDB = setupTokens(ctx, cfg)
	}

	svc := pipeline.New(markdown.New(cfg.Markdown), pdf.NewRenderer(cfg.PDF, engines), opts...)
	app := server.New(server.Deps{
		Config:    cfg,
		Converter: svc,
		Engine:    engines,
		Tokens:    tokenCache,
	})

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed

	cancel()
	engines.Shutdown()
	if rdb != nil {
		_ = rdb.Close()
	}
	if tokenDB != nil {
		_ = tokenDB.Close()
	}
}

// setupTokens loads the API tokens and keeps them fresh. A broken database
// config leaves the cache unloaded, so protected routes answer 503.
func setupTokens(ctx context.Context, cfg config.Config) (*tokens.Cache, *postgres.DB) {
	tokenCache := tokens.NewCache()
	dsn, err := postgres.DSN(cfg.Auth.Postgres)
	if err != nil {
		logging.Error("Invalid token database config", "error", err)
		return tokenCache, nil
	}

	db := postgres.NewDB()
	reloader := tokens.NewReloader(postgres.NewTokenRepository(db, dsn), tokenCache, cfg.Auth.ReloadInterval)
	if err := reloader.LoadOnce(ctx); err != nil {
		logging.Error("Failed to load API tokens", "error", err)
	}
	reloader.Start(ctx)
	return tokenCache, db
}

// startServer starts the Fiber app and listens for shutdown signals
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		logging.Info("Listening", "addr", cfg.Server.Host+cfg.Server.Port)
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint
	signal.Stop(sigint)

	logging.Warn("Shutdown signal received, closing server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
