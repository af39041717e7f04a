// Package offlined parses offline proxy flags and runs the proxy.
package offlined

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spdeepak/offlinecache"
	"github.com/spdeepak/offlinecache/cache"
	"github.com/spdeepak/offlinecache/internal/config"
	"github.com/spdeepak/offlinecache/internal/otel"
	"github.com/spdeepak/offlinecache/storage/sqlite"
	"github.com/spdeepak/offlinecache/web"
)

const (
	serviceName             = "offlined"
	defaultShutdownTimeout  = 5 * time.Second
	defaultReadHeaderTimout = 10 * time.Second
)

// Config holds offlined command configuration.
type Config struct {
	Addr         string   `env:"ADDR" envDefault:":8080"`
	Upstream     string   `env:"UPSTREAM"`
	Version      string   `env:"VERSION" envDefault:"task-manager-v1"`
	Manifest     []string `env:"MANIFEST" envSeparator:","`
	DB           string   `env:"DB"`
	MaxBodyBytes int64    `env:"MAX_BODY_BYTES" envDefault:"10485760"`
	LogLevel     string   `env:"LOG_LEVEL" envDefault:"info"`
}

// ParseConfig loads environment defaults and then parses flags into Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	manifest := strings.Join(cfg.Manifest, ",")
	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	fs.StringVar(&cfg.Upstream, "upstream", cfg.Upstream, "Origin to cache; empty serves the embedded task manager")
	fs.StringVar(&cfg.Version, "version", cfg.Version, "Cache generation name")
	fs.StringVar(&manifest, "manifest", manifest, "Comma separated asset paths cached at install")
	fs.StringVar(&cfg.DB, "db", cfg.DB, "SQLite database path; empty keeps caches in memory")
	fs.Int64Var(&cfg.MaxBodyBytes, "max-body-bytes", cfg.MaxBodyBytes, "Largest response body cached at runtime")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	cfg.Manifest = splitList(manifest)
	return cfg, nil
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Run registers a worker for cfg and serves through it until ctx is done.
func Run(ctx context.Context, cfg Config) (err error) {
	if err := config.SetupLogger(os.Stderr, cfg.LogLevel); err != nil {
		return err
	}
	shutdown, err := otel.Setup(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.Warn("otel shutdown", slog.Any("error", err))
		}
	}()

	storage, err := openStorage(ctx, cfg.DB)
	if err != nil {
		return err
	}
	defer storage.Close()

	network, scope := origin(cfg)
	clients := offlinecache.NewClients()
	worker, err := offlinecache.New(&offlinecache.Config{
		Version:      cfg.Version,
		Manifest:     cfg.Manifest,
		Scope:        scope,
		Network:      network,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Clients:      clients,
		Notifier:     logNotifier{},
	}, storage)
	if err != nil {
		return err
	}

	registration := offlinecache.NewRegistration(network)
	if err := registration.Register(ctx, worker); err != nil {
		return fmt.Errorf("register worker: %w", err)
	}

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(registration, clients),
		ReadHeaderTimeout: defaultReadHeaderTimout,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("Serving", slog.String("addr", cfg.Addr), slog.String("scope", scope), slog.String("version", cfg.Version))
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func openStorage(ctx context.Context, path string) (cache.Storage, error) {
	if strings.TrimSpace(path) == "" {
		return cache.NewMemoryStorage(0), nil
	}
	store, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("open cache storage: %w", err)
	}
	return store, nil
}

// origin picks the network and scope: the configured upstream, or the
// embedded task manager served in process.
func origin(cfg Config) (http.RoundTripper, string) {
	if cfg.Upstream != "" {
		scope := cfg.Upstream
		if !strings.HasSuffix(scope, "/") {
			scope += "/"
		}
		return http.DefaultTransport, scope
	}
	host, port, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		host, port = "", "8080"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return offlinecache.HandlerFetcher{Handler: web.Handler()}, "http://" + net.JoinHostPort(host, port) + "/"
}
