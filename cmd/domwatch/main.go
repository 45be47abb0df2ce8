// Command domwatch watches web pages and reports every element matching a
// CSS rule once, whether present at load or inserted later.
//
// Usage:
//
//	domwatch -config domwatch.yaml                        # pages and sinks from YAML
//	domwatch -url https://example.com -selector 'article' # one page, stdout sink
//	domwatch -config domwatch.yaml -db rules.db           # plus hot-reloaded watch_rules table
//	domwatch -config domwatch.yaml -http :8080            # plus HTTP API and MCP on /mcp
//	domwatch -config domwatch.yaml -mcp-quic :8443        # plus MCP over QUIC
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hazyhaar/domsel/dbopen"
	"github.com/hazyhaar/domsel/domwatch"
	"github.com/hazyhaar/domsel/mcpquic"
)

func main() {
	configPath := flag.String("config", "", "path to domwatch.yaml config file")
	singleURL := flag.String("url", "", "observe a single URL (stdout sink unless the config names sinks)")
	selector := flag.String("selector", "body *", "CSS selector watched on -url")
	once := flag.Bool("once", false, "with -url: report the first match only")
	rulesDB := flag.String("db", "", "SQLite file with a watch_rules table (overrides rules_db)")
	httpAddr := flag.String("http", "", "HTTP API listen address, e.g. :8080 (overrides http.addr)")
	quicAddr := flag.String("mcp-quic", "", "MCP over QUIC listen address, e.g. :8443 (overrides http.mcp_quic_addr)")
	tlsCert := flag.String("tls-cert", "", "TLS certificate for -mcp-quic (self-signed when empty)")
	tlsKey := flag.String("tls-key", "", "TLS key for -mcp-quic")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *configPath == "" && *singleURL == "" && *rulesDB == "" {
		fmt.Fprintln(os.Stderr, "usage: domwatch -config <file> | -url <url> [-selector <css>] | -db <rules.db>")
		os.Exit(2)
	}

	cfg, err := loadConfig(*configPath, *singleURL, *selector, *once)
	if err != nil {
		logger.Error("domwatch: config", "error", err)
		os.Exit(1)
	}
	if *rulesDB != "" {
		cfg.RulesDB = *rulesDB
	}
	if *httpAddr != "" {
		cfg.HTTP.Addr = *httpAddr
	}
	if *quicAddr != "" {
		cfg.HTTP.MCPQuicAddr = *quicAddr
	}
	if *tlsCert != "" || *tlsKey != "" {
		cfg.HTTP.TLSCert, cfg.HTTP.TLSKey = *tlsCert, *tlsKey
		if err := cfg.Validate(); err != nil {
			logger.Error("domwatch: config", "error", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg); err != nil {
		logger.Error("domwatch: fatal", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path, url, selector string, once bool) (*domwatch.Config, error) {
	var cfg *domwatch.Config
	var err error
	if path != "" {
		cfg, err = domwatch.LoadConfigFile(path)
	} else {
		cfg, err = domwatch.ParseConfig(nil)
	}
	if err != nil {
		return nil, err
	}
	if url == "" {
		return cfg, nil
	}

	pc := domwatch.PageConfig{
		ID:           "cli",
		URL:          url,
		StealthLevel: "auto",
		Rules:        []domwatch.RuleConfig{{Name: "cli", Selector: selector, Once: once}},
	}
	pc.ApplyDefaults()
	if err := pc.Validate(); err != nil {
		return nil, err
	}
	cfg.Pages = append(cfg.Pages, pc)
	return cfg, nil
}

func run(ctx context.Context, logger *slog.Logger, cfg *domwatch.Config) error {
	sinks, err := domwatch.BuildSinks(cfg.Sinks, logger)
	if err != nil {
		return err
	}

	w := domwatch.New(cfg, domwatch.WithLogger(logger), domwatch.WithSinks(sinks...))
	defer w.Stop()

	if err := w.Start(ctx); err != nil {
		// Failed pages are logged; the others keep running.
		logger.Warn("domwatch: some pages failed to start", "error", err)
	}

	if cfg.RulesDB != "" {
		db, err := dbopen.Open(cfg.RulesDB, dbopen.WithMkdirAll(), dbopen.WithSchema(domwatch.RulesSchema))
		if err != nil {
			return fmt.Errorf("rules db: %w", err)
		}
		defer db.Close()
		go domwatch.WatchRules(ctx, db, w, cfg.Pages, logger)
		logger.Info("domwatch: watching rules table", "path", cfg.RulesDB)
	}

	mcpSrv := mcp.NewServer(&mcp.Implementation{Name: "domwatch", Version: "1.0.0"}, nil)
	w.RegisterMCP(mcpSrv)

	if cfg.HTTP.MCPQuicAddr != "" {
		ql, err := listenQUIC(cfg.HTTP, mcpSrv, logger)
		if err != nil {
			return fmt.Errorf("mcp quic: %w", err)
		}
		defer ql.Close()
		go func() {
			if err := ql.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("domwatch: mcp quic stopped", "error", err)
			}
		}()
	}

	if cfg.HTTP.Addr == "" {
		<-ctx.Done()
		logger.Info("domwatch: shutting down")
		return nil
	}
	return serve(ctx, logger, cfg.HTTP.Addr, w, mcpSrv)
}

func listenQUIC(hc domwatch.HTTPConfig, mcpSrv *mcp.Server, logger *slog.Logger) (*mcpquic.Listener, error) {
	var tlsCfg *tls.Config
	var err error
	if hc.TLSCert != "" {
		tlsCfg, err = mcpquic.ServerTLSConfig(hc.TLSCert, hc.TLSKey)
	} else {
		logger.Warn("domwatch: mcp quic uses a self-signed certificate")
		tlsCfg, err = mcpquic.SelfSignedTLSConfig()
	}
	if err != nil {
		return nil, err
	}
	return mcpquic.NewListener(hc.MCPQuicAddr, tlsCfg, mcpSrv, logger)
}

func serve(ctx context.Context, logger *slog.Logger, addr string, w *domwatch.Watcher, mcpSrv *mcp.Server) error {
	r := chi.NewRouter()
	r.Mount("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return mcpSrv }, nil))
	r.Mount("/", w.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("domwatch: http starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return fmt.Errorf("http: %w", err)
		}
	case <-ctx.Done():
	}
	logger.Info("domwatch: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("domwatch: http shutdown", "error", err)
	}
	return nil
}
