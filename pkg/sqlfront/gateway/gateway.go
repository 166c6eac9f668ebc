// Package gateway serves the workbench operations over HTTP/JSON.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/history"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/keystore"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/notes"
	"github.com/t1000ln/sqlcipher-front/pkg/sqlfront/workbench"
)

const version = "1.0.0"

// Gateway is the HTTP API gateway.
type Gateway struct {
	workbench *workbench.Workbench
	history   *history.Store
	notes     *notes.Store
	keys      keystore.Store

	config    Config
	server    *http.Server
	limiter   *rate.Limiter
	logger    *slog.Logger
	startedAt time.Time
}

// New creates a new Gateway.
func New(wb *workbench.Workbench, cfg Config, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.Effective()

	g := &Gateway{
		workbench: wb,
		config:    cfg,
		logger:    logger.With("component", "gateway"),
		startedAt: time.Now(),
	}
	if cfg.RateLimit > 0 {
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
	}
	return g
}

// SetHistory enables the /api/history routes and records opened files.
func (g *Gateway) SetHistory(s *history.Store) { g.history = s }

// SetNotes enables the /api/notes routes.
func (g *Gateway) SetNotes(s *notes.Store) { g.notes = s }

// SetKeystore lets requests without a key fall back to a stored one.
func (g *Gateway) SetKeystore(s keystore.Store) { g.keys = s }

// Handler returns the routed handler with the middleware chain applied.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", g.handleHealth)

	mux.HandleFunc("/api/open", g.handleOpen)
	mux.HandleFunc("/api/rows", g.handleRows)
	mux.HandleFunc("/api/exec", g.handleExec)
	mux.HandleFunc("/api/definition", g.handleDefinition)
	mux.HandleFunc("/api/edit", g.handleEdit)
	mux.HandleFunc("/api/release", g.handleRelease)
	mux.HandleFunc("/api/connections", g.handleConnections)
	mux.HandleFunc("/api/history", g.handleHistory)
	mux.HandleFunc("/api/notes", g.handleNotes)

	return g.requestIDMiddleware(
		g.securityHeadersMiddleware(
			g.corsMiddleware(
				g.rateLimitMiddleware(
					g.authMiddleware(mux)))))
}

// Start starts the HTTP server in the background.
func (g *Gateway) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Address)
	if err != nil {
		return err
	}

	g.startedAt = time.Now()
	g.server = &http.Server{
		Handler:           g.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	if !g.config.authEnabled() && !isLoopback(g.config.Address) {
		g.logger.Warn("SECURITY: gateway has no auth configured and is bound to a non-loopback address; anyone on the network can read and modify opened databases",
			"address", g.config.Address)
	}

	go func() {
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway server error", "error", err)
		}
	}()
	g.logger.Info("gateway started", "address", ln.Addr().String())
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("gateway stopping...")
	return g.server.Shutdown(ctx)
}

func isLoopback(address string) bool {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	if host == "" {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
