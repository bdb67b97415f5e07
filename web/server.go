package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trypie/config"
	"trypie/service"
)

// Options configures the HTTP server. An empty JWTSecret is only accepted in dev mode,
// where callers identify themselves with DevUserHeader.
type Options struct {
	Port         int
	Dev          bool
	AllowOrigins []string
	RateLimit    string
	JWTSecret    string
}

func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Port:         cfg.Server.Port,
		Dev:          cfg.Server.Dev,
		AllowOrigins: cfg.Server.AllowOrigins,
		RateLimit:    cfg.Server.RateLimit,
		JWTSecret:    cfg.Auth.JWTSecret,
	}
}

type Server struct {
	opts    Options
	engine  *gin.Engine
	metrics *httpMetrics
}

func NewServer(opts Options, svc *service.ExpenseService) (*Server, error) {
	if opts.RateLimit == "" {
		opts.RateLimit = "300-M"
	}
	var tokens *TokenManager
	switch {
	case opts.JWTSecret != "":
		tokens = NewTokenManager(opts.JWTSecret)
	case opts.Dev:
		slog.Warn("no jwt secret, trusting the " + DevUserHeader + " header")
	default:
		return nil, errors.New("jwt secret is required outside dev mode")
	}

	if !opts.Dev {
		gin.SetMode(gin.ReleaseMode)
	}
	s := &Server{opts: opts, engine: gin.New(), metrics: newHTTPMetrics()}
	if err := setupMiddlewares(s.engine, opts, s.metrics); err != nil {
		return nil, err
	}
	s.routes(&handler{svc: svc}, tokens)
	return s, nil
}

func (s *Server) routes(h *handler, tokens *TokenManager) {
	r := s.engine
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})))

	api := r.Group("/api/v1")
	api.GET("/currencies/:code", currency)

	authed := api.Group("", RequireAuth(tokens), GroupDataLoaderInjectionMiddleware(h.svc.DB))
	authed.POST("/groups", h.createGroup)
	authed.GET("/groups/:id", h.getGroup)
	authed.GET("/groups/:id/members", h.listMembers)
	authed.POST("/groups/:id/members", h.addMember)
	authed.DELETE("/groups/:id/members/:userId", h.removeMember)
	authed.GET("/groups/:id/expenses", h.listExpenses)
	authed.POST("/groups/:id/expenses", h.createExpense)
	authed.GET("/groups/:id/expenses/export", h.exportExpenses)
	authed.GET("/groups/:id/balances", h.balances)
	authed.GET("/groups/:id/events", h.events(newUpgrader(s.opts.Dev, s.opts.AllowOrigins)))
	authed.GET("/expenses/:id", h.getExpense)
	authed.PATCH("/expenses/:id", h.updateExpense)
	authed.DELETE("/expenses/:id", h.deleteExpense)
	authed.PUT("/shares/:id/paid", h.setSharePaid)
	authed.GET("/shares/:id/history", h.shareHistory)
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is done, then drains open requests for up to ten seconds.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.opts.Port),
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}
