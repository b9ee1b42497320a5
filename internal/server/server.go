// Package server assembles the HTTP surface: the rewriting proxy, the pane
// and shell WebSocket endpoints, the saved-page library, pane control routes,
// and operational endpoints.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/lingolens/lingolens-go/internal/config"
	"github.com/lingolens/lingolens-go/internal/host"
	"github.com/lingolens/lingolens-go/internal/logging"
	"github.com/lingolens/lingolens-go/internal/middleware"
	"github.com/lingolens/lingolens-go/internal/monitoring"
	"github.com/lingolens/lingolens-go/internal/proxy"
	"github.com/lingolens/lingolens-go/internal/services/translate"
	"github.com/lingolens/lingolens-go/internal/storage"
	"github.com/lingolens/lingolens-go/internal/ws"
)

// Server wires the application together and owns the HTTP listener.
type Server struct {
	cfg     *config.Config
	log     *logging.Logger
	router  *gin.Engine
	httpSrv *http.Server

	metrics *monitoring.Metrics
	client  *translate.Client
	host    *host.Host
	hub     *ws.Hub
	bridge  *ws.Bridge
	library *storage.Library
}

// New builds a fully wired server from configuration.
func New(cfg *config.Config, log *logging.Logger) (*Server, error) {
	metrics := monitoring.New()
	client := translate.New(cfg.Services, log)
	hub := ws.NewHub(metrics, log)

	h := host.New(client, client,
		host.WithLogger(log),
		host.WithSink(hub),
		host.WithTimeout(cfg.Services.Timeout),
	)
	bridge := ws.NewBridge(h, cfg.Engine, metrics, log)

	library, err := storage.NewLibrary(cfg.Library.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open library: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
		client:  client,
		host:    h,
		hub:     hub,
		bridge:  bridge,
		library: library,
	}
	s.router = s.buildRouter()
	return s, nil
}

// Router exposes the route table, used by tests.
func (s *Server) Router() *gin.Engine { return s.router }

func (s *Server) buildRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS())
	r.Use(s.metrics.Middleware())

	r.GET("/", s.root)
	r.GET("/health", s.health)
	r.GET("/metrics", s.metrics.Handler())
	r.GET(s.cfg.Proxy.AgentPath, serveAgent)

	proxyRoutes := r.Group("/")
	if s.cfg.RateLimit.Enabled {
		rl := middleware.NewRateLimiter(s.cfg.RateLimit)
		proxyRoutes.Use(rl.Middleware())
	}
	proxy.NewHandler(s.cfg.Proxy, s.log).Register(proxyRoutes)

	r.GET("/stream", s.bridge.Serve)
	r.GET("/events", s.hub.Serve)

	r.GET("/panes", s.listPanes)
	r.POST("/panes/:id/language", s.setLanguage)
	r.POST("/panes/:id/batch", s.triggerBatch)
	r.POST("/panes/:id/marquee", s.toggleMarquee)
	r.POST("/panes/:id/retranslate", s.retranslate)
	r.POST("/panes/:id/state", s.requestState)
	r.POST("/panes/:id/export", s.requestExport)
	r.POST("/panes/:id/highlight", s.highlight)
	r.POST("/panes/:id/entry/retranslate", s.retranslateEntry)
	r.POST("/panes/:id/entry/update", s.updateEntry)

	r.GET("/library", s.listLibrary)
	r.POST("/library/save", s.saveToLibrary)
	r.GET("/library/:id", s.getLibraryRecord)
	r.DELETE("/library/:id", s.deleteLibraryRecord)
	r.POST("/library/:id/restore", s.restoreFromLibrary)

	return r
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	addr := s.cfg.Server.Host + ":" + s.cfg.Server.Port
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	s.log.Info("server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpSrv.Shutdown(shutdownCtx)
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "lingolens",
		"panes":   len(s.bridge.Sessions()),
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
