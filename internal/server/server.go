// Package server wires the agent together: the page submission surface,
// the broker message channel, the onboarding endpoints, and metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/KalaHanok/webclassification/internal/api/middleware"
	"github.com/KalaHanok/webclassification/internal/broker"
	"github.com/KalaHanok/webclassification/internal/collector"
	"github.com/KalaHanok/webclassification/internal/enforcer"
	"github.com/KalaHanok/webclassification/internal/fingerprint"
	"github.com/KalaHanok/webclassification/internal/formfill"
	"github.com/KalaHanok/webclassification/internal/identity"
	"github.com/KalaHanok/webclassification/internal/infrastructure/config"
	"github.com/KalaHanok/webclassification/internal/infrastructure/logging"
	"github.com/KalaHanok/webclassification/internal/infrastructure/monitoring"
	"github.com/KalaHanok/webclassification/internal/registration"
	"github.com/KalaHanok/webclassification/internal/transport"
	"github.com/KalaHanok/webclassification/internal/ws"
)

// Version identifies the agent build.
const Version = "1.0.0"

// Server is the local agent surface.
type Server struct {
	router    *gin.Engine
	http      *http.Server
	logger    *logging.Logger
	config    *config.Config
	metrics   *monitoring.Metrics
	registry  *prometheus.Registry
	broker    *broker.Broker
	collector *collector.Collector
	engine    *fingerprint.Engine
	surface   *registration.Surface
	cancel    context.CancelFunc
}

// New creates a server instance from configuration.
func New(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	registry := prometheus.NewRegistry()
	metrics := monitoring.New(registry)

	store := identity.NewStore(cfg.State.Dir, logger.Named("identity"))
	brk := broker.New(store, transport.NewClassifier(cfg.Classifier.BaseURL), logger.Named("broker"), metrics)
	enf := enforcer.New(cfg.BlockPage.URL, logger.Named("enforcer"))
	col := collector.New(brk, enf, logger.Named("collector"), metrics)
	engine := fingerprint.New(fingerprint.Options{
		Version: Version,
		Logger:  logger.Named("fingerprint"),
	})
	flow := registration.NewFlow(transport.NewAccount(cfg.Account.BaseURL), store, brk, logger.Named("registration"), metrics)

	s := &Server{
		logger:    logger,
		config:    cfg,
		metrics:   metrics,
		registry:  registry,
		broker:    brk,
		collector: col,
		engine:    engine,
	}

	// Onboarding is skipped entirely for an already-registered device;
	// the broker picks the identity up from the store at startup.
	id, err := store.Load(context.Background())
	if err != nil {
		logger.Warn("identity preload failed", zap.Error(err))
	}
	if !id.Registered {
		s.surface = registration.NewSurface(flow, logger.Named("registration"))
	}

	s.router = s.buildRouter()
	return s, nil
}

func (s *Server) buildRouter() *gin.Engine {
	if !s.config.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	router.Use(monitoring.Middleware(s.metrics))

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	pages := router.Group("/")
	if s.config.RateLimit.Enabled {
		pages.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: s.config.RateLimit.RequestsPerSecond,
			Burst:             s.config.RateLimit.Burst,
		}))
	}
	pages.POST("/v1/pages", s.handlePage)

	wsHandler := ws.NewHandler(s.broker, s.logger.Named("ws"))
	router.GET("/ws", wsHandler.HandleConnection)

	if s.surface != nil {
		s.surface.Routes(router)
	}

	return router
}

// Run starts the broker loop and serves the agent surface until Close.
func (s *Server) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.broker.Run(ctx)

	if s.surface != nil {
		go func() {
			select {
			case <-s.surface.Done():
				s.logger.Info("device onboarding complete, registration surface retired")
			case <-ctx.Done():
			}
		}()
	}

	s.http = &http.Server{
		Addr:         s.config.Server.Addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // verdicts have no deadline; a hung classifier stalls its page
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("agent surface listening",
		zap.String("addr", s.config.Server.Addr),
		zap.String("version", Version),
		zap.Bool("onboarding", s.surface != nil),
	)

	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts the server down gracefully.
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.http == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// pageRequest is one submitted page load.
type pageRequest struct {
	URL  string `json:"url" binding:"required"`
	HTML string `json:"html" binding:"required"`
}

// pageResponse is the page disposition returned to the caller.
type pageResponse struct {
	URL      string `json:"url"`
	Blocked  bool   `json:"blocked"`
	Bypassed bool   `json:"bypassed,omitempty"`
	HTML     string `json:"html"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": Version,
	})
}

// handlePage runs one page load through the collector and, for pages that
// render, embeds the device fingerprint into the returned document.
func (s *Server) handlePage(c *gin.Context) {
	var req pageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	content := []byte(req.HTML)
	if len(content) > collector.MaxPageSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "page too large"})
		return
	}
	if mt := mimetype.Detect(content); !mt.Is("text/html") && !mt.Is("text/plain") {
		c.JSON(http.StatusUnsupportedMediaType, gin.H{"error": "page content must be HTML"})
		return
	}

	page := collector.NewPageLoad(req.URL, content)
	disposition := s.collector.Inspect(c.Request.Context(), page)

	if disposition.Blocked {
		c.JSON(http.StatusOK, pageResponse{
			URL:     req.URL,
			Blocked: true,
			HTML:    disposition.ReplacementHTML,
		})
		return
	}

	c.JSON(http.StatusOK, pageResponse{
		URL:      req.URL,
		Bypassed: disposition.Bypassed,
		HTML:     s.embedIdentity(c.Request.Context(), req.HTML),
	})
}

// embedIdentity injects a freshly generated fingerprint into the page.
// Injection failure returns the page unmodified; the export surface is a
// side channel, never a gate.
func (s *Server) embedIdentity(ctx context.Context, html string) string {
	fp := s.engine.Generate(ctx)
	if s.metrics != nil {
		s.metrics.FingerprintsGenerated.Inc()
		if fp.Degraded() {
			s.metrics.FingerprintFallbacks.Inc()
		}
	}

	out, err := formfill.InjectHTML(html, fp, s.engine.Screen())
	if err != nil {
		s.logger.Warn("fingerprint injection failed", zap.Error(err))
		return html
	}
	return out
}
