// Package devproxy is the development reverse proxy that lets a front end
// served on one origin reach the document backend under the same origin.
//
// Requests under Config.Prefix (default "/api") are forwarded to
// Config.Target with the configured path rewrites applied; everything else
// is served from Config.StaticDir when one is set.
package devproxy

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/u13596216391/OCR-v1/internal/health"
	"go.uber.org/zap"
)

// Proxy forwards API requests to the backend.
type Proxy struct {
	cfg      Config
	target   *url.URL
	rewriter *pathRewriter
	reverse  *httputil.ReverseProxy
	checker  *health.Checker
	logger   *zap.Logger
	stop     chan struct{}
}

// New builds a Proxy from cfg.
func New(cfg Config, logger *zap.Logger) (*Proxy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	target, err := url.Parse(cfg.Target)
	if err != nil {
		return nil, err
	}
	rewriter, err := newPathRewriter(cfg.Rewrite)
	if err != nil {
		return nil, err
	}

	p := &Proxy{
		cfg:      cfg,
		target:   target,
		rewriter: rewriter,
		logger:   logger,
		stop:     make(chan struct{}),
	}
	p.reverse = &httputil.ReverseProxy{
		Rewrite:      p.rewriteRequest,
		ErrorHandler: p.handleUpstreamError,
	}

	healthURL := strings.TrimRight(target.String(), "/") + "/" + strings.TrimLeft(cfg.HealthPath, "/")
	p.checker = health.New(healthURL, health.Config{
		CheckInterval: cfg.HealthInterval,
		FailThreshold: cfg.HealthFailThreshold,
	}, logger)
	p.checker.SetMetricsRecord(RecordHealthCheck)

	return p, nil
}

// Checker exposes the backend health checker so the caller can run it.
func (p *Proxy) Checker() *health.Checker {
	return p.checker
}

// Close stops background goroutines started by Handler.
func (p *Proxy) Close() {
	select {
	case <-p.stop:
	default:
		close(p.stop)
	}
}

// matches reports whether path falls under the proxied prefix.
func (p *Proxy) matches(path string) bool {
	prefix := strings.TrimRight(p.cfg.Prefix, "/")
	if prefix == "" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// rewriteRequest points the outbound request at the backend. Rules run on
// the escaped path so encoded separators inside a segment survive.
func (p *Proxy) rewriteRequest(pr *httputil.ProxyRequest) {
	escaped := p.rewriter.rewrite(pr.In.URL.EscapedPath())
	path, err := url.PathUnescape(escaped)
	if err != nil {
		path = escaped
	}
	pr.Out.URL.Path = path
	pr.Out.URL.RawPath = escaped
	pr.SetURL(p.target)
	pr.SetXForwarded()
	if !p.cfg.ChangeOrigin {
		pr.Out.Host = pr.In.Host
	}
}

func (p *Proxy) handleUpstreamError(w http.ResponseWriter, r *http.Request, err error) {
	proxyUpstreamErrorsTotal.Inc()
	p.logger.Warn("upstream request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("target", p.cfg.Target),
		zap.Error(err),
	)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusBadGateway)
	_, _ = w.Write([]byte(`{"error":"backend unavailable"}`))
}

// Handler builds the gin router.
func (p *Proxy) Handler() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	if len(p.cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     p.cfg.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept", RequestIDHeader},
			ExposeHeaders:    []string{"Content-Length", "Content-Disposition", RequestIDHeader},
			AllowCredentials: !containsWildcard(p.cfg.CORSOrigins),
			MaxAge:           12 * time.Hour,
		}))
	}

	router.Use(requestID())
	router.Use(prometheusMiddleware())

	if p.cfg.RateLimitRPS > 0 {
		limiter := newIPRateLimiter(p.cfg)
		go limiter.run(p.stop)
		router.Use(limiter.middleware())
	}

	router.Use(requestLogger(p.logger))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "devproxy",
			"backend": p.checker.Snapshot(),
		})
	})
	router.GET("/metrics", metricsHandler())

	router.NoRoute(p.dispatch)
	return router
}

// dispatch forwards prefixed requests and serves the front end otherwise.
func (p *Proxy) dispatch(c *gin.Context) {
	if p.matches(c.Request.URL.Path) {
		c.Set(routeKey, p.cfg.Prefix)
		p.reverse.ServeHTTP(c.Writer, c.Request)
		return
	}

	if p.cfg.StaticDir != "" {
		c.Set(routeKey, "static")
		p.serveStatic(c)
		return
	}

	c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
}

// serveStatic serves a file from StaticDir, falling back to index.html so
// client-side routes resolve.
func (p *Proxy) serveStatic(c *gin.Context) {
	root := filepath.Clean(p.cfg.StaticDir)
	name := filepath.Join(root, filepath.FromSlash(filepath.Clean("/"+c.Request.URL.Path)))

	info, err := os.Stat(name)
	if err != nil || info.IsDir() {
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("static stat failed", zap.String("path", name), zap.Error(err))
		}
		name = filepath.Join(root, "index.html")
	}
	c.File(name)
}

// containsWildcard returns true if origins includes "*".
func containsWildcard(origins []string) bool {
	for _, o := range origins {
		if strings.TrimSpace(o) == "*" {
			return true
		}
	}
	return false
}
