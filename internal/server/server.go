// Package server is the single-page transcription web service.
package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fmueller/transkribera/internal/apperr"
	"github.com/fmueller/transkribera/internal/config"
	"github.com/fmueller/transkribera/internal/metrics"
	"github.com/fmueller/transkribera/internal/transcribe"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

//go:embed web/index.html
var webFS embed.FS

// Transcriber is the pipeline surface handlers use.
type Transcriber interface {
	TranscribeFile(ctx context.Context, path, language string) (transcribe.Result, error)
}

// Loader produces the pipeline; it runs once in the background.
type Loader func(ctx context.Context) (Transcriber, error)

// App owns everything request handlers share.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	metrics   *metrics.Metrics
	readiness *Readiness
	uploadDir string
	loadOnce  sync.Once
}

func New(cfg config.Config, logger *zap.Logger, m *metrics.Metrics) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.New()
	}
	return &App{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		readiness: NewReadiness(),
		uploadDir: os.TempDir(),
	}
}

func (a *App) Readiness() *Readiness {
	return a.readiness
}

// ModelLoader loads the model handle described by cfg and wraps it in a
// pipeline.
func ModelLoader(cfg config.Config, logger *zap.Logger) Loader {
	return func(ctx context.Context) (Transcriber, error) {
		opts := cfg.ModelOptions()
		opts.Logger = logger

		pc := cfg.PipelineConfig()
		pc.Logger = logger

		p, handle, err := transcribe.Load(ctx, opts, pc)
		if err != nil {
			return nil, err
		}
		logger.Info("pipeline ready", zap.String("model", handle.Name), zap.String("device", string(handle.Device)), zap.String("backend", handle.Backend))
		return p, nil
	}
}

// StartLoading runs load in a background goroutine. Only the first call has
// any effect; the outcome is never retried.
func (a *App) StartLoading(ctx context.Context, load Loader) {
	a.loadOnce.Do(func() {
		a.metrics.SetModelReady(false)
		go a.runLoader(ctx, load)
	})
}

func (a *App) runLoader(ctx context.Context, load Loader) {
	started := time.Now()
	a.logger.Info("loading model in background", zap.String("model", a.cfg.Model.Name), zap.String("backend", a.cfg.Model.Backend))

	t, err := safeLoad(ctx, load)
	a.readiness.Complete(t, err)

	if err != nil {
		a.logger.Error("model load failed", zap.Duration("elapsed", time.Since(started)), zap.Error(err))
		return
	}
	a.metrics.SetModelReady(true)
	a.logger.Info("model ready for transcriptions", zap.Duration("elapsed", time.Since(started)))
}

func safeLoad(ctx context.Context, load Loader) (t Transcriber, err error) {
	defer func() {
		if r := recover(); r != nil {
			t, err = nil, apperr.Newf(apperr.KindModelLoad, "load model", "loader panicked: %v", r)
		}
	}()
	if load == nil {
		return nil, apperr.Newf(apperr.KindModelLoad, "load model", "no loader configured")
	}
	t, err = load(ctx)
	if err == nil && t == nil {
		err = apperr.Newf(apperr.KindModelLoad, "load model", "loader returned no pipeline")
	}
	return t, err
}

// Router builds the gin engine with every route registered.
func (a *App) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), a.requestLogger())
	r.SetHTMLTemplate(template.Must(template.New("").ParseFS(webFS, "web/index.html")))

	r.GET("/", a.handleIndex)
	r.GET("/status", a.handleStatus)
	r.POST("/transcribe", a.handleTranscribe)
	r.GET("/download", a.handleDownload)
	r.GET("/healthz", a.handleHealth)
	r.GET("/metrics", gin.WrapH(a.metrics.Handler()))

	return r
}

// Run listens on the configured address until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", a.cfg.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve handles requests on ln and shuts down gracefully when ctx is done.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("server starting", zap.String("addr", ln.Addr().String()), zap.String("url", "http://"+displayAddr(ln.Addr())))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		a.logger.Info("shutting down server")

		timeout := a.cfg.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		a.logger.Info("server shutdown complete")
		return nil
	})

	return g.Wait()
}

func displayAddr(addr net.Addr) string {
	s := addr.String()
	if strings.HasPrefix(s, "[::]:") {
		return "localhost:" + strings.TrimPrefix(s, "[::]:")
	}
	if strings.HasPrefix(s, "0.0.0.0:") {
		return "localhost:" + strings.TrimPrefix(s, "0.0.0.0:")
	}
	return s
}
