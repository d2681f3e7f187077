package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"htmlurl/docs"
	"htmlurl/internal/config"
	"htmlurl/internal/converter"
	handlers "htmlurl/internal/http/handler"
	"htmlurl/internal/http/middleware"
	"htmlurl/internal/janitor"
	"htmlurl/internal/logging"
	"htmlurl/internal/metrics"
	"htmlurl/internal/otel"
	"htmlurl/internal/ratelimit"
	"htmlurl/internal/service"
	"htmlurl/internal/storage"
)

const (
	limiterEvictInterval = time.Minute
	shutdownTimeout      = 10 * time.Second
	// bodySlack lets slightly oversized bodies reach the handler so they get
	// a PAYLOAD_TOO_LARGE envelope instead of a dropped connection.
	bodySlack = 64 << 10
)

// @title HTML to URL
// @version 1.3.0
// @description Ephemeral HTML hosting with optional PDF rendering.
// @BasePath /
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	log := logging.New(os.Stdout, cfg.Location, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log, "htmlurl")
	if err != nil {
		log.Error("tracing_init_failed", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(reg)
	if err != nil {
		log.Error("metrics_init_failed", "error", err)
		os.Exit(1)
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Error("metrics_init_failed", "error", err)
		os.Exit(1)
	}

	store, err := storage.NewLocal(cfg.Storage)
	if err != nil {
		log.Error("storage_init_failed", "dir", cfg.Storage.Dir, "error", err)
		os.Exit(1)
	}

	// Left nil when disabled so the service never attempts a conversion.
	var conv converter.Converter
	if cfg.PDF.Enabled {
		conv = converter.NewGotenberg(cfg.PDF, store, log,
			converter.WithMaxPDFSize(cfg.Storage.MaxPDFSize),
			converter.WithMetrics(m),
		)
	}

	docSvc := service.NewDocumentService(store, conv, service.Settings{
		BaseURL:          cfg.BaseURL,
		PDFEnabled:       cfg.PDF.Enabled,
		MaxFileAge:       cfg.Storage.MaxFileAge,
		MaxContentLength: cfg.Storage.MaxContentLength,
		APIKeyRequired:   cfg.APIKeyRequired(),
	}, log, service.WithMetrics(m))

	limiter := ratelimit.New(map[ratelimit.Route][]ratelimit.Budget{
		ratelimit.RouteUpload: budgets(cfg.RateLimit.Upload),
		ratelimit.RouteFiles:  budgets(cfg.RateLimit.Files),
		ratelimit.RouteStats:  budgets(cfg.RateLimit.Stats),
	}, budgets(cfg.RateLimit.Global))

	jan := janitor.New(store, cfg.Storage.MaxFileAge, cfg.Storage.CleanupInterval, log, janitor.WithMetrics(m))

	app := fiber.New(fiber.Config{
		AppName:               handlers.ServiceName,
		ErrorHandler:          handlers.ErrorHandler(),
		BodyLimit:             int(cfg.Storage.MaxContentLength) + bodySlack,
		ProxyHeader:           cfg.ProxyHeader,
		DisableStartupMessage: true,
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(middleware.Timing())
	app.Use(otelfiber.Middleware())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.LoggerWith(log))
	app.Use(httpMetrics.Handler())
	app.Use(cors.New())
	app.Use(compress.New())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Swagger UI with dynamic host and scheme
	app.Get("/docs/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	handlers.RegisterRoutes(app, handlers.Deps{
		Config:  cfg,
		Service: docSvc,
		Limiter: limiter,
		Metrics: m,
	})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		jan.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		limiter.Run(ctx, limiterEvictInterval)
	}()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server_started",
			"port", cfg.Port,
			"storage_dir", store.Root(),
			"pdf_enabled", cfg.PDF.Enabled,
			"api_key_required", cfg.APIKeyRequired(),
		)
		serveErr <- app.Listen(":" + cfg.Port)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Error("server_failed", "error", err)
		}
		stop()
	case <-ctx.Done():
	}

	log.Info("server_stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Error("server_shutdown_failed", "error", err)
	}
	wg.Wait()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracing_shutdown_failed", "error", err)
	}
	log.Info("server_stopped")
}

func budgets(rates []config.Rate) []ratelimit.Budget {
	out := make([]ratelimit.Budget, 0, len(rates))
	for _, r := range rates {
		out = append(out, ratelimit.Budget{Limit: r.Limit, Window: r.Window})
	}
	return out
}
