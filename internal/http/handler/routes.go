package handler

import (
	"github.com/gofiber/fiber/v2"

	"htmlurl/internal/config"
	"htmlurl/internal/http/middleware"
	"htmlurl/internal/metrics"
	"htmlurl/internal/ratelimit"
	"htmlurl/internal/service"
)

// Deps are the collaborators RegisterRoutes wires into the handlers.
// Limiter and Metrics may be nil.
type Deps struct {
	Config  *config.AppConfig
	Service service.DocumentService
	Limiter *ratelimit.Limiter
	Metrics *metrics.Metrics
}

// RegisterRoutes attaches the HTTP routes to app.
// Uploads are rate limited before the API key is checked, so rejected keys
// still spend the client's upload budget.
func RegisterRoutes(app *fiber.App, d Deps) {
	limit := func(r ratelimit.Route) fiber.Handler {
		return middleware.RateLimit(d.Limiter, r, d.Metrics)
	}

	// Exempt from admission control
	app.Get("/", Index(d.Config))
	app.Get("/health", Health(d.Service))
	app.Get("/healthz", LivenessProbe())

	app.Post("/upload",
		limit(ratelimit.RouteUpload),
		middleware.APIKey(d.Config.Security.APIKey),
		Upload(d.Service),
	)
	app.Get("/files/:filename",
		limit(ratelimit.RouteFiles),
		ServeFile(d.Service, d.Config.Security.CSPPolicy),
	)
	app.Get("/stats",
		limit(ratelimit.RouteStats),
		Stats(d.Service),
	)
}
