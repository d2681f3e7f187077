package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"htmlurl/internal/config"
	"htmlurl/internal/model"
	"htmlurl/internal/service"
	"htmlurl/internal/storage"
)

const (
	// ServiceName and Version are reported by the index endpoint.
	ServiceName = "HTML to URL"
	Version     = "1.3.0"

	fileCacheControl = "public, max-age=3600"
)

// Upload stores the raw request body as an HTML artifact.
//
// @Summary Upload HTML
// @Description Stores the raw body as HTML and, when enabled, renders a PDF of it.
// @Tags files
// @Accept html
// @Produce json
// @Param X-API-Key header string false "API key, required when configured"
// @Success 200 {object} service.UploadResult
// @Failure 400 {object} errorPayload
// @Failure 401 {object} errorPayload
// @Failure 413 {object} errorPayload
// @Failure 429 {object} errorPayload
// @Failure 503 {object} errorPayload
// @Router /upload [post]
func Upload(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		declared := int64(c.Request().Header.ContentLength())
		if declared < 0 {
			declared = -1
		}

		// The body buffer is reused after the handler returns.
		p := model.Payload{
			Kind:           model.KindHTML,
			Data:           utils.CopyBytes(c.Body()),
			DeclaredLength: declared,
		}

		res, err := svc.Upload(c.UserContext(), p)
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(res)
	}
}

// ServeFile serves a stored artifact by its filename.
//
// @Summary Get file
// @Description Returns the stored HTML or PDF. Unknown, expired and malformed names are all 404.
// @Tags files
// @Produce html
// @Produce application/pdf
// @Param filename path string true "Artifact filename, e.g. a3f2c1b9e4d7.html"
// @Success 200 {file} file
// @Success 304 {string} string "not modified"
// @Failure 404 {object} errorPayload
// @Failure 429 {object} errorPayload
// @Router /files/{filename} [get]
func ServeFile(svc service.DocumentService, csp string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, kind, ok := storage.ParseFilename(c.Params("filename"))
		if !ok {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "file not found")
		}

		f, err := svc.Open(c.UserContext(), id, kind)
		if err != nil {
			return writeDomainError(c, err)
		}

		c.Set(fiber.HeaderETag, f.ETag)
		c.Set(fiber.HeaderCacheControl, fileCacheControl)
		c.Set(fiber.HeaderXContentTypeOptions, "nosniff")
		switch kind {
		case model.KindHTML:
			if csp != "" {
				c.Set(fiber.HeaderContentSecurityPolicy, csp)
			}
			c.Set(fiber.HeaderXFrameOptions, "SAMEORIGIN")
		case model.KindPDF:
			c.Set(fiber.HeaderContentDisposition, `inline; filename="`+f.Artifact.Filename()+`"`)
		}

		if etagMatches(c.Get(fiber.HeaderIfNoneMatch), f.ETag) {
			c.Status(fiber.StatusNotModified)
			return nil
		}

		c.Set(fiber.HeaderContentType, kind.ContentType())
		return c.Send(f.Content)
	}
}

// etagMatches reports whether an If-None-Match header value names etag.
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

// Stats reports the stored artifacts and the configured limits.
//
// @Summary Storage stats
// @Tags ops
// @Produce json
// @Success 200 {object} service.Stats
// @Failure 429 {object} errorPayload
// @Failure 503 {object} errorPayload
// @Router /stats [get]
func Stats(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		st, err := svc.Stats(c.UserContext())
		if err != nil {
			return writeDomainError(c, err)
		}
		return c.JSON(st)
	}
}

// Health reports liveness and, when PDF generation is enabled, renderer connectivity.
//
// @Summary Health check
// @Tags ops
// @Produce json
// @Success 200 {object} service.HealthStatus
// @Router /health [get]
func Health(svc service.DocumentService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(svc.Health(c.UserContext()))
	}
}

// LivenessProbe is a bare 200 for orchestrators.
func LivenessProbe() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	}
}

// Index describes the service, its endpoints and its limits.
//
// @Summary Service index
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]any
// @Router / [get]
func Index(cfg *config.AppConfig) fiber.Handler {
	body := fiber.Map{
		"service": ServiceName,
		"version": Version,
		"docs":    cfg.BaseURL + "/docs/index.html",
		"endpoints": fiber.Map{
			"upload": "POST /upload",
			"files":  "GET /files/{filename}",
			"stats":  "GET /stats",
			"health": "GET /health",
		},
		"config": fiber.Map{
			"max_file_size_mb":   float64(cfg.Storage.MaxContentLength) / 1024 / 1024,
			"file_max_age_hours": cfg.Storage.MaxFileAge.Hours(),
			"api_key_required":   cfg.APIKeyRequired(),
			"pdf_enabled":        cfg.PDF.Enabled,
			"rate_limits": fiber.Map{
				"upload": rateStrings(cfg.RateLimit.Upload),
				"files":  rateStrings(cfg.RateLimit.Files),
				"stats":  rateStrings(cfg.RateLimit.Stats),
				"global": rateStrings(cfg.RateLimit.Global),
			},
		},
	}
	return func(c *fiber.Ctx) error {
		return c.JSON(body)
	}
}

func rateStrings(rates []config.Rate) []string {
	out := make([]string, 0, len(rates))
	for _, r := range rates {
		out = append(out, r.String())
	}
	return out
}
