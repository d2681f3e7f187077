package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"
	"unicode/utf8"

	"github.com/zeebo/blake3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"htmlurl/internal/converter"
	"htmlurl/internal/metrics"
	"htmlurl/internal/model"
	"htmlurl/internal/storage"
)

var (
	ErrEmptyPayload   = errors.New("empty payload")
	ErrInvalidPayload = errors.New("invalid payload")
)

var tracer = otel.Tracer("htmlurl/internal/service")

// Settings are the configured limits the service enforces and reports.
type Settings struct {
	BaseURL          string
	PDFEnabled       bool
	MaxFileAge       time.Duration
	MaxContentLength int64
	APIKeyRequired   bool
}

// UploadResult is the response body of a successful upload.
// PDF fields are present only when a PDF was generated.
type UploadResult struct {
	Success      bool   `json:"success"`
	ID           string `json:"id"`
	Filename     string `json:"filename"`
	URL          string `json:"url"`
	PDFFilename  string `json:"pdf_filename,omitempty"`
	PDFURL       string `json:"pdf_url,omitempty"`
	PDFGenerated bool   `json:"pdf_generated"`
}

// File is an artifact opened for serving.
type File struct {
	Artifact model.Artifact
	Content  []byte
	// ETag is a quoted BLAKE3 digest of Content.
	ETag string
}

// FileStats describes one stored artifact in the stats listing.
type FileStats struct {
	Filename       string  `json:"filename"`
	Type           string  `json:"type"`
	SizeKB         float64 `json:"size_kb"`
	AgeHours       float64 `json:"age_hours"`
	RemainingHours float64 `json:"remaining_hours"`
}

// Stats aggregates the current artifact set and the configured limits.
type Stats struct {
	TotalFiles     int         `json:"total_files"`
	HTMLFiles      int         `json:"html_files"`
	PDFFiles       int         `json:"pdf_files"`
	TotalSizeMB    float64     `json:"total_size_mb"`
	MaxAgeHours    float64     `json:"max_age_hours"`
	MaxFileSizeMB  float64     `json:"max_file_size_mb"`
	APIKeyRequired bool        `json:"api_key_required"`
	PDFEnabled     bool        `json:"pdf_enabled"`
	Files          []FileStats `json:"files"`
}

// HealthStatus is the liveness report. GotenbergConnected is nil when PDF generation is disabled.
type HealthStatus struct {
	Status             string `json:"status"`
	PDFEnabled         bool   `json:"pdf_enabled"`
	GotenbergConnected *bool  `json:"gotenberg_connected"`
}

// DocumentService defines the use cases for handling uploaded documents.
type DocumentService interface {
	// Upload validates the payload, stores the HTML and, when enabled, renders its PDF.
	// A failed conversion never fails the upload.
	Upload(ctx context.Context, p model.Payload) (*UploadResult, error)

	// Open returns the artifact content for serving.
	Open(ctx context.Context, id string, kind model.Kind) (*File, error)

	// Stats returns a snapshot of the stored artifacts.
	Stats(ctx context.Context) (*Stats, error)

	// Health reports liveness and renderer connectivity.
	Health(ctx context.Context) *HealthStatus
}

// documentService is a concrete implementation of DocumentService.
type documentService struct {
	store    storage.ContentStore
	conv     converter.Converter
	settings Settings
	log      *slog.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// Option customizes the service.
type Option func(*documentService)

// WithMetrics records upload outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *documentService) { s.metrics = m }
}

// WithClock replaces time.Now for age computations.
func WithClock(now func() time.Time) Option {
	return func(s *documentService) { s.now = now }
}

// NewDocumentService constructs a new DocumentService. conv may be nil when PDF generation is disabled.
func NewDocumentService(store storage.ContentStore, conv converter.Converter, settings Settings, log *slog.Logger, opts ...Option) DocumentService {
	s := &documentService{
		store:    store,
		conv:     conv,
		settings: settings,
		log:      log.With("component", "service"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *documentService) pdfEnabled() bool {
	return s.settings.PDFEnabled && s.conv != nil
}

func (s *documentService) Upload(ctx context.Context, p model.Payload) (*UploadResult, error) {
	if err := s.validate(p); err != nil {
		s.metrics.Upload("rejected")
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "service.Upload")
	defer span.End()

	html, err := s.store.Create(ctx, model.KindHTML, p.Data)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "store html failed")
		s.metrics.Upload("failed")
		return nil, fmt.Errorf("store html: %w", err)
	}
	span.SetAttributes(attribute.String("artifact.id", html.ID))
	s.log.InfoContext(ctx, "html_created", "filename", html.Filename(), "size", html.Size)

	res := &UploadResult{
		Success:  true,
		ID:       html.ID,
		Filename: html.Filename(),
		URL:      s.fileURL(html.Filename()),
	}

	if s.pdfEnabled() {
		conv := s.conv.Convert(ctx, html.ID, p.Data)
		if conv.Succeeded() {
			res.PDFFilename = conv.PDF.Filename()
			res.PDFURL = s.fileURL(res.PDFFilename)
			res.PDFGenerated = true
			s.log.InfoContext(ctx, "pdf_created", "filename", res.PDFFilename, "size", conv.PDF.Size)
		}
	}

	s.metrics.Upload("success")
	return res, nil
}

// validate checks the tagged payload before anything touches the disk.
func (s *documentService) validate(p model.Payload) error {
	if p.Kind != model.KindHTML {
		return fmt.Errorf("%w: uploads must be html", ErrInvalidPayload)
	}
	if p.DeclaredLength > s.settings.MaxContentLength {
		return fmt.Errorf("%w: declared %d bytes", storage.ErrPayloadTooLarge, p.DeclaredLength)
	}
	if len(p.Data) == 0 {
		return ErrEmptyPayload
	}
	if int64(len(p.Data)) > s.settings.MaxContentLength {
		return fmt.Errorf("%w: %d bytes", storage.ErrPayloadTooLarge, len(p.Data))
	}
	if !utf8.Valid(p.Data) {
		return fmt.Errorf("%w: body is not valid UTF-8", ErrInvalidPayload)
	}
	return nil
}

func (s *documentService) Open(ctx context.Context, id string, kind model.Kind) (*File, error) {
	data, a, err := s.store.Read(ctx, id, kind)
	if err != nil {
		return nil, err
	}
	return &File{Artifact: a, Content: data, ETag: ETag(data)}, nil
}

func (s *documentService) Stats(ctx context.Context) (*Stats, error) {
	artifacts, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	st := &Stats{
		MaxAgeHours:    s.settings.MaxFileAge.Hours(),
		MaxFileSizeMB:  float64(s.settings.MaxContentLength) / 1024 / 1024,
		APIKeyRequired: s.settings.APIKeyRequired,
		PDFEnabled:     s.settings.PDFEnabled,
		Files:          make([]FileStats, 0, len(artifacts)),
	}
	var total int64
	for _, a := range artifacts {
		switch a.Kind {
		case model.KindHTML:
			st.HTMLFiles++
		case model.KindPDF:
			st.PDFFiles++
		}
		total += a.Size

		age := now.Sub(a.CreatedAt)
		remaining := s.settings.MaxFileAge - age
		if remaining < 0 {
			remaining = 0
		}
		st.Files = append(st.Files, FileStats{
			Filename:       a.Filename(),
			Type:           string(a.Kind),
			SizeKB:         round2(float64(a.Size) / 1024),
			AgeHours:       round2(age.Hours()),
			RemainingHours: round2(remaining.Hours()),
		})
	}
	st.TotalFiles = len(artifacts)
	st.TotalSizeMB = round2(float64(total) / 1024 / 1024)
	return st, nil
}

func (s *documentService) Health(ctx context.Context) *HealthStatus {
	h := &HealthStatus{Status: "healthy", PDFEnabled: s.settings.PDFEnabled}
	if s.pdfEnabled() {
		connected := true
		if err := s.conv.Ping(ctx); err != nil {
			connected = false
			s.log.WarnContext(ctx, "renderer_unreachable", "error", err)
		}
		h.GotenbergConnected = &connected
	}
	return h
}

func (s *documentService) fileURL(filename string) string {
	return s.settings.BaseURL + "/files/" + filename
}

// ETag returns a strong entity tag derived from content.
func ETag(content []byte) string {
	sum := blake3.Sum256(content)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
