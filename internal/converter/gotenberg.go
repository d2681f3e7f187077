package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"htmlurl/internal/config"
	"htmlurl/internal/metrics"
	"htmlurl/internal/model"
	"htmlurl/internal/storage"
)

const (
	convertPath = "/forms/chromium/convert/html"
	healthPath  = "/health"
	pingTimeout = 2 * time.Second
	// errorBodyLimit caps how much of a renderer error body is kept for the log.
	errorBodyLimit = 512
)

// pageOptions are the Chromium form fields sent with every conversion.
var pageOptions = map[string]string{
	"marginTop":       "1",
	"marginBottom":    "1",
	"marginLeft":      "1",
	"marginRight":     "1",
	"printBackground": "true",
}

var tracer trace.Tracer = otel.Tracer("htmlurl/internal/converter")

// Gotenberg converts HTML with a Gotenberg Chromium service.
// It holds no lock while waiting on the renderer, and the PDF is stored only
// once the complete body has been received.
type Gotenberg struct {
	baseURL string
	timeout time.Duration
	maxPDF  int64
	client  *http.Client
	store   storage.ContentStore
	log     *slog.Logger
	metrics *metrics.Metrics
}

// Option customizes a Gotenberg converter.
type Option func(*Gotenberg)

// WithHTTPClient replaces the default traced client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gotenberg) { g.client = c }
}

// WithMaxPDFSize caps the accepted PDF body.
func WithMaxPDFSize(n int64) Option {
	return func(g *Gotenberg) { g.maxPDF = n }
}

// WithMetrics records conversion outcomes.
func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gotenberg) { g.metrics = m }
}

var _ Converter = (*Gotenberg)(nil)

// NewGotenberg creates a converter for the renderer at cfg.GotenbergURL.
func NewGotenberg(cfg config.PDFConfig, store storage.ContentStore, log *slog.Logger, opts ...Option) *Gotenberg {
	g := &Gotenberg{
		baseURL: strings.TrimRight(cfg.GotenbergURL, "/"),
		timeout: cfg.Timeout,
		maxPDF:  20 << 20,
		client:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		store:   store,
		log:     log.With("component", "converter"),
	}
	if g.timeout <= 0 {
		g.timeout = 30 * time.Second
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Convert posts html to the renderer and stores the returned PDF under id.
// Timeouts, transport failures and non-2xx responses yield StatusFailed.
func (g *Gotenberg) Convert(ctx context.Context, id string, html []byte) Result {
	ctx, span := tracer.Start(ctx, "converter.Convert", trace.WithAttributes(
		attribute.String("artifact.id", id),
		attribute.Int("html.size", len(html)),
	))
	defer span.End()

	pdf, err := g.render(ctx, html)
	if err != nil {
		return g.fail(span, id, err)
	}

	a, err := g.store.CreateWithID(ctx, id, model.KindPDF, pdf)
	if err != nil {
		return g.fail(span, id, fmt.Errorf("store pdf: %w", err))
	}

	span.SetAttributes(attribute.Int64("pdf.size", a.Size))
	g.metrics.Conversion(string(StatusSucceeded))
	return Result{Status: StatusSucceeded, PDF: &a}
}

// render performs the HTTP exchange under the conversion timeout and returns the complete body.
func (g *Gotenberg) render(ctx context.Context, html []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	body, contentType, err := buildForm(html)
	if err != nil {
		return nil, fmt.Errorf("build form: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+convertPath, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("renderer timed out after %s", g.timeout)
		}
		return nil, fmt.Errorf("renderer unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return nil, fmt.Errorf("renderer returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	pdf, err := io.ReadAll(io.LimitReader(resp.Body, g.maxPDF+1))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("renderer timed out after %s", g.timeout)
		}
		return nil, fmt.Errorf("read renderer response: %w", err)
	}
	if int64(len(pdf)) > g.maxPDF {
		return nil, fmt.Errorf("renderer response exceeds %d bytes", g.maxPDF)
	}
	if len(pdf) == 0 {
		return nil, errors.New("renderer returned an empty body")
	}
	return pdf, nil
}

func (g *Gotenberg) fail(span trace.Span, id string, err error) Result {
	span.RecordError(err)
	span.SetStatus(codes.Error, "conversion failed")
	g.metrics.Conversion(string(StatusFailed))
	g.log.Warn("pdf_conversion_failed", "id", id, "reason", err.Error())
	return Result{Status: StatusFailed, Reason: err.Error()}
}

// Ping calls the renderer health endpoint with a short timeout.
func (g *Gotenberg) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+healthPath, nil)
	if err != nil {
		return err
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("renderer health returned status %d", resp.StatusCode)
	}
	return nil
}

// buildForm encodes the html as the "files" part named index.html plus the page options.
func buildForm(html []byte) (io.Reader, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="files"; filename="index.html"`)
	h.Set("Content-Type", "text/html")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(html); err != nil {
		return nil, "", err
	}
	for k, v := range pageOptions {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}
