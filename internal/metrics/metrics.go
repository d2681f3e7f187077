package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the domain collectors. A nil *Metrics is valid and records nothing,
// so components can be built without a registry in tests.
type Metrics struct {
	uploads        *prometheus.CounterVec
	conversions    *prometheus.CounterVec
	janitorDeleted prometheus.Counter
	janitorErrors  prometheus.Counter
	rateLimited    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "htmlurl_uploads_total",
			Help: "Uploads by outcome.",
		}, []string{"result"}),
		conversions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "htmlurl_pdf_conversions_total",
			Help: "PDF conversions by status.",
		}, []string{"status"}),
		janitorDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "htmlurl_janitor_deleted_total",
			Help: "Artifacts removed by the expiry sweep.",
		}),
		janitorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "htmlurl_janitor_errors_total",
			Help: "Per-artifact failures during the expiry sweep.",
		}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "htmlurl_rate_limited_total",
			Help: "Requests rejected by admission control, by route class.",
		}, []string{"route"}),
	}

	for _, c := range []prometheus.Collector{m.uploads, m.conversions, m.janitorDeleted, m.janitorErrors, m.rateLimited} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) Upload(result string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(result).Inc()
}

func (m *Metrics) Conversion(status string) {
	if m == nil {
		return
	}
	m.conversions.WithLabelValues(status).Inc()
}

func (m *Metrics) JanitorSweep(deleted, failed int) {
	if m == nil {
		return
	}
	m.janitorDeleted.Add(float64(deleted))
	m.janitorErrors.Add(float64(failed))
}

func (m *Metrics) RateLimited(route string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(route).Inc()
}
