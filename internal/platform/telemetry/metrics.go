// Package telemetry exposes the Prometheus metrics of the billing service.
package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector. A nil *Metrics is valid and records nothing.
type Metrics struct {
	DocumentsRendered    *prometheus.CounterVec
	DocumentPages        prometheus.Histogram
	RenderDuration       *prometheus.HistogramVec
	ValidationRejections *prometheus.CounterVec
	TxRetries            prometheus.Counter
	PairedActsCreated    prometheus.Counter
	CalendarDeliveries   *prometheus.CounterVec
	HTTPRequests         *prometheus.HistogramVec

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg. Pass prometheus.NewRegistry() in
// tests so repeated construction does not collide.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		DocumentsRendered: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homecare_documents_rendered_total",
			Help: "Documents rendered by variant (invoice, participation) and outcome",
		}, []string{"kind", "outcome"}),

		DocumentPages: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "homecare_document_invoice_pages",
			Help:    "Invoice pages per rendered document",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}),

		RenderDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "homecare_document_render_duration_seconds",
			Help:    "Duration of document composition and rendering",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"kind"}),

		ValidationRejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homecare_validation_rejections_total",
			Help: "Writes rejected by business rules, by entity and field",
		}, []string{"entity", "field"}),

		TxRetries: f.NewCounter(prometheus.CounterOpts{
			Name: "homecare_tx_retries_total",
			Help: "Serializable transactions retried after a conflict",
		}),

		PairedActsCreated: f.NewCounter(prometheus.CounterOpts{
			Name: "homecare_paired_acts_created_total",
			Help: "Companion at-home acts created automatically",
		}),

		CalendarDeliveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "homecare_calendar_deliveries_total",
			Help: "Calendar notifications by action and outcome",
		}, []string{"action", "outcome"}),

		HTTPRequests: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "homecare_http_request_duration_seconds",
			Help:    "HTTP request duration by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		gatherer: reg,
	}
}

func (m *Metrics) ObserveRender(kind string, pages int, d time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.DocumentsRendered.WithLabelValues(kind, outcome).Inc()
	if err == nil {
		m.DocumentPages.Observe(float64(pages))
	}
	m.RenderDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) IncrementRejection(entity string, fields []string) {
	if m == nil {
		return
	}
	for _, f := range fields {
		m.ValidationRejections.WithLabelValues(entity, f).Inc()
	}
}

func (m *Metrics) IncrementTxRetry() {
	if m != nil {
		m.TxRetries.Inc()
	}
}

func (m *Metrics) IncrementPairedAct() {
	if m != nil {
		m.PairedActsCreated.Inc()
	}
}

func (m *Metrics) IncrementCalendarDelivery(action string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.CalendarDeliveries.WithLabelValues(action, outcome).Inc()
}

// Middleware records request durations labelled by the matched route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.HTTPRequests.
				WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).
				Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
