package interceptor

import (
	"context"
	"strconv"
	"time"

	"github.com/jamesagnew/continua-demo-fhir-server/fhirservice"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records request counts and latencies in Prometheus.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	now             func() time.Time
}

// NewMetrics creates the request metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fhir_requests_total",
				Help: "Total number of FHIR requests by interaction, resource type and status",
			},
			[]string{"interaction", "resource_type", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fhir_request_duration_seconds",
				Help:    "FHIR request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"interaction", "resource_type"},
		),
		now: time.Now,
	}
	for _, c := range []prometheus.Collector{m.requestsTotal, m.requestDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) PreHandle(ctx context.Context, req *fhirservice.Request) (*fhirservice.Response, error) {
	markStart(req, m.now)
	return nil, nil
}

func (m *Metrics) PreRespond(ctx context.Context, req *fhirservice.Request, resp *fhirservice.Response) (*fhirservice.Response, error) {
	rt := req.ResourceTypeLabel()
	m.requestsTotal.WithLabelValues(req.Interaction, rt, strconv.Itoa(resp.Status)).Inc()
	if d, ok := elapsed(req, m.now); ok {
		m.requestDuration.WithLabelValues(req.Interaction, rt).Observe(d.Seconds())
	}
	return nil, nil
}
