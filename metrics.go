package geiri

import (
	"sort"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"
)

const (
	metricsNamespace = "geiri"
	metricsSubsystem = "http"
	requestsMetric   = metricsNamespace + "_" + metricsSubsystem + "_requests_total"
)

// Cross-post outcomes.
const (
	outcomePosted  = "posted"
	outcomeSkipped = "skipped"
	outcomeFailed  = "failed"
)

// Metrics is the app-local Prometheus registry.
type Metrics struct {
	Registry   *prometheus.Registry
	crossPosts *prometheus.CounterVec
}

// NewMetrics creates a registry with Go runtime collectors and the
// cross-post counter registered.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		crossPosts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "linkedin",
			Name:      "crossposts_total",
			Help:      "LinkedIn cross-post attempts on publish, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.crossPosts,
	)
	return m
}

// Middleware records request counts and latencies into the registry.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Namespace:                 metricsNamespace,
		Subsystem:                 metricsSubsystem,
		Registerer:                m.Registry,
		DoNotUseRequestPathFor404: true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics"
		},
	})
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: m.Registry})
}

func (m *Metrics) crossPosted(outcome string) {
	m.crossPosts.WithLabelValues(outcome).Inc()
}

// PageCount is one row of the top pages table.
type PageCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// RequestStats summarises served requests since the process started.
type RequestStats struct {
	Enabled       bool        `json:"enabled"`
	TotalRequests int         `json:"totalRequests"`
	TopPages      []PageCount `json:"topPages"`
}

// Stats sums the request counter by route, keeping the top n routes.
func (m *Metrics) Stats(n int) (RequestStats, error) {
	families, err := m.Registry.Gather()
	if err != nil {
		return RequestStats{}, err
	}
	byRoute := map[string]float64{}
	var total float64
	for _, mf := range families {
		if mf.GetName() != requestsMetric {
			continue
		}
		for _, metric := range mf.GetMetric() {
			v := metric.GetCounter().GetValue()
			total += v
			byRoute[labelValue(metric, "url")] += v
		}
	}

	top := make([]PageCount, 0, len(byRoute))
	for name, count := range byRoute {
		if name == "" {
			continue
		}
		top = append(top, PageCount{Name: name, Count: int(count)})
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Count != top[j].Count {
			return top[i].Count > top[j].Count
		}
		return top[i].Name < top[j].Name
	})
	if len(top) > n {
		top = top[:n]
	}
	return RequestStats{Enabled: true, TotalRequests: int(total), TopPages: top}, nil
}

func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
