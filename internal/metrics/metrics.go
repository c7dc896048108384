// Package metrics собирает метрики Prometheus по игровым сессиям и HTTP-запросам.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector пишет метрики сервиса в Prometheus.
type Collector struct {
	sessionsStarted  prometheus.Counter
	sessionsRejected *prometheus.CounterVec
	sessionsEnded    prometheus.Counter
	revenue          prometheus.Counter
	sessionDuration  prometheus.Histogram
	httpRequests     *prometheus.CounterVec
	httpLatency      prometheus.Histogram
}

// NewCollector создаёт Collector и регистрирует метрики в reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psmanager_sessions_started_total",
			Help: "Количество открытых сессий",
		}),
		sessionsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psmanager_sessions_rejected_total",
			Help: "Количество отклонённых попыток открыть сессию",
		}, []string{"reason"}),
		sessionsEnded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psmanager_sessions_ended_total",
			Help: "Количество закрытых сессий",
		}),
		revenue: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "psmanager_revenue_total",
			Help: "Сумма к оплате по всем закрытым сессиям",
		}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "psmanager_session_duration_minutes",
			Help:    "Длительность закрытых сессий в минутах",
			Buckets: []float64{5, 15, 30, 60, 120, 240, 480},
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "psmanager_http_requests_total",
			Help: "HTTP-ответы по методу и коду",
		}, []string{"method", "status_code"}),
		httpLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "psmanager_http_request_duration_seconds",
			Help:    "Время обработки HTTP-запроса",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.sessionsStarted,
		c.sessionsRejected,
		c.sessionsEnded,
		c.revenue,
		c.sessionDuration,
		c.httpRequests,
		c.httpLatency,
	)
	return c
}

func (c *Collector) SessionStarted() {
	c.sessionsStarted.Inc()
}

// SessionRejected учитывает отказ. reason задаётся короткой меткой вида "device_busy".
func (c *Collector) SessionRejected(reason string) {
	c.sessionsRejected.WithLabelValues(reason).Inc()
}

func (c *Collector) SessionEnded(totalDue int64, duration time.Duration) {
	c.sessionsEnded.Inc()
	c.revenue.Add(float64(totalDue))
	c.sessionDuration.Observe(duration.Minutes())
}

// Middleware считает HTTP-ответы и время их обработки.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		c.httpRequests.WithLabelValues(r.Method, strconv.Itoa(status)).Inc()
		c.httpLatency.Observe(time.Since(start).Seconds())
	})
}

// Handler отдаёт метрики для сбора Prometheus.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop ничего не записывает.
type Noop struct{}

func (Noop) SessionStarted() {}
func (Noop) SessionRejected(string) {}
func (Noop) SessionEnded(int64, time.Duration) {}
