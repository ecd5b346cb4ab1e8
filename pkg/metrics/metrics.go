package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Options(
	fx.Provide(New),
)

var durBucketsMS = []float64{
	25, 50, 75, 100, 150, 200, 300, 400, 500,
	750, 1000, 1500, 2000, 3000, 5000, 7500, 10000, 15000, 30000, 60000,
}

// Registry wraps the process-wide billing metric collectors and exposes them
// on a side listener, separate from the API port.
type Registry struct {
	reg *prometheus.Registry

	reqCnt *prometheus.CounterVec
	reqDur *prometheus.HistogramVec

	WebhookOutcomes *prometheus.CounterVec
	RenewalResults  *prometheus.CounterVec
	LedgerOps       *prometheus.CounterVec
	DeadLetterDepth prometheus.Gauge
}

func New() *Registry {
	r := &Registry{reg: prometheus.NewRegistry()}

	r.reqCnt = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "billing",
		Name:      "req_total",
		Help:      "HTTP requests processed, partitioned by status code, method, and route.",
	}, []string{"code", "method", "url"})
	r.reqDur = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Subsystem: "billing",
		Name:      "req_dur_ms",
		Help:      "HTTP request latencies in milliseconds.",
		Buckets:   durBucketsMS,
	}, []string{"code", "method", "url"})
	r.WebhookOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "billing",
		Name:      "webhook_outcomes_total",
		Help:      "Webhook dispatch results, partitioned by event kind and outcome.",
	}, []string{"kind", "outcome"})
	r.RenewalResults = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "billing",
		Name:      "renewal_results_total",
		Help:      "Auto-renewal sweep results per subscription.",
	}, []string{"result"})
	r.LedgerOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Subsystem: "billing",
		Name:      "ledger_ops_total",
		Help:      "Ledger mutations, partitioned by transaction type and result.",
	}, []string{"type", "result"})
	r.DeadLetterDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Subsystem: "billing",
		Name:      "dead_letter_depth",
		Help:      "Dead-letter rows currently awaiting replay.",
	})

	r.reg.MustRegister(r.reqCnt, r.reqDur, r.WebhookOutcomes, r.RenewalResults, r.LedgerOps, r.DeadLetterDepth)
	return r
}

// Middleware records request count and latency per route.
func (r *Registry) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		url := c.FullPath()
		if url == "" {
			url = c.Request.URL.Path
		}
		code := strconv.Itoa(c.Writer.Status())
		r.reqCnt.WithLabelValues(code, c.Request.Method, url).Inc()
		r.reqDur.WithLabelValues(code, c.Request.Method, url).Observe(float64(time.Since(start).Milliseconds()))
	}
}

// Serve starts the /metrics listener on addr in a background goroutine.
func (r *Registry) Serve(addr string, log *zap.SugaredLogger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Errorw("metrics listener stopped", "addr", addr, "err", err)
		}
	}()
}
