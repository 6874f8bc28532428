// Package metrics registra las métricas Prometheus del servidor: resultados de
// los grant flows y métricas HTTP por ruta.
package metrics

import (
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once   sync.Once
	regErr error

	grantOutcomesTotal  *prometheus.CounterVec
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpInflight        *prometheus.GaugeVec
)

// Config agrupa el registry donde se publican las métricas.
type Config struct {
	Registry prometheus.Registerer
	Gatherer prometheus.Gatherer
}

// Register inicializa las métricas (una sola vez por proceso) y devuelve el
// handler de /metrics.
func Register(cfg Config) (http.Handler, error) {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	once.Do(func() {
		grantOutcomesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "oauth_grant_outcomes_total",
			Help: "Resultados de los grant flows por flujo y resultado (token, redirect, consent, ok o código de error)",
		}, []string{"flow", "result"})

		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Número total de requests procesadas",
		}, []string{"method", "path", "status"})

		httpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Latencia de los requests HTTP",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"})

		httpInflight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_inflight_requests",
			Help: "Requests en vuelo por método y ruta",
		}, []string{"method", "path"})

		for _, c := range []prometheus.Collector{grantOutcomesTotal, httpRequestsTotal, httpRequestDuration, httpInflight} {
			if err := registerCollector(registry, c); err != nil {
				regErr = err
				return
			}
		}
	})
	if regErr != nil {
		return nil, regErr
	}

	if cfg.Gatherer != nil {
		return promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}), nil
	}
	return promhttp.Handler(), nil
}

// registerCollector registra el collector ignorando duplicados.
func registerCollector(reg prometheus.Registerer, collector prometheus.Collector) error {
	if err := reg.Register(collector); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
			return nil
		}
		return err
	}
	return nil
}

// GrantRecorder publica los outcomes del Dispatcher.
type GrantRecorder struct{}

func (GrantRecorder) GrantOutcome(flow, result string) {
	if grantOutcomesTotal != nil {
		grantOutcomesTotal.WithLabelValues(flow, result).Inc()
	}
}

// InflightAdd suma delta a los requests en vuelo.
func InflightAdd(method, path string, delta float64) {
	if httpInflight != nil {
		httpInflight.WithLabelValues(method, path).Add(delta)
	}
}

// ObserveHTTP registra un request terminado.
func ObserveHTTP(method, path string, status int, d time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
}

var (
	uuidSegmentRE  = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F-]{4}-[0-9a-fA-F-]{4,}$`)
	hexSegmentRE   = regexp.MustCompile(`^[0-9a-fA-F]{16,}$`)
	tokenSegmentRE = regexp.MustCompile(`^[A-Za-z0-9_-]{24,}$`)
)

// NormalizePath reemplaza segmentos dinámicos (ids, tokens) por ":param" para
// acotar la cardinalidad del label path.
func NormalizePath(p string) string {
	clean := strings.SplitN(p, "?", 2)[0]
	var out []string
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" {
			continue
		}
		if isDynamicSegment(seg) {
			out = append(out, ":param")
		} else {
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/")
}

func isDynamicSegment(seg string) bool {
	if len(seg) > 48 {
		return true
	}
	if uuidSegmentRE.MatchString(seg) || hexSegmentRE.MatchString(seg) || tokenSegmentRE.MatchString(seg) {
		return true
	}
	_, err := strconv.Atoi(seg)
	return err == nil
}
