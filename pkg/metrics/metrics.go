// Package metrics defines the Prometheus collectors of the postale
// server and the optional HTTP endpoint that exposes them.
package metrics

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Connection metrics
var (
	ConnectionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "postale_connections_total",
			Help: "Total number of client connections accepted",
		},
	)

	ConnectionsCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "postale_connections_current",
			Help: "Current number of live client connections",
		},
	)
)

// Protocol metrics
var (
	EnvelopesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postale_envelopes_total",
			Help: "Total number of request envelopes processed, by header",
		},
		[]string{"header"},
	)

	AuthenticationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postale_authentication_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"operation", "result"},
	)

	DeliveriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "postale_deliveries_total",
			Help: "Total number of delivery attempts, by route and outcome",
		},
		[]string{"route", "status"},
	)
)

// NewHTTPServer returns the metrics HTTP server with /metrics and
// /healthz routes. The caller starts and stops it.
func NewHTTPServer(addr string) *http.Server {
	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	return &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}
