// Package metrics exposes the live tuning session to Prometheus. The
// Metrics type is an orchestrator observer: every tick and round updates
// the gauges, and Serve publishes them over HTTP.
package metrics

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kingston115/pidtune/internal/control"
	"github.com/kingston115/pidtune/internal/telemetry"
	"github.com/kingston115/pidtune/internal/tune"
)

type Metrics struct {
	registry *prometheus.Registry

	Setpoint       prometheus.Gauge
	Measured       prometheus.Gauge
	Output         prometheus.Gauge
	Error          prometheus.Gauge
	GainKp         prometheus.Gauge
	GainKi         prometheus.Gauge
	GainKd         prometheus.Gauge
	TicksTotal     prometheus.Counter
	RoundsTotal    *prometheus.CounterVec
	RoundMeanErr   prometheus.Histogram
	AdvisorSeconds prometheus.Histogram

	start time.Time
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Setpoint: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pidtune_setpoint",
			Help: "Target process value",
		}),
		Measured: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pidtune_measured",
			Help: "Latest measured process value",
		}),
		Output: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pidtune_control_output",
			Help: "Latest control output",
		}),
		Error: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pidtune_error",
			Help: "Latest setpoint minus measured value",
		}),
		GainKp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pidtune_gain_kp",
			Help: "Active proportional gain",
		}),
		GainKi: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pidtune_gain_ki",
			Help: "Active integral gain",
		}),
		GainKd: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pidtune_gain_kd",
			Help: "Active derivative gain",
		}),
		TicksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pidtune_ticks_total",
			Help: "Control loop ticks executed",
		}),
		RoundsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pidtune_rounds_total",
			Help: "Advisory rounds by outcome",
		}, []string{"outcome"}),
		RoundMeanErr: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pidtune_round_mean_abs_error",
			Help:    "Mean absolute error of the window that triggered each round",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 50, 100},
		}),
		AdvisorSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pidtune_advisor_seconds",
			Help:    "Advisory call latency per round",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		start: time.Now(),
	}

	m.registry.MustRegister(
		m.Setpoint, m.Measured, m.Output, m.Error,
		m.GainKp, m.GainKi, m.GainKd,
		m.TicksTotal, m.RoundsTotal, m.RoundMeanErr, m.AdvisorSeconds,
	)
	return m
}

func (m *Metrics) OnTick(s telemetry.Sample, g control.Gains) {
	m.Setpoint.Set(s.Setpoint)
	m.Measured.Set(s.Measured)
	m.Output.Set(s.Output)
	m.Error.Set(s.Error)
	m.GainKp.Set(g.Kp)
	m.GainKi.Set(g.Ki)
	m.GainKd.Set(g.Kd)
	m.TicksTotal.Inc()
}

func (m *Metrics) OnRound(r tune.Round) {
	m.RoundsTotal.WithLabelValues(string(r.Outcome)).Inc()
	m.RoundMeanErr.Observe(r.MeanAbsError)
	if r.Duration > 0 {
		m.AdvisorSeconds.Observe(r.Duration.Seconds())
	}
	m.GainKp.Set(r.Gains.Kp)
	m.GainKi.Set(r.Gains.Ki)
	m.GainKd.Set(r.Gains.Kd)
}

func (m *Metrics) OnFinish(tune.Report) {}

// Handler returns the HTTP mux serving /metrics and /health.
func (m *Metrics) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", m.healthHandler)
	return mux
}

// Serve starts the metrics endpoint in the background.
func (m *Metrics) Serve(port int) {
	go func() {
		addr := fmt.Sprintf(":%d", port)
		log.Printf("Starting metrics server on %s", addr)
		if err := http.ListenAndServe(addr, m.Handler()); err != nil {
			log.Printf("Metrics server error: %v", err)
		}
	}()
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

func (m *Metrics) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Uptime:    time.Since(m.start).String(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
