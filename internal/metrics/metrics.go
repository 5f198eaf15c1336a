// Package metrics records what each job did. Jobs are short-lived, so the
// collectors live on a private registry that is pushed to a Pushgateway
// when the job ends.
//
//   - carry_orders_total{instrument,side,result}  orders sent (result: filled|rejected|error)
//   - carry_trims_total{instrument}               trades closed by protection
//   - carry_jobs_total{job,status}                job outcomes
//   - carry_maintenance_ratio_pct                 last observed NAV / margin used * 100
//   - carry_swap_harvest_home                     last harvested financing, home currency
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Recorder struct {
	reg *prometheus.Registry

	orders      *prometheus.CounterVec
	trims       *prometheus.CounterVec
	jobs        *prometheus.CounterVec
	maintenance prometheus.Gauge
	swap        prometheus.Gauge
}

func NewRecorder() *Recorder {
	r := &Recorder{
		reg: prometheus.NewRegistry(),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carry_orders_total",
				Help: "Market orders sent",
			},
			[]string{"instrument", "side", "result"},
		),
		trims: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carry_trims_total",
				Help: "Trades closed to restore the maintenance ratio",
			},
			[]string{"instrument"},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carry_jobs_total",
				Help: "Job runs by outcome",
			},
			[]string{"job", "status"},
		),
		maintenance: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "carry_maintenance_ratio_pct",
				Help: "NAV / margin used * 100 at the last account snapshot",
			},
		),
		swap: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "carry_swap_harvest_home",
				Help: "Financing harvested for reinvestment, in the home currency",
			},
		),
	}
	r.reg.MustRegister(r.orders, r.trims, r.jobs, r.maintenance, r.swap)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) Order(instrument string, units int64, result string) {
	side := "buy"
	if units < 0 {
		side = "sell"
	}
	r.orders.WithLabelValues(instrument, side, result).Inc()
}

func (r *Recorder) Trim(instrument string) {
	r.trims.WithLabelValues(instrument).Inc()
}

func (r *Recorder) Job(job, status string) {
	r.jobs.WithLabelValues(job, status).Inc()
}

func (r *Recorder) Maintenance(pct float64) { r.maintenance.Set(pct) }

func (r *Recorder) Swap(amount float64) { r.swap.Set(amount) }

// Push sends every collector to the Pushgateway at url, grouped under job.
// An empty url is a no-op.
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return nil
	}
	if err := push.New(url, job).Gatherer(r.reg).PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}
