package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	RoutingDecisions *prometheus.CounterVec
	DispatchAttempts *prometheus.CounterVec
	JobsByStatus     *prometheus.GaugeVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()

	routingDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "router_routing_decisions_total",
		Help: "Final routing decisions by partner and reason.",
	}, []string{"partner", "reason"})

	dispatchAttempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "router_dispatch_attempts_total",
		Help: "Partner dispatch attempts by outcome.",
	}, []string{"partner", "outcome"})

	jobsByStatus := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "router_jobs",
		Help: "Jobs currently in each queue state.",
	}, []string{"status"})

	r.MustRegister(routingDecisions, dispatchAttempts, jobsByStatus)
	return &Registry{
		reg:              r,
		RoutingDecisions: routingDecisions,
		DispatchAttempts: dispatchAttempts,
		JobsByStatus:     jobsByStatus,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
