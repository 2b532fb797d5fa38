package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg             *prometheus.Registry
	CartMutations   *prometheus.CounterVec
	OrdersSubmitted prometheus.Counter
	StateResets     prometheus.Counter
	Quotes          *prometheus.CounterVec
	AddEvents       *prometheus.CounterVec
	SessionsEvicted prometheus.Counter
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_mutations_total",
		Help: "Cart mutations persisted, by operation.",
	}, []string{"op"})
	orders := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_orders_submitted_total",
		Help: "Orders handed off to the messaging sink.",
	})
	resets := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_state_resets_total",
		Help: "Persisted carts discarded because they could not be decoded.",
	})
	quotes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pricing_quotes_total",
		Help: "Quotes computed, by retail or wholesale.",
	}, []string{"kind"})
	addEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_add_events_total",
		Help: "Add-item events consumed from the bus, by outcome.",
	}, []string{"outcome"})

	evicted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cart_sessions_evicted_total",
		Help: "Idle sessions dropped from memory.",
	})

	r.MustRegister(mutations, orders, resets, quotes, addEvents, evicted)
	return &Registry{
		reg:             r,
		CartMutations:   mutations,
		OrdersSubmitted: orders,
		StateResets:     resets,
		Quotes:          quotes,
		AddEvents:       addEvents,
		SessionsEvicted: evicted,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// Gatherer exposes the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }
