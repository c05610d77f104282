package metrics

import "github.com/prometheus/client_golang/prometheus"

// CirculationMetrics counts ledger operations by outcome.
type CirculationMetrics struct {
	checkouts    *prometheus.CounterVec
	returns      *prometheus.CounterVec
	reservations *prometheus.CounterVec
}

// NewCirculationMetrics registers the circulation counters on the provided
// registerer.
func NewCirculationMetrics(reg prometheus.Registerer) *CirculationMetrics {
	if reg == nil {
		return &CirculationMetrics{}
	}
	checkouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circulation_checkouts_total",
		Help: "Checkout attempts by outcome.",
	}, []string{"outcome"})
	returns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circulation_returns_total",
		Help: "Return operations by outcome.",
	}, []string{"outcome"})
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "circulation_reservations_total",
		Help: "Reservation operations by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(checkouts, returns, reservations)
	return &CirculationMetrics{
		checkouts:    checkouts,
		returns:      returns,
		reservations: reservations,
	}
}

// IncCheckout counts one checkout attempt with the given outcome label.
func (c *CirculationMetrics) IncCheckout(outcome string) {
	if c == nil || c.checkouts == nil {
		return
	}
	c.checkouts.WithLabelValues(outcomeLabel(outcome)).Inc()
}

// IncReturn counts one return with the given outcome label.
func (c *CirculationMetrics) IncReturn(outcome string) {
	if c == nil || c.returns == nil {
		return
	}
	c.returns.WithLabelValues(outcomeLabel(outcome)).Inc()
}

// IncReservation counts one reservation operation with the given outcome label.
func (c *CirculationMetrics) IncReservation(outcome string) {
	if c == nil || c.reservations == nil {
		return
	}
	c.reservations.WithLabelValues(outcomeLabel(outcome)).Inc()
}

func outcomeLabel(outcome string) string {
	if outcome == "" {
		return "unknown"
	}
	return outcome
}
