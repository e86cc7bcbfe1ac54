package broker

import (
	"context"

	"github.com/pkg/errors"
	"github.com/speedrun-hq/shield/pkg/circuitbreaker"
	"github.com/speedrun-hq/shield/pkg/intent"
	"github.com/speedrun-hq/shield/pkg/logger"
	"github.com/speedrun-hq/shield/pkg/metrics"
)

// ErrCircuitOpen is returned without contacting the broker while the breaker is tripped
var ErrCircuitOpen = errors.New("broker circuit breaker is open")

// Guarded stops calling a failing broker once its circuit breaker trips
type Guarded struct {
	next    Broker
	breaker *circuitbreaker.CircuitBreaker
	logger  logger.Logger
}

var _ Broker = (*Guarded)(nil)

func NewGuarded(next Broker, breaker *circuitbreaker.CircuitBreaker, log logger.Logger) *Guarded {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Guarded{
		next:    next,
		breaker: breaker,
		logger:  log,
	}
}

func (g *Guarded) Submit(ctx context.Context, signed intent.SignedIntent) (Receipt, error) {
	sessionID := signed.Intent().SessionID()

	if g.breaker.IsOpen() {
		metrics.BrokerCircuitOpen.Set(1)
		metrics.BrokerSubmissions.WithLabelValues(metrics.StatusRejected).Inc()
		g.logger.NoticeWithSession(sessionID, "Broker circuit open, not submitting nonce %d", signed.Intent().Nonce())
		return Receipt{}, ErrCircuitOpen
	}
	metrics.BrokerCircuitOpen.Set(0)

	receipt, err := g.next.Submit(ctx, signed)
	if err != nil {
		metrics.BrokerSubmissions.WithLabelValues(metrics.StatusFailed).Inc()
		if g.breaker.RecordFailure() {
			metrics.BrokerCircuitOpen.Set(1)
			g.logger.ErrorWithSession(sessionID, "Broker circuit breaker tripped: %v", err)
		}
		return Receipt{}, err
	}

	metrics.BrokerSubmissions.WithLabelValues(metrics.StatusSuccess).Inc()
	return receipt, nil
}
