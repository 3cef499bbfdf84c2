// Package payment holds the gateway collaborator the booking engine
// talks to. Real integrations (Stripe, CinetPay) live behind the same
// interface; this repo ships a simulated gateway for dev and tests.
package payment

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// SimulatedGateway approves refunds with a configurable failure rate so
// the engine's boundary handling can be exercised without a real
// processor.
type SimulatedGateway struct {
	failureRate float64

	mu      sync.Mutex
	refunds []RefundRequest
}

type RefundRequest struct {
	TransactionID string
	AmountCents   int64
	Reason        string
}

func NewSimulatedGateway(failureRate float64) *SimulatedGateway {
	return &SimulatedGateway{failureRate: failureRate}
}

func (g *SimulatedGateway) Refund(ctx context.Context, transactionID string, amountCents int64, reason string) error {
	if g.failureRate > 0 && rand.Float64() < g.failureRate {
		log.Warn().Str("transaction_id", transactionID).Msg("simulated gateway refund failure")
		return ErrGatewayUnavailable
	}

	g.mu.Lock()
	g.refunds = append(g.refunds, RefundRequest{
		TransactionID: transactionID,
		AmountCents:   amountCents,
		Reason:        reason,
	})
	g.mu.Unlock()

	log.Info().
		Str("transaction_id", transactionID).
		Int64("amount_cents", amountCents).
		Str("reason", reason).
		Msg("refund issued")

	return nil
}

// Refunds returns the refunds processed so far, oldest first.
func (g *SimulatedGateway) Refunds() []RefundRequest {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]RefundRequest, len(g.refunds))
	copy(out, g.refunds)
	return out
}
