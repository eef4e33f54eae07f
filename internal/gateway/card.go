package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CardGateway is a simulated card processor client. Charges at or above the
// decline limit are declined, which mirrors the sandbox behavior of the real
// processor this service will eventually integrate with.
type CardGateway struct {
	DeclineLimit decimal.Decimal
	Latency      time.Duration
}

// NewCardGateway creates a card gateway with the given decline limit.
func NewCardGateway(declineLimit decimal.Decimal, latency time.Duration) *CardGateway {
	return &CardGateway{DeclineLimit: declineLimit, Latency: latency}
}

// Charge dispatches a card charge.
func (g *CardGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := wait(ctx, g.Latency); err != nil {
		return ChargeResult{}, err
	}

	if req.Amount.GreaterThanOrEqual(g.DeclineLimit) {
		return ChargeResult{
			Status:        model.PaymentStatusFailed,
			FailureReason: "card declined",
		}, nil
	}

	return ChargeResult{
		Status:        model.PaymentStatusCompleted,
		TransactionID: "card_" + uuid.New().String(),
	}, nil
}

// Refund dispatches a card refund against a prior charge.
func (g *CardGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (string, error) {
	if err := wait(ctx, g.Latency); err != nil {
		return "", err
	}
	return "refund_" + uuid.New().String(), nil
}

// wait simulates processor latency while honoring cancellation. A cancelled
// or expired context is reported as a gateway error.
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrGateway, err)
		}
		return nil
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrGateway, ctx.Err())
	case <-time.After(d):
		return nil
	}
}
