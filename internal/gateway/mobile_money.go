package gateway

import (
	"context"
	"time"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MobileMoneyGateway is a simulated mobile money processor client.
type MobileMoneyGateway struct {
	Latency time.Duration
}

// NewMobileMoneyGateway creates a mobile money gateway.
func NewMobileMoneyGateway(latency time.Duration) *MobileMoneyGateway {
	return &MobileMoneyGateway{Latency: latency}
}

// Charge dispatches a mobile money charge.
func (g *MobileMoneyGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := wait(ctx, g.Latency); err != nil {
		return ChargeResult{}, err
	}

	return ChargeResult{
		Status:        model.PaymentStatusCompleted,
		TransactionID: "mpesa_" + uuid.New().String(),
	}, nil
}

// Refund dispatches a mobile money reversal.
func (g *MobileMoneyGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (string, error) {
	if err := wait(ctx, g.Latency); err != nil {
		return "", err
	}
	return "refund_" + uuid.New().String(), nil
}
