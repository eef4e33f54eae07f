package gateway

import (
	"context"
	"time"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BankTransferGateway is a simulated bank transfer client. Transfers require
// manual confirmation by the receiving bank, so a charge is never COMPLETED
// synchronously; the dispatch always yields PENDING.
type BankTransferGateway struct {
	Latency time.Duration
}

// NewBankTransferGateway creates a bank transfer gateway.
func NewBankTransferGateway(latency time.Duration) *BankTransferGateway {
	return &BankTransferGateway{Latency: latency}
}

// Charge registers a bank transfer instruction.
func (g *BankTransferGateway) Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error) {
	if err := wait(ctx, g.Latency); err != nil {
		return ChargeResult{}, err
	}

	return ChargeResult{
		Status:        model.PaymentStatusPending,
		TransactionID: "bank_" + uuid.New().String(),
	}, nil
}

// Refund instructs a reverse transfer.
func (g *BankTransferGateway) Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (string, error) {
	if err := wait(ctx, g.Latency); err != nil {
		return "", err
	}
	return "refund_" + uuid.New().String(), nil
}
