// Package gateway defines the uniform capability the payment orchestrator
// uses to talk to external payment processors, plus the simulated processor
// clients the service ships with.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/Okemwag/Subscribee/internal/model"
	"github.com/shopspring/decimal"
)

// ErrGateway wraps any failure reported by an external processor, transport
// errors and timeouts included.
var ErrGateway = errors.New("payment gateway error")

// ChargeRequest is a payment intent handed to a gateway.
type ChargeRequest struct {
	Amount    decimal.Decimal
	Currency  string
	Method    model.PaymentMethod
	Reference string
}

// ChargeResult is the synchronous outcome of a charge dispatch. Status is
// COMPLETED, PENDING (asynchronous settlement) or FAILED.
type ChargeResult struct {
	Status        model.PaymentStatus
	TransactionID string
	FailureReason string
}

// Gateway is one external payment processor. Implementations must respect
// context cancellation; the orchestrator bounds every call with a timeout.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) (ChargeResult, error)
	Refund(ctx context.Context, transactionID string, amount decimal.Decimal) (string, error)
}

// Selector picks the gateway for a payment method.
type Selector struct {
	gateways map[model.PaymentMethod]Gateway
}

// NewSelector builds a selector over the three supported methods.
func NewSelector(card, mobileMoney, bankTransfer Gateway) *Selector {
	return &Selector{
		gateways: map[model.PaymentMethod]Gateway{
			model.PaymentMethodCard:         card,
			model.PaymentMethodMobileMoney:  mobileMoney,
			model.PaymentMethodBankTransfer: bankTransfer,
		},
	}
}

// ForMethod returns the gateway handling the given payment method.
func (s *Selector) ForMethod(method model.PaymentMethod) (Gateway, error) {
	gw, ok := s.gateways[method]
	if !ok {
		return nil, fmt.Errorf("unsupported payment method: %s", method)
	}
	return gw, nil
}
