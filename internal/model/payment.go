package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// PaymentStatus is the lifecycle state of a payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// PaymentMethod selects the gateway a payment is dispatched through.
type PaymentMethod string

const (
	PaymentMethodCard         PaymentMethod = "CARD"
	PaymentMethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
)

// Valid reports whether the method is one of the supported values.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCard, PaymentMethodMobileMoney, PaymentMethodBankTransfer:
		return true
	}
	return false
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed, PaymentStatusCancelled},
	PaymentStatusCompleted: {PaymentStatusRefunded},
	// FAILED payments are re-dispatched by the retry sweep, which moves them
	// back through the gateway without an intermediate PENDING state.
	PaymentStatusFailed: {PaymentStatusCompleted, PaymentStatusPending},
	// REFUNDED and CANCELLED are terminal
}

// Payment belongs to one subscription and optionally settles one invoice.
// A COMPLETED payment is never reverted outside the explicit refund path.
type Payment struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	SubscriptionID uint            `json:"subscription_id" gorm:"index;not null"`
	InvoiceID      *uint           `json:"invoice_id,omitempty" gorm:"index"`
	Amount         decimal.Decimal `json:"amount" gorm:"type:decimal(10,2);not null"`
	Currency       string          `json:"currency" gorm:"type:varchar(3);not null"`
	Status         PaymentStatus   `json:"status" gorm:"type:varchar(20);not null;index"`
	Method         PaymentMethod   `json:"method" gorm:"type:varchar(20);not null"`
	TransactionID  string          `json:"transaction_id" gorm:"type:varchar(255)"`
	FailureReason  string          `json:"failure_reason,omitempty" gorm:"type:varchar(255)"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `json:"-" gorm:"index"`

	// Relations
	Subscription Subscription `json:"subscription,omitempty" gorm:"foreignKey:SubscriptionID"`
	Invoice      *Invoice     `json:"invoice,omitempty" gorm:"foreignKey:InvoiceID"`
}

// OwnerBusinessID implements tenant.Owned. Subscription.Customer must be
// loaded before calling it.
func (p *Payment) OwnerBusinessID() uint {
	return p.Subscription.Customer.BusinessID
}

// CanTransitionTo reports whether the status change is allowed by the
// payment state machine.
func (p *Payment) CanTransitionTo(newStatus PaymentStatus) bool {
	for _, allowed := range paymentTransitions[p.Status] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionStatus applies a status change in memory. The caller persists it.
func (p *Payment) TransitionStatus(newStatus PaymentStatus) error {
	if !p.CanTransitionTo(newStatus) {
		return &InvalidTransitionError{Entity: "payment", From: string(p.Status), To: string(newStatus)}
	}
	p.Status = newStatus
	return nil
}
