package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// InvoiceStatus is the lifecycle state of an invoice.
type InvoiceStatus string

const (
	InvoiceStatusDraft     InvoiceStatus = "DRAFT"
	InvoiceStatusSent      InvoiceStatus = "SENT"
	InvoiceStatusPaid      InvoiceStatus = "PAID"
	InvoiceStatusOverdue   InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled InvoiceStatus = "CANCELLED"
)

// Terminal reports whether the status has no outgoing transitions.
func (s InvoiceStatus) Terminal() bool {
	return s == InvoiceStatusPaid || s == InvoiceStatusCancelled
}

var invoiceTransitions = map[InvoiceStatus][]InvoiceStatus{
	InvoiceStatusDraft:   {InvoiceStatusSent, InvoiceStatusCancelled},
	InvoiceStatusSent:    {InvoiceStatusPaid, InvoiceStatusOverdue, InvoiceStatusCancelled},
	InvoiceStatusOverdue: {InvoiceStatusPaid, InvoiceStatusCancelled},
	// PAID and CANCELLED are terminal
}

// Invoice belongs to one subscription.
//
// Invariant: TotalAmount = Subtotal + TaxAmount, with
// TaxAmount = round(Subtotal * TaxRate, 2, half-up). The amounts are computed
// explicitly by the invoice service at creation and on any subtotal or rate
// change before a terminal state; there are no persistence hooks doing math.
type Invoice struct {
	ID             uint            `json:"id" gorm:"primaryKey"`
	SubscriptionID uint            `json:"subscription_id" gorm:"index;not null"`
	InvoiceNumber  string          `json:"invoice_number" gorm:"type:varchar(50);uniqueIndex;not null"`
	Subtotal       decimal.Decimal `json:"subtotal" gorm:"type:decimal(10,2);not null"`
	TaxRate        decimal.Decimal `json:"tax_rate" gorm:"type:decimal(5,4);not null;default:0"`
	TaxAmount      decimal.Decimal `json:"tax_amount" gorm:"type:decimal(10,2);not null"`
	TotalAmount    decimal.Decimal `json:"total_amount" gorm:"type:decimal(10,2);not null"`
	Status         InvoiceStatus   `json:"status" gorm:"type:varchar(20);not null"`
	DueDate        *time.Time      `json:"due_date,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `json:"-" gorm:"index"`

	// Relations
	Subscription Subscription `json:"subscription,omitempty" gorm:"foreignKey:SubscriptionID"`
	Payments     []Payment    `json:"payments,omitempty" gorm:"foreignKey:InvoiceID"`
}

// OwnerBusinessID implements tenant.Owned. Subscription.Customer must be
// loaded before calling it.
func (i *Invoice) OwnerBusinessID() uint {
	return i.Subscription.Customer.BusinessID
}

// CanTransitionTo reports whether the status change is allowed by the
// invoice state machine.
func (i *Invoice) CanTransitionTo(newStatus InvoiceStatus) bool {
	for _, allowed := range invoiceTransitions[i.Status] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionStatus applies a status change in memory. The caller persists it.
func (i *Invoice) TransitionStatus(newStatus InvoiceStatus) error {
	if !i.CanTransitionTo(newStatus) {
		return &InvalidTransitionError{Entity: "invoice", From: string(i.Status), To: string(newStatus)}
	}
	i.Status = newStatus
	return nil
}
