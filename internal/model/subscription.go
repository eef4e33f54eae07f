package model

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// SubscriptionStatus is the lifecycle state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionStatusTrial     SubscriptionStatus = "TRIAL"
	SubscriptionStatusActive    SubscriptionStatus = "ACTIVE"
	SubscriptionStatusSuspended SubscriptionStatus = "SUSPENDED"
	SubscriptionStatusCancelled SubscriptionStatus = "CANCELLED"
	SubscriptionStatusExpired   SubscriptionStatus = "EXPIRED"
)

// Terminal reports whether the status has no outgoing transitions.
func (s SubscriptionStatus) Terminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusExpired
}

// Billable reports whether the subscription can receive invoices and payments.
func (s SubscriptionStatus) Billable() bool {
	return s == SubscriptionStatusActive || s == SubscriptionStatusTrial
}

// InvalidTransitionError reports a rejected state transition with the exact
// (from, to) pair so the caller can see what was illegal.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: cannot transition from %s to %s", e.Entity, e.From, e.To)
}

var subscriptionTransitions = map[SubscriptionStatus][]SubscriptionStatus{
	SubscriptionStatusTrial:     {SubscriptionStatusActive, SubscriptionStatusCancelled, SubscriptionStatusExpired},
	SubscriptionStatusActive:    {SubscriptionStatusCancelled, SubscriptionStatusSuspended, SubscriptionStatusExpired},
	SubscriptionStatusSuspended: {SubscriptionStatusActive, SubscriptionStatusCancelled, SubscriptionStatusExpired},
	// CANCELLED and EXPIRED are terminal
}

// Subscription ties one customer to one plan.
//
// Invariant: NextBillingDate is non-nil only while the status is ACTIVE or
// TRIAL; it is cleared on every terminal transition. The Version column backs
// optimistic locking so concurrent transition attempts cannot both win.
type Subscription struct {
	ID                 uint               `json:"id" gorm:"primaryKey"`
	CustomerID         uint               `json:"customer_id" gorm:"index;not null"`
	SubscriptionPlanID uint               `json:"subscription_plan_id" gorm:"index;not null"`
	StartDate          time.Time          `json:"start_date" gorm:"not null"`
	EndDate            *time.Time         `json:"end_date,omitempty"`
	Status             SubscriptionStatus `json:"status" gorm:"type:varchar(20);not null"`
	NextBillingDate    *time.Time         `json:"next_billing_date,omitempty"`
	Version            uint               `json:"-" gorm:"not null;default:0"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	DeletedAt          gorm.DeletedAt     `json:"-" gorm:"index"`

	// Relations
	Customer         Customer         `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
	SubscriptionPlan SubscriptionPlan `json:"subscription_plan,omitempty" gorm:"foreignKey:SubscriptionPlanID"`
	Invoices         []Invoice        `json:"invoices,omitempty" gorm:"foreignKey:SubscriptionID"`
	Payments         []Payment        `json:"payments,omitempty" gorm:"foreignKey:SubscriptionID"`
}

// OwnerBusinessID implements tenant.Owned. The Customer relation must be
// loaded before calling it.
func (s *Subscription) OwnerBusinessID() uint {
	return s.Customer.BusinessID
}

// CanTransitionTo reports whether the status change is allowed by the
// subscription state machine.
func (s *Subscription) CanTransitionTo(newStatus SubscriptionStatus) bool {
	for _, allowed := range subscriptionTransitions[s.Status] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// TransitionStatus applies a status change in memory. Terminal transitions
// stamp EndDate and clear NextBillingDate. The caller persists the change.
func (s *Subscription) TransitionStatus(newStatus SubscriptionStatus, now time.Time) error {
	if !s.CanTransitionTo(newStatus) {
		return &InvalidTransitionError{Entity: "subscription", From: string(s.Status), To: string(newStatus)}
	}

	s.Status = newStatus
	if newStatus.Terminal() {
		end := now
		s.EndDate = &end
		s.NextBillingDate = nil
	}
	return nil
}
