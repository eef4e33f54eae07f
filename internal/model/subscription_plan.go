package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BillingCycle is the recurrence period governing next-billing-date projection.
type BillingCycle string

const (
	BillingCycleMonthly   BillingCycle = "MONTHLY"
	BillingCycleQuarterly BillingCycle = "QUARTERLY"
	BillingCycleYearly    BillingCycle = "YEARLY"
)

// Valid reports whether the cycle is one of the supported values.
func (c BillingCycle) Valid() bool {
	switch c {
	case BillingCycleMonthly, BillingCycleQuarterly, BillingCycleYearly:
		return true
	}
	return false
}

// SubscriptionPlan belongs to one business. Plan updates never retroactively
// alter subscriptions that already reference the plan.
type SubscriptionPlan struct {
	ID           uint            `json:"id" gorm:"primaryKey"`
	Name         string          `json:"name" gorm:"type:varchar(100);not null"`
	Description  string          `json:"description" gorm:"type:text"`
	Price        decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	BillingCycle BillingCycle    `json:"billing_cycle" gorm:"type:varchar(20);not null"`
	TrialDays    int             `json:"trial_days" gorm:"not null;default:0"`
	Active       bool            `json:"active" gorm:"default:true"`
	BusinessID   uint            `json:"business_id" gorm:"index;not null"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	DeletedAt    gorm.DeletedAt  `json:"-" gorm:"index"`

	// Relations
	Business Business `json:"business,omitempty" gorm:"foreignKey:BusinessID"`
}

// OwnerBusinessID implements tenant.Owned.
func (p *SubscriptionPlan) OwnerBusinessID() uint {
	return p.BusinessID
}
