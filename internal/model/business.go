package model

import (
	"time"

	"gorm.io/gorm"
)

// Business represents a tenant of the platform. It is the root aggregate for
// tenant-scoped authorization: every other entity traces back to exactly one
// business. Businesses are soft-deleted only.
type Business struct {
	ID          uint           `json:"id" gorm:"primaryKey"`
	Name        string         `json:"name" gorm:"type:varchar(100);not null"`
	Email       string         `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	PhoneNumber string         `json:"phone_number" gorm:"type:varchar(20)"`
	Active      bool           `json:"active" gorm:"default:true"`
	Timezone    string         `json:"timezone" gorm:"type:varchar(50);not null;default:'UTC'"`
	Currency    string         `json:"currency" gorm:"type:varchar(3);not null;default:'USD'"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Customers []Customer         `json:"customers,omitempty" gorm:"foreignKey:BusinessID"`
	Plans     []SubscriptionPlan `json:"plans,omitempty" gorm:"foreignKey:BusinessID"`
}

// OwnerBusinessID implements tenant.Owned.
func (b *Business) OwnerBusinessID() uint {
	return b.ID
}
