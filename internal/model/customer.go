package model

import (
	"time"

	"gorm.io/gorm"
)

// Customer is an end-customer of one business. Unique by (email, business).
type Customer struct {
	ID                uint           `json:"id" gorm:"primaryKey"`
	Name              string         `json:"name" gorm:"type:varchar(100);not null"`
	Email             string         `json:"email" gorm:"type:varchar(255);not null;uniqueIndex:idx_customer_email_business"`
	PhoneNumber       string         `json:"phone_number" gorm:"type:varchar(20)"`
	PreferredLanguage string         `json:"preferred_language" gorm:"type:varchar(5);not null;default:'en'"`
	Active            bool           `json:"active" gorm:"default:true"`
	BusinessID        uint           `json:"business_id" gorm:"not null;uniqueIndex:idx_customer_email_business;index"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	DeletedAt         gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Business      Business       `json:"business,omitempty" gorm:"foreignKey:BusinessID"`
	Subscriptions []Subscription `json:"subscriptions,omitempty" gorm:"foreignKey:CustomerID"`
}

// OwnerBusinessID implements tenant.Owned.
func (c *Customer) OwnerBusinessID() uint {
	return c.BusinessID
}
