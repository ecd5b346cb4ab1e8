package models

import "time"

// BillingProfile links a user to their gateway customer and payment method.
// A subscription's billing owner points at one of these.
type BillingProfile struct {
	ID                     string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID                 string    `gorm:"column:user_id;type:varchar(64);not null;uniqueIndex" json:"user_id"`
	Email                  string    `gorm:"column:email;type:varchar(256)" json:"email"`
	StripeCustomerID       *string   `gorm:"column:stripe_customer_id;type:varchar(128)" json:"stripe_customer_id"`
	DefaultPaymentMethodID *string   `gorm:"column:default_payment_method_id;type:varchar(128)" json:"default_payment_method_id"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

func (BillingProfile) TableName() string { return "billing_profile" }
