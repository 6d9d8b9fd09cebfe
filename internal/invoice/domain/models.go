// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/antaeus/pkg/money"
)

// InvoiceStatus represents invoice lifecycle states.
type InvoiceStatus string

const (
	InvoiceStatusPending InvoiceStatus = "PENDING"
	InvoiceStatusPaid    InvoiceStatus = "PAID"
)

func (s InvoiceStatus) Valid() bool {
	return s == InvoiceStatusPending || s == InvoiceStatusPaid
}

// CanTransitionTo allows PENDING -> PAID only; settlement is never reversed.
func (s InvoiceStatus) CanTransitionTo(next InvoiceStatus) bool {
	return s == InvoiceStatusPending && next == InvoiceStatusPaid
}

// Invoice is an amount owed by a customer in the customer's currency.
type Invoice struct {
	ID         snowflake.ID    `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CustomerID snowflake.ID    `gorm:"not null;index" json:"customer_id"`
	Amount     decimal.Decimal `gorm:"type:numeric(1000,2);not null" json:"amount"`
	Currency   money.Currency  `gorm:"type:varchar(3);not null" json:"currency"`
	Status     InvoiceStatus   `gorm:"type:varchar(16);not null;index" json:"status"`
	CreatedAt  time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// Money returns the invoice amount with its currency.
func (i Invoice) Money() money.Money {
	return money.Money{Value: i.Amount, Currency: i.Currency}
}

func (i Invoice) IsPending() bool {
	return i.Status == InvoiceStatusPending
}
