package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/antaeus/pkg/money"
)

type Customer struct {
	ID        snowflake.ID   `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Currency  money.Currency `gorm:"type:varchar(3);not null" json:"currency"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null" json:"updated_at"`
}

func (Customer) TableName() string {
	return "customers"
}
