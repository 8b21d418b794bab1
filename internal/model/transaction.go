package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a balance audit row. Deposit flow writes exactly one per
// approved recharge, keyed by the gateway transaction id.
type Transaction struct {
	ID             uint64          `gorm:"primaryKey"`
	UserID         uint64          `gorm:"not null;index"`
	Type           string          `gorm:"size:32;not null"`
	Amount         decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	BalanceBefore  decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	BalanceAfter   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	IdempotencyKey *string         `gorm:"size:64;index"`
	CreatedAt      time.Time       `gorm:"autoCreateTime"`
}

func (Transaction) TableName() string { return "transaction" }
