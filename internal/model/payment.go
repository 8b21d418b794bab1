package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of a PIX payment record.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusExpired   Status = "EXPIRED"
	StatusCancelled Status = "CANCELLED"
)

// Terminal reports whether no further transition is permitted.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusExpired || s == StatusCancelled
}

// PixPayment is one recharge attempt as persisted, keyed by the gateway's
// transaction id. Records are never deleted; they are the audit trail.
type PixPayment struct {
	ID            uint64          `gorm:"primaryKey"`
	UserID        uint64          `gorm:"not null;index"`
	TransactionID string          `gorm:"size:64;uniqueIndex;not null"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	BonusAmount   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:'0'"`
	Status        Status          `gorm:"size:16;not null;index"`
	PixCode       *string         `gorm:"type:text"`
	QRCode        *string         `gorm:"type:text"`
	CreatedAt     time.Time       `gorm:"autoCreateTime"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime"`
	ExpiresAt     time.Time       `gorm:"not null"`
	PaidAt        *time.Time      `gorm:"index"`
}

func (PixPayment) TableName() string { return "pix_payments" }
