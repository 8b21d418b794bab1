package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        uint64          `gorm:"primaryKey;column:id"`
	Email     string          `gorm:"size:255;uniqueIndex"`
	Balance   decimal.Decimal `gorm:"type:numeric(12,2);not null;default:'0'"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime"`
}

func (User) TableName() string { return "users" }
