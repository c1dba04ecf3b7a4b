package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/enums"
)

// Wallet is a party's stored-value account. Balance only ever changes in the
// same transaction that appends the matching ledger entry. PendingBalance
// holds earnings not yet withdrawable (vendor payouts before delivery) and
// never goes negative. Version implements optimistic locking for concurrent
// movements.
type Wallet struct {
	ID             uuid.UUID             `gorm:"type:uuid;primaryKey"`
	OwnerType      enums.WalletOwnerType `gorm:"column:owner_type;type:text;not null;uniqueIndex:idx_wallets_owner"`
	OwnerID        uuid.UUID             `gorm:"column:owner_id;type:uuid;not null;uniqueIndex:idx_wallets_owner"`
	Balance        decimal.Decimal       `gorm:"column:balance;type:numeric(12,2);not null;default:0"`
	PendingBalance decimal.Decimal       `gorm:"column:pending_balance;type:numeric(12,2);not null;default:0"`
	Currency       string                `gorm:"column:currency;type:text;not null;default:'NGN'"`
	IsLocked       bool                  `gorm:"column:is_locked;not null;default:false"`
	PINHash        *string               `gorm:"column:pin_hash"`
	DailyLimit     decimal.Decimal       `gorm:"column:daily_limit;type:numeric(12,2);not null;default:0"`
	Version        int64                 `gorm:"column:version;not null;default:0"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (w *Wallet) BeforeCreate(*gorm.DB) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	return nil
}
