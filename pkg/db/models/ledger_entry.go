package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/types"
)

// LedgerEntry is one immutable money movement against a wallet. Rows are only
// ever inserted; corrections are compensating entries, and Status is the one
// mutable column (PENDING -> COMPLETED or FAILED). BalanceBefore/BalanceAfter
// snapshot the moved bucket so balance_after == balance_before +/- amount is
// checkable per row. Reference carries the idempotency key and is unique per
// wallet.
type LedgerEntry struct {
	ID                   uuid.UUID               `gorm:"type:uuid;primaryKey"`
	WalletID             uuid.UUID               `gorm:"column:wallet_id;type:uuid;not null;index;uniqueIndex:idx_ledger_wallet_ref"`
	OrderID              *uuid.UUID              `gorm:"column:order_id;type:uuid;index"`
	EntryType            enums.LedgerEntryType   `gorm:"column:entry_type;type:text;not null"`
	Direction            enums.EntryDirection    `gorm:"column:direction;type:text;not null"`
	Status               enums.LedgerEntryStatus `gorm:"column:status;type:text;not null;default:'COMPLETED'"`
	Amount               decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	BalanceBefore        decimal.Decimal         `gorm:"column:balance_before;type:numeric(12,2);not null"`
	BalanceAfter         decimal.Decimal         `gorm:"column:balance_after;type:numeric(12,2);not null"`
	CounterpartyWalletID *uuid.UUID              `gorm:"column:counterparty_wallet_id;type:uuid"`
	Reference            string                  `gorm:"column:reference;type:text;not null;uniqueIndex:idx_ledger_wallet_ref"`
	Description          *string                 `gorm:"column:description"`
	Metadata             types.JSONMap           `gorm:"column:metadata;type:jsonb;serializer:json"`
	CreatedAt            time.Time               `gorm:"column:created_at;autoCreateTime"`
}

func (e *LedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.Status == "" {
		e.Status = enums.LedgerEntryStatusCompleted
	}
	return nil
}
