package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/forkline-app/forkline-backend/pkg/db/models"
	"github.com/forkline-app/forkline-backend/pkg/enums"
	"github.com/forkline-app/forkline-backend/pkg/pagination"
)

// Repository manages persistence for ledger entries. Amounts are append-only;
// the status column is the one mutable field, moving PENDING entries to
// COMPLETED or FAILED when held funds resolve.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.LedgerEntry) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error)
	FindByReference(ctx context.Context, walletID uuid.UUID, reference string) (*models.LedgerEntry, error)
	SetStatusByReference(ctx context.Context, walletID uuid.UUID, reference string, status enums.LedgerEntryStatus) error
	ListByWalletID(ctx context.Context, walletID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.LedgerEntry, error)
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
	NetBalance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.LedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).First(&entry, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) SetStatusByReference(ctx context.Context, walletID uuid.UUID, reference string, status enums.LedgerEntryStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Where("wallet_id = ? AND reference = ?", walletID, reference).
		Update("status", status).Error
}

func (r *repository) FindByReference(ctx context.Context, walletID uuid.UUID, reference string) (*models.LedgerEntry, error) {
	var entry models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("wallet_id = ? AND reference = ?", walletID, reference).
		First(&entry).Error; err != nil {
		return nil, err
	}
	return &entry, nil
}

func (r *repository) ListByWalletID(ctx context.Context, walletID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.LedgerEntry, error) {
	query := r.db.WithContext(ctx).
		Where("wallet_id = ?", walletID).
		Order("created_at DESC, id DESC").
		Limit(limit)

	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var entries []models.LedgerEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *repository) ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// NetBalance replays the wallet's entries: credits minus debits.
func (r *repository) NetBalance(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	type row struct {
		Direction enums.EntryDirection
		Total     decimal.Decimal
	}

	var rows []row
	if err := r.db.WithContext(ctx).
		Model(&models.LedgerEntry{}).
		Select("direction, COALESCE(SUM(amount), 0) AS total").
		Where("wallet_id = ?", walletID).
		Group("direction").
		Scan(&rows).Error; err != nil {
		return decimal.Zero, err
	}

	net := decimal.Zero
	for _, r := range rows {
		switch r.Direction {
		case enums.EntryDirectionCredit:
			net = net.Add(r.Total)
		case enums.EntryDirectionDebit:
			net = net.Sub(r.Total)
		}
	}
	return net, nil
}
