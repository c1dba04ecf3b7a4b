package enums

import "fmt"

// LedgerEntryType is the canonical entry_type written to ledger_entries.
type LedgerEntryType string

const (
	LedgerEntryTypeOrderPayment      LedgerEntryType = "ORDER_PAYMENT"
	LedgerEntryTypeCommission        LedgerEntryType = "COMMISSION"
	LedgerEntryTypeVendorPayout      LedgerEntryType = "VENDOR_PAYOUT"
	LedgerEntryTypeDeliveryFeePayout LedgerEntryType = "DELIVERY_FEE_PAYOUT"
	LedgerEntryTypeRefund            LedgerEntryType = "REFUND"
	LedgerEntryTypeCardFee           LedgerEntryType = "CARD_PROCESSING_FEE"
	LedgerEntryTypeTopUp             LedgerEntryType = "TOP_UP"
	LedgerEntryTypeWithdrawal        LedgerEntryType = "WITHDRAWAL"
	LedgerEntryTypeTransfer          LedgerEntryType = "TRANSFER"
)

var validLedgerEntryTypes = []LedgerEntryType{
	LedgerEntryTypeOrderPayment,
	LedgerEntryTypeCommission,
	LedgerEntryTypeVendorPayout,
	LedgerEntryTypeDeliveryFeePayout,
	LedgerEntryTypeRefund,
	LedgerEntryTypeCardFee,
	LedgerEntryTypeTopUp,
	LedgerEntryTypeWithdrawal,
	LedgerEntryTypeTransfer,
}

// String implements fmt.Stringer.
func (l LedgerEntryType) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LedgerEntryType.
func (l LedgerEntryType) IsValid() bool {
	for _, candidate := range validLedgerEntryTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLedgerEntryType converts raw input into a LedgerEntryType.
func ParseLedgerEntryType(value string) (LedgerEntryType, error) {
	for _, candidate := range validLedgerEntryTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger entry type %q", value)
}
