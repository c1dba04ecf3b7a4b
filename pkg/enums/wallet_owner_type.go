package enums

import "fmt"

// WalletOwnerType identifies which party a wallet belongs to.
type WalletOwnerType string

const (
	WalletOwnerTypeUser     WalletOwnerType = "USER"
	WalletOwnerTypeVendor   WalletOwnerType = "VENDOR"
	WalletOwnerTypeRider    WalletOwnerType = "RIDER"
	WalletOwnerTypePlatform WalletOwnerType = "PLATFORM"
)

var validWalletOwnerTypes = []WalletOwnerType{
	WalletOwnerTypeUser,
	WalletOwnerTypeVendor,
	WalletOwnerTypeRider,
	WalletOwnerTypePlatform,
}

// String implements fmt.Stringer.
func (w WalletOwnerType) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletOwnerType.
func (w WalletOwnerType) IsValid() bool {
	for _, candidate := range validWalletOwnerTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWalletOwnerType converts raw input into a WalletOwnerType.
func ParseWalletOwnerType(value string) (WalletOwnerType, error) {
	for _, candidate := range validWalletOwnerTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet owner type %q", value)
}
