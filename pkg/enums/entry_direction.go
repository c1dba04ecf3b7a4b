package enums

import "fmt"

// EntryDirection marks whether a ledger entry adds to or removes from a wallet.
type EntryDirection string

const (
	EntryDirectionCredit EntryDirection = "CREDIT"
	EntryDirectionDebit  EntryDirection = "DEBIT"
)

var validEntryDirections = []EntryDirection{
	EntryDirectionCredit,
	EntryDirectionDebit,
}

// String implements fmt.Stringer.
func (e EntryDirection) String() string {
	return string(e)
}

// IsValid reports whether the value is a known EntryDirection.
func (e EntryDirection) IsValid() bool {
	for _, candidate := range validEntryDirections {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEntryDirection converts raw input into an EntryDirection.
func ParseEntryDirection(value string) (EntryDirection, error) {
	for _, candidate := range validEntryDirections {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entry direction %q", value)
}
