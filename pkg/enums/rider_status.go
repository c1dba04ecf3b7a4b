package enums

import "fmt"

// RiderStatus tracks a rider's dispatch availability.
type RiderStatus string

const (
	RiderStatusAvailable RiderStatus = "AVAILABLE"
	RiderStatusBusy      RiderStatus = "BUSY"
	RiderStatusOffline   RiderStatus = "OFFLINE"
)

var validRiderStatuses = []RiderStatus{
	RiderStatusAvailable,
	RiderStatusBusy,
	RiderStatusOffline,
}

// String implements fmt.Stringer.
func (r RiderStatus) String() string {
	return string(r)
}

// IsValid reports whether the value is a known RiderStatus.
func (r RiderStatus) IsValid() bool {
	for _, candidate := range validRiderStatuses {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseRiderStatus converts raw input into a RiderStatus.
func ParseRiderStatus(value string) (RiderStatus, error) {
	for _, candidate := range validRiderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid rider status %q", value)
}
