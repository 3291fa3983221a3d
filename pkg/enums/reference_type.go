package enums

import "fmt"

// ReferenceType names the entity a ledger entry points at.
type ReferenceType string

const (
	ReferencePayment      ReferenceType = "payment"
	ReferencePayout       ReferenceType = "payout"
	ReferenceSubscription ReferenceType = "subscription"
)

var validReferenceTypes = []ReferenceType{
	ReferencePayment,
	ReferencePayout,
	ReferenceSubscription,
}

// String implements fmt.Stringer.
func (r ReferenceType) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ReferenceType.
func (r ReferenceType) IsValid() bool {
	for _, candidate := range validReferenceTypes {
		if candidate == r {
			return true
		}
	}
	return false
}

// ParseReferenceType converts raw input into a ReferenceType.
func ParseReferenceType(value string) (ReferenceType, error) {
	for _, candidate := range validReferenceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid reference type %q", value)
}
