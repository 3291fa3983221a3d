package enums

import "fmt"

// WalletTransactionType classifies an append-only ledger entry.
type WalletTransactionType string

const (
	WalletTransactionDeposit            WalletTransactionType = "deposit"
	WalletTransactionPayout             WalletTransactionType = "payout"
	WalletTransactionPayoutFailed       WalletTransactionType = "payout_failed"
	WalletTransactionPayoutCanceled     WalletTransactionType = "payout_canceled"
	WalletTransactionRefund             WalletTransactionType = "refund"
	WalletTransactionSubscriptionCharge WalletTransactionType = "subscription_charge"
	WalletTransactionAdjustment         WalletTransactionType = "adjustment"
)

var validWalletTransactionTypes = []WalletTransactionType{
	WalletTransactionDeposit,
	WalletTransactionPayout,
	WalletTransactionPayoutFailed,
	WalletTransactionPayoutCanceled,
	WalletTransactionRefund,
	WalletTransactionSubscriptionCharge,
	WalletTransactionAdjustment,
}

// String implements fmt.Stringer.
func (w WalletTransactionType) String() string {
	return string(w)
}

// IsValid reports whether the value is a known WalletTransactionType.
func (w WalletTransactionType) IsValid() bool {
	for _, candidate := range validWalletTransactionTypes {
		if candidate == w {
			return true
		}
	}
	return false
}

// ParseWalletTransactionType converts raw input into a WalletTransactionType.
func ParseWalletTransactionType(value string) (WalletTransactionType, error) {
	for _, candidate := range validWalletTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid wallet transaction type %q", value)
}

// IsCompensating reports whether the entry reverses an earlier payout debit.
func (w WalletTransactionType) IsCompensating() bool {
	return w == WalletTransactionPayoutFailed || w == WalletTransactionPayoutCanceled
}
