package credits

import "time"

// Grant is an (amount, validity window) pair produced by a payment channel or
// a redemption code and merged into a user ledger exactly once.
//
// ValidityDays == 0 means PERMANENT: the granted credits never expire and the
// merged ledger carries a nil expiry. Every grant channel (mock payment,
// Stripe checkout, redemption codes) uses this one convention.
type Grant struct {
	Amount       int
	ValidityDays int
}

// ExpiryFrom converts a validity window into an absolute expiry timestamp.
// A zero (or negative) window yields nil, i.e. no expiry.
func ExpiryFrom(now time.Time, validityDays int) *time.Time {
	if validityDays <= 0 {
		return nil
	}
	t := now.AddDate(0, 0, validityDays)
	return &t
}

// EffectiveBalance projects the stored balance to "now": an expired balance
// counts as zero even though the stored integer may be nonzero. Expiry is
// lazy; this projection never mutates stored state and must be applied at
// every point a usable balance is surfaced. A balance expiring exactly at
// "now" is already dead, matching the strict `balance_expires_at > ?`
// predicate the consume path uses.
func EffectiveBalance(balance int, expiresAt *time.Time, now time.Time) int {
	if balance <= 0 {
		return 0
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return 0
	}
	return balance
}

// MergeGrant folds a grant into the current (balance, expiry) pair.
//
// If the current balance is dead (expired or empty) the grant fully replaces
// it and the stale expiry is discarded. If the balance is live the amounts
// add and the expiry only ever extends: a user topping up before expiry never
// loses paid-for time to a later, shorter-validity purchase. A nil expiry is
// permanent and therefore always wins the extension.
func MergeGrant(balance int, expiresAt *time.Time, g Grant, now time.Time) (int, *time.Time) {
	if EffectiveBalance(balance, expiresAt, now) == 0 {
		return g.Amount, ExpiryFrom(now, g.ValidityDays)
	}

	newBalance := balance + g.Amount

	if expiresAt == nil {
		return newBalance, nil
	}
	grantExpiry := ExpiryFrom(now, g.ValidityDays)
	if grantExpiry == nil {
		return newBalance, nil
	}
	if grantExpiry.After(*expiresAt) {
		return newBalance, grantExpiry
	}
	keep := *expiresAt
	return newBalance, &keep
}
