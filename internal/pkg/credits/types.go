package credits

import (
	"errors"
	"time"
)

// Business outcomes of a redemption. These are expected steady-state results,
// not faults; controllers map them to enumerated API error codes.
var (
	ErrInvalidCode     = errors.New("invalid_code")
	ErrCodeNotFound    = errors.New("code_not_found")
	ErrCodeAlreadyUsed = errors.New("code_already_used")
	ErrCodeExpired     = errors.New("code_expired")
	ErrRedeemFailed    = errors.New("redeem_failed")
)

// BalanceSnapshot is the read-only projection surfaced to callers. Balance is
// always the effective (expiry-applied) value, never the raw stored integer.
type BalanceSnapshot struct {
	Balance   int        `json:"balance"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Tier      string     `json:"tier"`
}

// RedeemResult reports a successful redemption.
type RedeemResult struct {
	NewBalance    int        `json:"new_balance"`
	NewExpiresAt  *time.Time `json:"new_expires_at,omitempty"`
	AmountGranted int        `json:"amount_granted"`
}

// SnapshotCache is an optional server-side read-through cache of balance
// snapshots. It is never a write source: every ledger mutation invalidates
// the entry and the next read repopulates it from the database.
type SnapshotCache interface {
	Get(userID uint) (*BalanceSnapshot, bool)
	Set(userID uint, snapshot *BalanceSnapshot)
	Invalidate(userID uint)
}
