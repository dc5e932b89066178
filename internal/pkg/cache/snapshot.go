package cache

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/elvinn/hongbao-cover-ai-sub000/internal/pkg/credits"
)

const snapshotTTL = 60 * time.Second

// BalanceSnapshotCache is the Redis-backed read-through cache of per-user
// balance snapshots. It only ever mirrors server-confirmed ledger state; the
// credits service invalidates it on every mutation, so it can never be a
// write source that diverges from stored truth.
type BalanceSnapshotCache struct{}

// NewBalanceSnapshotCache returns the Redis snapshot cache.
func NewBalanceSnapshotCache() *BalanceSnapshotCache {
	return &BalanceSnapshotCache{}
}

func snapshotKey(userID uint) string {
	return fmt.Sprintf("credits:snapshot:%d", userID)
}

func (c *BalanceSnapshotCache) Get(userID uint) (*credits.BalanceSnapshot, bool) {
	raw, err := Get(snapshotKey(userID))
	if err != nil {
		return nil, false
	}
	var snap credits.BalanceSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, false
	}
	return &snap, true
}

func (c *BalanceSnapshotCache) Set(userID uint, snapshot *credits.BalanceSnapshot) {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	if err := Set(snapshotKey(userID), raw, snapshotTTL); err != nil {
		log.Debugf("[Cache] snapshot set failed for user %d: %v", userID, err)
	}
}

func (c *BalanceSnapshotCache) Invalidate(userID uint) {
	if err := Delete(snapshotKey(userID)); err != nil {
		log.Debugf("[Cache] snapshot invalidate failed for user %d: %v", userID, err)
	}
}
