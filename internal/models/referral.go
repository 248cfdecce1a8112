package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"
)

// MaxReferralLevels bounds both the payout depth and the upline walk.
const MaxReferralLevels = 15

// DefaultActiveLevel is the earning depth every account starts with.
const DefaultActiveLevel = 4

// LevelBucket aggregates one level of a user's downline.
type LevelBucket struct {
	Referrals   pq.Int64Array `json:"referrals"`
	Count       int           `json:"count"`
	EarningsWei string        `json:"earningsWei"`
	MissedWei   string        `json:"missedWei"`
}

// LevelStats is the closed set of 15 level buckets, indexed 0..14 for
// levels 1..15. It is stored as a jsonb column; the level set is known at
// compile time so a fixed array beats a dynamic map.
type LevelStats [MaxReferralLevels]LevelBucket

// Value implements driver.Valuer.
func (s LevelStats) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *LevelStats) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("level stats: unsupported scan type")
	}
	return json.Unmarshal(bytes, s)
}

// Bucket returns the bucket for a 1-based level.
func (s *LevelStats) Bucket(level int) *LevelBucket {
	return &s[level-1]
}

// ReferralEarnings is one user's node in the referral tree: the parent
// pointer, per-level downline stats and the idempotency ledger of already
// distributed investments.
type ReferralEarnings struct {
	ID           uint   `gorm:"primarykey"`
	UserID       uint   `gorm:"uniqueIndex;not null"`
	ReferrerBy   *uint  `gorm:"index"`
	ReferralCode string `gorm:"uniqueIndex;not null"`

	// Deepest level this user currently earns at; levels 1-4 are always
	// active, 5-15 unlock with lifetime investment.
	ActiveTillLevel int `gorm:"default:4"`

	Levels LevelStats `gorm:"type:jsonb"`

	// Investment IDs already fanned out to this user. Checked before any
	// credit so re-delivery can never pay twice.
	ProcessedInvestments pq.Int64Array `gorm:"type:bigint[]"`

	TotalEarningsWei   string `gorm:"type:numeric(78,0);default:0"`
	TotalInvestmentWei string `gorm:"type:numeric(78,0);default:0"`
	EnableReferral     bool   `gorm:"default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewLevelStats returns buckets initialised with zero amounts.
func NewLevelStats() LevelStats {
	var s LevelStats
	for i := range s {
		s[i] = LevelBucket{Referrals: pq.Int64Array{}, EarningsWei: "0", MissedWei: "0"}
	}
	return s
}
