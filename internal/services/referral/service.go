// Package referral maintains the 15-level referral tree and fans out
// commission on every investment. All mutating methods take the Store
// they must run against, so callers can compose them into one database
// transaction with the money movement they belong to.
package referral

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"veyra/internal/models"
	"veyra/internal/money"
	"veyra/internal/repositories"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Service is the referral tree API.
type Service interface {
	// Register creates the referral node for a new user and attaches them
	// to every upline bucket within reach. An empty referrerCode creates a
	// root node, used only when seeding the tree.
	Register(st repositories.Store, userID uint, referrerCode string) (*models.ReferralEarnings, error)

	// DistributeRewards walks up to MaxReferralLevels uplines from the
	// investor and credits (or records as missed) each level's commission.
	// Safe to re-run for the same investment: processed IDs are skipped.
	DistributeRewards(st repositories.Store, investorID, investmentID uint, amountWei *big.Int) error

	// OnInvestmentAdded/OnInvestmentRemoved keep the node's lifetime
	// totals and earning depth in step with the investment ledger.
	OnInvestmentAdded(st repositories.Store, userID uint, amountWei *big.Int, reactivate bool) error
	OnInvestmentRemoved(st repositories.Store, userID uint, amountWei *big.Int, deactivate bool) error

	Summary(userID uint) (*Summary, error)
}

// LevelSummary is one level of a user's downline, enriched with the
// static configuration so clients can render locked levels.
type LevelSummary struct {
	Level          int    `json:"level"`
	Count          int    `json:"count"`
	EarningsWei    string `json:"earningsWei"`
	MissedWei      string `json:"missedWei"`
	Bps            int64  `json:"bps"`
	RequirementUSD int64  `json:"requirementUsd"`
	Active         bool   `json:"active"`
}

// Summary is the full referral view for one user.
type Summary struct {
	ReferralCode       string         `json:"referralCode"`
	ActiveTillLevel    int            `json:"activeTillLevel"`
	EnableReferral     bool           `json:"enableReferral"`
	TotalEarningsWei   string         `json:"totalEarningsWei"`
	TotalInvestmentWei string         `json:"totalInvestmentWei"`
	DirectReferrals    int            `json:"directReferrals"`
	Levels             []LevelSummary `json:"levels"`
}

type service struct {
	store repositories.Store
}

// NewService creates a referral service over the base store.
func NewService(store repositories.Store) Service {
	if store == nil {
		panic("store is required")
	}
	return &service{store: store}
}

func (s *service) Register(st repositories.Store, userID uint, referrerCode string) (*models.ReferralEarnings, error) {
	if node, err := st.Referrals().GetByUserID(userID); err == nil {
		return node, nil
	} else if !errors.Is(err, repositories.ErrReferralNotFound) {
		return nil, err
	}

	var referrerBy *uint
	if referrerCode != "" {
		referrer, err := st.Referrals().GetByCode(referrerCode)
		if err != nil {
			if errors.Is(err, repositories.ErrReferralNotFound) {
				return nil, ErrInvalidReferralCode
			}
			return nil, err
		}
		referrerBy = &referrer.UserID
	}

	node := &models.ReferralEarnings{
		UserID:             userID,
		ReferrerBy:         referrerBy,
		ReferralCode:       newCode(),
		ActiveTillLevel:    models.DefaultActiveLevel,
		Levels:             models.NewLevelStats(),
		TotalEarningsWei:   "0",
		TotalInvestmentWei: "0",
		EnableReferral:     true,
	}
	if err := st.Referrals().Create(node); err != nil {
		return nil, err
	}

	if err := s.attachToUpline(st, userID, referrerBy); err != nil {
		return nil, err
	}
	return node, nil
}

// attachToUpline records the new user in the level bucket of each
// ancestor. Membership is checked before appending, so replays cannot
// double-count.
func (s *service) attachToUpline(st repositories.Store, userID uint, referrerBy *uint) error {
	current := referrerBy
	for level := 1; level <= models.MaxReferralLevels && current != nil; level++ {
		upline, err := st.Referrals().GetByUserID(*current)
		if err != nil {
			if errors.Is(err, repositories.ErrReferralNotFound) {
				break
			}
			return err
		}

		bucket := upline.Levels.Bucket(level)
		if !containsID(bucket.Referrals, userID) {
			bucket.Referrals = append(bucket.Referrals, int64(userID))
			bucket.Count++
			if err := st.Referrals().Save(upline); err != nil {
				return err
			}
		}
		current = upline.ReferrerBy
	}
	return nil
}

func (s *service) DistributeRewards(st repositories.Store, investorID, investmentID uint, amountWei *big.Int) error {
	current, err := st.Referrals().GetByUserID(investorID)
	if err != nil {
		if errors.Is(err, repositories.ErrReferralNotFound) {
			return nil
		}
		return err
	}

	for level := 1; level <= models.MaxReferralLevels; level++ {
		if current.ReferrerBy == nil {
			break
		}
		upline, err := st.Referrals().GetByUserID(*current.ReferrerBy)
		if err != nil {
			if errors.Is(err, repositories.ErrReferralNotFound) {
				break
			}
			return err
		}

		// A disabled upline forfeits this level but does not block the
		// deeper ancestors.
		if !upline.EnableReferral {
			current = upline
			continue
		}
		if containsID(upline.ProcessedInvestments, investmentID) {
			current = upline
			continue
		}

		income := money.ApplyBps(amountWei, ConfigFor(level).Bps)
		bucket := upline.Levels.Bucket(level)

		if level <= upline.ActiveTillLevel {
			bucket.EarningsWei, err = addAmount(bucket.EarningsWei, income)
			if err != nil {
				return err
			}
			if err := st.Wallets().ApplyBalanceDeltas(upline.UserID, repositories.BalanceDeltas{Flexible: income}); err != nil {
				return fmt.Errorf("failed to credit commission to user %d: %w", upline.UserID, err)
			}
			logrus.WithFields(logrus.Fields{
				"user":       upline.UserID,
				"level":      level,
				"investment": investmentID,
				"income":     money.FormatUnits(income),
			}).Info("referral commission credited")
		} else {
			bucket.MissedWei, err = addAmount(bucket.MissedWei, income)
			if err != nil {
				return err
			}
		}

		upline.ProcessedInvestments = append(upline.ProcessedInvestments, int64(investmentID))
		upline.TotalEarningsWei, err = sumEarnings(&upline.Levels)
		if err != nil {
			return err
		}
		if err := st.Referrals().Save(upline); err != nil {
			return err
		}
		current = upline
	}
	return nil
}

func (s *service) OnInvestmentAdded(st repositories.Store, userID uint, amountWei *big.Int, reactivate bool) error {
	node, err := st.Referrals().GetByUserID(userID)
	if err != nil {
		if errors.Is(err, repositories.ErrReferralNotFound) {
			return nil
		}
		return err
	}

	total, err := money.Parse(node.TotalInvestmentWei)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCorruptAmount, node.TotalInvestmentWei)
	}
	total.Add(total, amountWei)
	node.TotalInvestmentWei = money.Format(total)

	// Earning depth only moves up here; redemptions recompute it from
	// scratch and may move it down.
	if lvl := ActiveTillLevel(total); lvl > node.ActiveTillLevel {
		node.ActiveTillLevel = lvl
	}
	if reactivate {
		node.EnableReferral = true
	}
	return st.Referrals().Save(node)
}

func (s *service) OnInvestmentRemoved(st repositories.Store, userID uint, amountWei *big.Int, deactivate bool) error {
	node, err := st.Referrals().GetByUserID(userID)
	if err != nil {
		if errors.Is(err, repositories.ErrReferralNotFound) {
			return nil
		}
		return err
	}

	total, err := money.Parse(node.TotalInvestmentWei)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCorruptAmount, node.TotalInvestmentWei)
	}
	total.Sub(total, amountWei)
	if total.Sign() < 0 {
		total.SetInt64(0)
	}
	node.TotalInvestmentWei = money.Format(total)
	node.ActiveTillLevel = ActiveTillLevel(total)
	if deactivate {
		node.EnableReferral = false
	}
	return st.Referrals().Save(node)
}

func (s *service) Summary(userID uint) (*Summary, error) {
	node, err := s.store.Referrals().GetByUserID(userID)
	if err != nil {
		return nil, err
	}

	levels := make([]LevelSummary, 0, models.MaxReferralLevels)
	for level := 1; level <= models.MaxReferralLevels; level++ {
		bucket := node.Levels.Bucket(level)
		cfg := ConfigFor(level)
		levels = append(levels, LevelSummary{
			Level:          level,
			Count:          bucket.Count,
			EarningsWei:    bucket.EarningsWei,
			MissedWei:      bucket.MissedWei,
			Bps:            cfg.Bps,
			RequirementUSD: cfg.RequirementUSD,
			Active:         level <= node.ActiveTillLevel,
		})
	}

	return &Summary{
		ReferralCode:       node.ReferralCode,
		ActiveTillLevel:    node.ActiveTillLevel,
		EnableReferral:     node.EnableReferral,
		TotalEarningsWei:   node.TotalEarningsWei,
		TotalInvestmentWei: node.TotalInvestmentWei,
		DirectReferrals:    node.Levels.Bucket(1).Count,
		Levels:             levels,
	}, nil
}

func newCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
}

func containsID(arr []int64, id uint) bool {
	for _, v := range arr {
		if v == int64(id) {
			return true
		}
	}
	return false
}

func addAmount(stored string, delta *big.Int) (string, error) {
	v, err := money.Parse(stored)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrCorruptAmount, stored)
	}
	return money.Format(v.Add(v, delta)), nil
}

func sumEarnings(levels *models.LevelStats) (string, error) {
	total := new(big.Int)
	for level := 1; level <= models.MaxReferralLevels; level++ {
		v, err := money.Parse(levels.Bucket(level).EarningsWei)
		if err != nil {
			return "", fmt.Errorf("%w: %s", ErrCorruptAmount, levels.Bucket(level).EarningsWei)
		}
		total.Add(total, v)
	}
	return money.Format(total), nil
}
