// Package investment implements the index investment product: USD enters
// as an ADD event that locks index-asset quantity at the oracle price,
// and leaves as a REMOVE event that releases it back to the withdrawable
// balance. Every event also drives the referral engine.
package investment

import (
	"context"
	"fmt"
	"math/big"

	"veyra/internal/models"
	"veyra/internal/money"
	"veyra/internal/repositories"
	"veyra/internal/services/price"
	"veyra/internal/services/referral"
)

const (
	// MinimumUSD is the smallest accepted investment or redemption.
	MinimumUSD = 10

	// indexAllocationBps is the share of each investment converted into
	// the index asset; the remainder funds the referral payouts.
	indexAllocationBps = 5500
)

// Service is the investment product API.
type Service interface {
	// Invest locks amountWei (wei USD) into the index asset. The deduction
	// drains the investable balance first, then the withdrawable one.
	Invest(ctx context.Context, userID uint, amountWei *big.Int) (*models.Investment, error)

	// Redeem converts locked index quantity back to withdrawable USD at
	// the current oracle price.
	Redeem(ctx context.Context, userID uint, amountWei *big.Int) (*models.Investment, error)

	List(userID uint, invType string) ([]models.Investment, error)
	Stats(ctx context.Context, userID uint) (*Stats, error)
}

type service struct {
	store     repositories.Store
	oracle    price.Oracle
	referrals referral.Service
	symbol    string
}

// NewService creates an investment service for one index symbol.
func NewService(store repositories.Store, oracle price.Oracle, referrals referral.Service, symbol string) Service {
	if store == nil {
		panic("store is required")
	}
	if oracle == nil {
		panic("oracle is required")
	}
	if referrals == nil {
		panic("referral service is required")
	}
	if symbol == "" {
		symbol = "BTC"
	}
	return &service{store: store, oracle: oracle, referrals: referrals, symbol: symbol}
}

func (s *service) Invest(ctx context.Context, userID uint, amountWei *big.Int) (*models.Investment, error) {
	if amountWei == nil || amountWei.Cmp(money.FromUnits(MinimumUSD)) < 0 {
		return nil, ErrBelowMinimum
	}

	// Strike the price before opening the transaction; RPC latency must
	// not hold row locks.
	priceWei, err := s.currentPrice(ctx)
	if err != nil {
		return nil, err
	}
	qty, err := money.QuoteQty(money.ApplyBps(amountWei, indexAllocationBps), priceWei)
	if err != nil {
		return nil, err
	}

	var inv *models.Investment
	err = s.store.ExecuteInTransaction(func(st repositories.Store) error {
		w, err := st.Wallets().GetByUserID(userID)
		if err != nil {
			return err
		}
		balance, err := money.Parse(w.TotalBalanceWeiUSD)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrCorruptLedger, w.TotalBalanceWeiUSD)
		}
		flexible, err := money.Parse(w.TotalFlexibleWeiUSD)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrCorruptLedger, w.TotalFlexibleWeiUSD)
		}
		lockedBefore, err := money.Parse(w.TotalLockIndexWei)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrCorruptLedger, w.TotalLockIndexWei)
		}

		if new(big.Int).Add(balance, flexible).Cmp(amountWei) < 0 {
			return ErrInsufficientFunds
		}

		deductBalance := new(big.Int).Set(amountWei)
		if deductBalance.Cmp(balance) > 0 {
			deductBalance.Set(balance)
		}
		deductFlexible := new(big.Int).Sub(amountWei, deductBalance)

		deltas := repositories.BalanceDeltas{Lock: qty}
		if deductBalance.Sign() > 0 {
			deltas.Balance = money.Neg(deductBalance)
		}
		if deductFlexible.Sign() > 0 {
			deltas.Flexible = money.Neg(deductFlexible)
		}
		if err := st.Wallets().ApplyBalanceDeltas(userID, deltas); err != nil {
			return err
		}

		inv = &models.Investment{
			UserID:        userID,
			Type:          models.InvestmentAdd,
			AmountWeiUSD:  money.Format(amountWei),
			IndexSymbol:   s.symbol,
			IndexQtyWei:   money.Format(qty),
			IndexPriceWei: money.Format(priceWei),
		}
		if err := st.Investments().Create(inv); err != nil {
			return err
		}

		reactivate := lockedBefore.Sign() == 0 && qty.Sign() > 0
		if err := s.referrals.OnInvestmentAdded(st, userID, amountWei, reactivate); err != nil {
			return err
		}
		return s.referrals.DistributeRewards(st, userID, inv.ID, amountWei)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *service) Redeem(ctx context.Context, userID uint, amountWei *big.Int) (*models.Investment, error) {
	if amountWei == nil || amountWei.Cmp(money.FromUnits(MinimumUSD)) < 0 {
		return nil, ErrBelowMinimum
	}

	priceWei, err := s.currentPrice(ctx)
	if err != nil {
		return nil, err
	}
	qty, err := money.QuoteQty(amountWei, priceWei)
	if err != nil {
		return nil, err
	}

	var inv *models.Investment
	err = s.store.ExecuteInTransaction(func(st repositories.Store) error {
		w, err := st.Wallets().GetByUserID(userID)
		if err != nil {
			return err
		}
		locked, err := money.Parse(w.TotalLockIndexWei)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrCorruptLedger, w.TotalLockIndexWei)
		}
		if qty.Cmp(locked) > 0 {
			return ErrInsufficientLocked
		}

		if err := st.Wallets().ApplyBalanceDeltas(userID, repositories.BalanceDeltas{
			Flexible: amountWei,
			Lock:     money.Neg(qty),
		}); err != nil {
			return err
		}

		inv = &models.Investment{
			UserID:        userID,
			Type:          models.InvestmentRemove,
			AmountWeiUSD:  money.Format(amountWei),
			IndexSymbol:   s.symbol,
			IndexQtyWei:   money.Format(qty),
			IndexPriceWei: money.Format(priceWei),
		}
		if err := st.Investments().Create(inv); err != nil {
			return err
		}

		deactivate := new(big.Int).Sub(locked, qty).Sign() <= 0
		return s.referrals.OnInvestmentRemoved(st, userID, amountWei, deactivate)
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *service) List(userID uint, invType string) ([]models.Investment, error) {
	if invType == "" {
		return s.store.Investments().ListByUser(userID)
	}
	return s.store.Investments().ListByUserAndType(userID, invType)
}

func (s *service) Stats(ctx context.Context, userID uint) (*Stats, error) {
	investments, err := s.store.Investments().ListByUser(userID)
	if err != nil {
		return nil, err
	}
	if len(investments) == 0 {
		return nil, ErrNoInvestments
	}
	priceWei, err := s.currentPrice(ctx)
	if err != nil {
		return nil, err
	}
	return computeStats(investments, priceWei), nil
}

func (s *service) currentPrice(ctx context.Context) (*big.Int, error) {
	coinID, err := price.CoinID(s.symbol)
	if err != nil {
		return nil, err
	}
	str, err := s.oracle.PriceUSD(ctx, coinID)
	if err != nil {
		return nil, err
	}
	return money.ParsePrice(str)
}
