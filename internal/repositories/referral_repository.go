package repositories

import (
	"errors"
	"fmt"

	"veyra/internal/models"

	"gorm.io/gorm"
)

// ReferralRepository defines referral tree persistence.
type ReferralRepository interface {
	Create(r *models.ReferralEarnings) error
	GetByUserID(userID uint) (*models.ReferralEarnings, error)
	GetByCode(code string) (*models.ReferralEarnings, error)
	Save(r *models.ReferralEarnings) error
	ListByReferrer(referrerID uint) ([]models.ReferralEarnings, error)
}

type referralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) ReferralRepository {
	return &referralRepository{db: db}
}

func (r *referralRepository) Create(rec *models.ReferralEarnings) error {
	if err := r.db.Create(rec).Error; err != nil {
		return fmt.Errorf("failed to create referral record: %w", err)
	}
	return nil
}

func (r *referralRepository) GetByUserID(userID uint) (*models.ReferralEarnings, error) {
	var rec models.ReferralEarnings
	if err := r.db.Where("user_id = ?", userID).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferralNotFound
		}
		return nil, fmt.Errorf("failed to get referral record: %w", err)
	}
	return &rec, nil
}

func (r *referralRepository) GetByCode(code string) (*models.ReferralEarnings, error) {
	var rec models.ReferralEarnings
	if err := r.db.Where("referral_code = ?", code).First(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReferralNotFound
		}
		return nil, fmt.Errorf("failed to get referral record: %w", err)
	}
	return &rec, nil
}

func (r *referralRepository) Save(rec *models.ReferralEarnings) error {
	if err := r.db.Save(rec).Error; err != nil {
		return fmt.Errorf("failed to save referral record: %w", err)
	}
	return nil
}

func (r *referralRepository) ListByReferrer(referrerID uint) ([]models.ReferralEarnings, error) {
	var recs []models.ReferralEarnings
	if err := r.db.Where("referrer_by = ?", referrerID).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to list referrals: %w", err)
	}
	return recs, nil
}
