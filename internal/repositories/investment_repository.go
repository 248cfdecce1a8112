package repositories

import (
	"fmt"

	"veyra/internal/models"

	"gorm.io/gorm"
)

// InvestmentRepository defines investment event persistence. Rows are
// append-only; history reads come back in creation order so FIFO replay
// is deterministic.
type InvestmentRepository interface {
	Create(inv *models.Investment) error
	ListByUser(userID uint) ([]models.Investment, error)
	ListByUserAndType(userID uint, invType string) ([]models.Investment, error)
}

type investmentRepository struct {
	db *gorm.DB
}

func NewInvestmentRepository(db *gorm.DB) InvestmentRepository {
	return &investmentRepository{db: db}
}

func (r *investmentRepository) Create(inv *models.Investment) error {
	if err := r.db.Create(inv).Error; err != nil {
		return fmt.Errorf("failed to create investment: %w", err)
	}
	return nil
}

func (r *investmentRepository) ListByUser(userID uint) ([]models.Investment, error) {
	var invs []models.Investment
	if err := r.db.Where("user_id = ?", userID).Order("created_at ASC").Find(&invs).Error; err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	return invs, nil
}

func (r *investmentRepository) ListByUserAndType(userID uint, invType string) ([]models.Investment, error) {
	var invs []models.Investment
	err := r.db.Where("user_id = ? AND type = ?", userID, invType).
		Order("created_at ASC").
		Find(&invs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	return invs, nil
}
