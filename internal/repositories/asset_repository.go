package repositories

import (
	"errors"
	"fmt"

	"veyra/internal/models"

	"gorm.io/gorm"
)

// AssetRepository defines the supported-asset catalogue. Rows change via
// admin seeding only; everything else reads.
type AssetRepository interface {
	Create(asset *models.Asset) error
	GetByID(id uint) (*models.Asset, error)
	GetBySymbol(chain, symbol string) (*models.Asset, error)
	ListEnabled(chain string) ([]models.Asset, error)
}

type assetRepository struct {
	db *gorm.DB
}

func NewAssetRepository(db *gorm.DB) AssetRepository {
	return &assetRepository{db: db}
}

func (r *assetRepository) Create(asset *models.Asset) error {
	if err := r.db.Create(asset).Error; err != nil {
		return fmt.Errorf("failed to create asset: %w", err)
	}
	return nil
}

func (r *assetRepository) GetByID(id uint) (*models.Asset, error) {
	var asset models.Asset
	if err := r.db.First(&asset, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return &asset, nil
}

func (r *assetRepository) GetBySymbol(chain, symbol string) (*models.Asset, error) {
	var asset models.Asset
	if err := r.db.Where("chain = ? AND symbol = ?", chain, symbol).First(&asset).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return &asset, nil
}

func (r *assetRepository) ListEnabled(chain string) ([]models.Asset, error) {
	scope := r.db.Where("enabled = ?", true)
	if chain != "" {
		scope = scope.Where("chain = ?", chain)
	}
	var assets []models.Asset
	if err := scope.Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("failed to list assets: %w", err)
	}
	return assets, nil
}
