package models

import "time"

// Asset is a supported ERC-20 style token on one chain. The zero address
// sentinel marks the chain's native token.
type Asset struct {
	ID          uint   `gorm:"primarykey"`
	Symbol      string `gorm:"not null;index"`
	Name        string
	Chain       string `gorm:"not null;index"`
	Address     string `gorm:"not null"`
	Decimals    int    `gorm:"default:18"`
	CoinGeckoID string `gorm:"column:coingecko_id"`
	Enabled     bool   `gorm:"default:true"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
