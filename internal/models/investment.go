package models

import "time"

// Investment event types
const (
	InvestmentAdd    = "ADD"
	InvestmentRemove = "REMOVE"
)

// Investment is an immutable ADD or REMOVE event. Corrections are new
// rows, never updates, so replaying a user's history in creation order
// always reproduces their cost basis.
type Investment struct {
	ID     uint   `gorm:"primarykey"`
	UserID uint   `gorm:"not null;index"`
	Type   string `gorm:"not null"`

	// USD amount of the event and the index-asset quantity/price struck
	// at execution time, all 18-decimal wei strings.
	AmountWeiUSD  string `gorm:"type:numeric(78,0);not null"`
	IndexSymbol   string `gorm:"not null;default:'BTC'"`
	IndexQtyWei   string `gorm:"type:numeric(78,0);not null"`
	IndexPriceWei string `gorm:"type:numeric(78,0);not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
