package models

import (
	"time"
)

// Settlement is the ledger entry of a paid-out duel. The unique duel_id
// backs the at-most-once payout guarantee at the schema level.
type Settlement struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DuelID    string    `gorm:"uniqueIndex;not null" json:"duel_id"`
	WinnerID  string    `gorm:"index;not null" json:"winner_id"`
	LoserID   string    `gorm:"index;not null" json:"loser_id"`
	BetAmount int64     `gorm:"not null" json:"bet_amount"`
	Payout    int64     `gorm:"not null" json:"payout"`
	HouseFee  int64     `gorm:"not null" json:"house_fee"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
