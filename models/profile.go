package models

import (
	"time"
)

// Profile is the local record of a player's balance and record.
// Rows are bootstrapped outside the duel engine (sign-up or the profile
// mirror worker); coins, wins and losses change only through settlement.
type Profile struct {
	ID          string    `gorm:"primaryKey;type:varchar(64)" json:"id"` // external user id from the gateway
	Username    string    `gorm:"index" json:"username"`
	DisplayName string    `json:"display_name"`
	Coins       int64     `gorm:"not null;default:0;check:coins >= 0" json:"coins"`
	Wins        int64     `gorm:"not null;default:0" json:"wins"`
	Losses      int64     `gorm:"not null;default:0" json:"losses"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Name is what battle logs and notifications call the player.
func (p *Profile) Name() string {
	switch {
	case p.DisplayName != "":
		return p.DisplayName
	case p.Username != "":
		return p.Username
	default:
		return "Player " + shortID(p.ID)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
