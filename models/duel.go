package models

import (
	"time"
)

type DuelStatus string

const (
	DuelStatusOpen       DuelStatus = "open"
	DuelStatusAccepted   DuelStatus = "accepted"
	DuelStatusInProgress DuelStatus = "in_progress"
	DuelStatusCompleted  DuelStatus = "completed"
	DuelStatusCancelled  DuelStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed.
func (s DuelStatus) Terminal() bool {
	return s == DuelStatusCompleted || s == DuelStatusCancelled
}

// HasOpponent reports whether a duel in this status must carry an opponent.
func (s DuelStatus) HasOpponent() bool {
	return s == DuelStatusAccepted || s == DuelStatusInProgress || s == DuelStatusCompleted
}

// Duel is a coin stake between a creator and (once accepted) an opponent.
type Duel struct {
	ID          string     `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatorID   string     `gorm:"index;not null" json:"creator_id"`
	OpponentID  *string    `gorm:"index" json:"opponent_id,omitempty"`
	BetAmount   int64      `gorm:"not null;check:bet_amount > 0" json:"bet_amount"`
	Status      DuelStatus `gorm:"type:varchar(16);index;not null;default:'open'" json:"status"`
	WinnerID    *string    `json:"winner_id,omitempty"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsParticipant reports whether userID is the creator or the opponent.
func (d *Duel) IsParticipant(userID string) bool {
	if userID == "" {
		return false
	}
	return d.CreatorID == userID || (d.OpponentID != nil && *d.OpponentID == userID)
}

// OtherParticipant returns the participant that is not userID.
func (d *Duel) OtherParticipant(userID string) string {
	if d.CreatorID == userID {
		if d.OpponentID != nil {
			return *d.OpponentID
		}
		return ""
	}
	return d.CreatorID
}

// PotentialWinnings is what the winner is credited for a given bet.
func PotentialWinnings(bet, payoutPercent int64) int64 {
	// Floor of bet*payoutPercent/100 without forming the full product.
	return bet/100*payoutPercent + bet%100*payoutPercent/100
}
