package models

import (
	"time"

	"gorm.io/datatypes"
)

type BattleStatus string

const (
	BattleStatusActive   BattleStatus = "active"
	BattleStatusFinished BattleStatus = "finished"
)

// MaxHP is the starting and maximum hit points of each player.
const MaxHP = 100

// BattleState is the turn-based combat session of an accepted duel.
type BattleState struct {
	ID          string                      `gorm:"primaryKey;type:varchar(36)" json:"id"`
	DuelID      string                      `gorm:"uniqueIndex;not null" json:"duel_id"`
	Player1ID   string                      `gorm:"not null" json:"player1_id"` // duel creator, moves first
	Player2ID   string                      `gorm:"not null" json:"player2_id"`
	Player1HP   int                         `gorm:"not null" json:"player1_hp"`
	Player2HP   int                         `gorm:"not null" json:"player2_hp"`
	CurrentTurn *string                     `json:"current_turn"`
	TurnNumber  int                         `gorm:"not null;default:0" json:"turn_number"`
	BattleLog   datatypes.JSONSlice[string] `json:"battle_log"`
	Status      BattleStatus                `gorm:"type:varchar(16);index;not null;default:'active'" json:"status"`
	WinnerID    *string                     `json:"winner_id,omitempty"`
	FinishedAt  *time.Time                  `json:"finished_at,omitempty"`
	ArchivedAt  *time.Time                  `gorm:"index" json:"archived_at,omitempty"`
	ArchiveKey  string                      `json:"archive_key,omitempty"`
	CreatedAt   time.Time                   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time                   `gorm:"autoUpdateTime" json:"updated_at"`
}

// HPOf returns the hit points of a participant.
func (b *BattleState) HPOf(userID string) int {
	if userID == b.Player1ID {
		return b.Player1HP
	}
	return b.Player2HP
}

// Opponent returns the other participant of userID.
func (b *BattleState) Opponent(userID string) string {
	if userID == b.Player1ID {
		return b.Player2ID
	}
	return b.Player1ID
}

// IsParticipant reports whether userID fights in this battle.
func (b *BattleState) IsParticipant(userID string) bool {
	return userID != "" && (userID == b.Player1ID || userID == b.Player2ID)
}

// IsTurnOf reports whether userID may submit the next move.
func (b *BattleState) IsTurnOf(userID string) bool {
	return b.Status == BattleStatusActive && b.CurrentTurn != nil && *b.CurrentTurn == userID
}
