package models

import (
	"time"

	"gorm.io/datatypes"
)

type NotificationType string

const (
	NotificationDuelRequest    NotificationType = "duel_request"
	NotificationDuelAccepted   NotificationType = "duel_accepted"
	NotificationBattleTurn     NotificationType = "battle_turn"
	NotificationBattleFinished NotificationType = "battle_finished"
)

// Notification is a persisted domain event addressed to one user.
type Notification struct {
	ID        string            `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string            `gorm:"index:idx_notifications_user_created,priority:1;not null" json:"user_id"`
	Type      NotificationType  `gorm:"type:varchar(32);not null" json:"type"`
	Title     string            `gorm:"not null" json:"title"`
	Message   string            `gorm:"type:text" json:"message"`
	Data      datatypes.JSONMap `json:"data"`
	Read      bool              `gorm:"not null;default:false;index" json:"read"`
	CreatedAt time.Time         `gorm:"autoCreateTime;index:idx_notifications_user_created,priority:2" json:"created_at"`
}
