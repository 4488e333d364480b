// services/notification_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duel-arena/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultNotificationLimit = 20
	maxNotificationLimit     = 100
)

// Event is a domain event addressed to one user.
type Event struct {
	Type    models.NotificationType
	UserID  string
	Title   string
	Message string
	Data    map[string]any
}

// NotificationService persists notifications and hands them to the Hub.
// Persistence is the durability boundary; live delivery is best-effort.
type NotificationService struct {
	DB  *gorm.DB
	Hub *Hub
	log *zap.Logger
}

func NewNotificationService(db *gorm.DB, hub *Hub, logger *zap.Logger) *NotificationService {
	return &NotificationService{DB: db, Hub: hub, log: logger.Named("notifications")}
}

// Dispatch stores the event and publishes it to live subscribers.
func (s *NotificationService) Dispatch(ctx context.Context, ev Event) (*models.Notification, error) {
	if ev.UserID == "" || ev.Type == "" {
		return nil, invalidRequest("notification needs a recipient and a type")
	}

	data := datatypes.JSONMap{}
	for k, v := range ev.Data {
		data[k] = v
	}

	n := &models.Notification{
		ID:      uuid.NewString(),
		UserID:  ev.UserID,
		Type:    ev.Type,
		Title:   ev.Title,
		Message: ev.Message,
		Data:    data,
	}
	if err := s.DB.WithContext(ctx).Create(n).Error; err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	if s.Hub != nil {
		s.Hub.Publish(n)
	}
	return n, nil
}

// DispatchAll sends events after a committed transition. Failures are logged
// and never reported back: the transition already happened.
func (s *NotificationService) DispatchAll(ctx context.Context, events ...Event) {
	for _, ev := range events {
		if _, err := s.Dispatch(ctx, ev); err != nil {
			s.log.Warn("notification dispatch failed",
				zap.String("type", string(ev.Type)),
				zap.String("user_id", ev.UserID),
				zap.Error(err),
			)
		}
	}
}

// ListOptions filters a notification listing.
type ListOptions struct {
	Limit      int
	UnreadOnly bool
}

// List returns the newest notifications of a user.
func (s *NotificationService) List(ctx context.Context, userID string, opts ListOptions) ([]models.Notification, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultNotificationLimit
	}
	if limit > maxNotificationLimit {
		limit = maxNotificationLimit
	}

	q := s.DB.WithContext(ctx).Where("user_id = ?", userID)
	if opts.UnreadOnly {
		q = q.Where("read = ?", false)
	}

	var out []models.Notification
	if err := q.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// Since returns notifications created at or after t, oldest first.
func (s *NotificationService) Since(ctx context.Context, userID string, t time.Time) ([]models.Notification, error) {
	var out []models.Notification
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND created_at >= ?", userID, t).
		Order("created_at ASC").Order("id ASC").
		Limit(maxNotificationLimit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("poll notifications: %w", err)
	}
	return out, nil
}

// Latest returns the newest notification of a user, or nil.
func (s *NotificationService) Latest(ctx context.Context, userID string) (*models.Notification, error) {
	var n models.Notification
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC").First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// UnreadCount counts unread notifications of a user.
func (s *NotificationService) UnreadCount(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Count(&count).Error
	return count, err
}

// MarkRead acknowledges one notification. Idempotent.
func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	result := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if result.Error != nil {
		return fmt.Errorf("mark notification read: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Row may exist and already be read on drivers that only count changed rows.
		var count int64
		if err := s.DB.WithContext(ctx).Model(&models.Notification{}).
			Where("id = ? AND user_id = ?", id, userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotificationNotFound
		}
	}
	return nil
}

// MarkAllRead acknowledges every unread notification of a user.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	result := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	return result.RowsAffected, result.Error
}

// Delete removes one notification owned by userID.
func (s *NotificationService) Delete(ctx context.Context, userID, id string) error {
	result := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).Delete(&models.Notification{})
	if result.Error != nil {
		return fmt.Errorf("delete notification: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// PruneRead deletes read notifications created before cutoff.
func (s *NotificationService) PruneRead(ctx context.Context, cutoff time.Time) (int64, error) {
	result := s.DB.WithContext(ctx).
		Where("read = ? AND created_at < ?", true, cutoff).
		Delete(&models.Notification{})
	return result.RowsAffected, result.Error
}
