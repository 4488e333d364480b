// services/profile_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"duel-arena/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LeaderboardBy selects the ranking column.
type LeaderboardBy string

const (
	LeaderboardByCoins LeaderboardBy = "coins"
	LeaderboardByWins  LeaderboardBy = "wins"
)

// ProfileIdentity is the mirrored, non-economic part of a profile.
type ProfileIdentity struct {
	ID          string
	Username    string
	DisplayName string
}

type ProfileService struct {
	DB            *gorm.DB
	startingCoins int64
	log           *zap.Logger
}

func NewProfileService(db *gorm.DB, startingCoins int64, logger *zap.Logger) *ProfileService {
	return &ProfileService{DB: db, startingCoins: startingCoins, log: logger.Named("profiles")}
}

// Get loads a profile by user id.
func (s *ProfileService) Get(ctx context.Context, userID string) (*models.Profile, error) {
	var p models.Profile
	if err := s.DB.WithContext(ctx).First(&p, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("load profile: %w", err)
	}
	return &p, nil
}

// Ensure makes sure a profile row exists (idempotent). An existing profile
// keeps its balance and record untouched.
func (s *ProfileService) Ensure(ctx context.Context, userID, username string) (*models.Profile, error) {
	if userID == "" {
		return nil, ErrMissingUserID
	}
	p := &models.Profile{
		ID:          userID,
		Username:    username,
		DisplayName: username,
		Coins:       s.startingCoins,
	}
	result := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoNothing: true,
	}).Create(p)
	if result.Error != nil {
		return nil, fmt.Errorf("bootstrap profile: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.log.Info("profile bootstrapped",
			zap.String("user_id", userID),
			zap.Int64("coins", s.startingCoins),
		)
	}
	return s.Get(ctx, userID)
}

// UpsertIdentities mirrors usernames and display names. New rows start with
// the configured coins; existing rows only get their identity columns updated.
func (s *ProfileService) UpsertIdentities(ctx context.Context, ids []ProfileIdentity) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	rows := make([]models.Profile, 0, len(ids))
	for _, id := range ids {
		if id.ID == "" {
			continue
		}
		display := id.DisplayName
		if display == "" {
			display = id.Username
		}
		rows = append(rows, models.Profile{
			ID:          id.ID,
			Username:    id.Username,
			DisplayName: display,
			Coins:       s.startingCoins,
		})
	}
	if len(rows) == 0 {
		return 0, nil
	}

	result := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"username", "display_name", "updated_at"}),
	}).Create(&rows)
	if result.Error != nil {
		return 0, fmt.Errorf("upsert profiles: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Names maps user ids to display names. Unknown ids get a short fallback.
func (s *ProfileService) Names(ctx context.Context, userIDs ...string) map[string]string {
	names := make(map[string]string, len(userIDs))
	var profiles []models.Profile
	if err := s.DB.WithContext(ctx).Where("id IN ?", userIDs).Find(&profiles).Error; err != nil {
		s.log.Warn("load names failed", zap.Strings("user_ids", userIDs), zap.Error(err))
	}
	for i := range profiles {
		names[profiles[i].ID] = profiles[i].Name()
	}
	for _, id := range userIDs {
		if _, ok := names[id]; !ok {
			names[id] = (&models.Profile{ID: id}).Name()
		}
	}
	return names
}

// Leaderboard returns the top profiles by coins or wins.
func (s *ProfileService) Leaderboard(ctx context.Context, by LeaderboardBy, limit int) ([]models.Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var order string
	switch by {
	case LeaderboardByWins:
		order = "wins DESC, coins DESC"
	case LeaderboardByCoins, "":
		order = "coins DESC, wins DESC"
	default:
		return nil, invalidRequest(fmt.Sprintf("unknown leaderboard %q", by))
	}

	var out []models.Profile
	if err := s.DB.WithContext(ctx).Order(order).Order("id ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return out, nil
}

// Search finds profiles whose username or display name contains query.
func (s *ProfileService) Search(ctx context.Context, query string, limit int) ([]models.Profile, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := s.DB.WithContext(ctx).Model(&models.Profile{}).Limit(limit)
	if term := strings.ToLower(strings.TrimSpace(query)); term != "" {
		like := "%" + term + "%"
		q = q.Where("LOWER(username) LIKE ? OR LOWER(display_name) LIKE ?", like, like)
	}
	var out []models.Profile
	if err := q.Order("username ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	return out, nil
}
