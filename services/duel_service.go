// services/duel_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duel-arena/models"
	"duel-arena/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Page is a limit/offset window over a listing.
type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalized() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// CreateOptions are the optional parts of a new duel.
type CreateOptions struct {
	// InviteUserID receives a duel_request notification. The duel itself
	// stays open to anyone.
	InviteUserID string
}

// DuelService owns the duel lifecycle: create, accept, cancel.
type DuelService struct {
	DB            *gorm.DB
	Profiles      *ProfileService
	Notifications *NotificationService
	economy       Economy
	log           *zap.Logger
	now           func() time.Time
}

func NewDuelService(db *gorm.DB, profiles *ProfileService, notifications *NotificationService, economy Economy, logger *zap.Logger) *DuelService {
	return &DuelService{
		DB:            db,
		Profiles:      profiles,
		Notifications: notifications,
		economy:       economy,
		log:           logger.Named("duels"),
		now:           time.Now,
	}
}

// Economy returns the betting rules in force.
func (s *DuelService) Economy() Economy { return s.economy }

// Create opens a new duel staking bet coins of creatorID.
func (s *DuelService) Create(ctx context.Context, creatorID string, bet int64, opts CreateOptions) (*models.Duel, error) {
	if creatorID == "" {
		return nil, ErrMissingUserID
	}
	if bet <= 0 || bet < s.economy.MinBet {
		return nil, fmt.Errorf("%w (minimum %d)", ErrInvalidBet, s.economy.MinBet)
	}

	creator, err := s.Profiles.Get(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	available, err := s.economy.available(ctx, s.DB, creator, "")
	if err != nil {
		return nil, err
	}
	if bet > available {
		s.log.Debug("duel rejected: insufficient funds",
			zap.String("creator_id", creatorID),
			zap.Int64("bet", bet),
			zap.Int64("available", available),
		)
		return nil, ErrCreatorFunds
	}

	duel := &models.Duel{
		ID:        uuid.NewString(),
		CreatorID: creatorID,
		BetAmount: bet,
		Status:    models.DuelStatusOpen,
	}
	if err := s.DB.WithContext(ctx).Create(duel).Error; err != nil {
		return nil, fmt.Errorf("create duel: %w", err)
	}

	s.log.Info("duel created",
		zap.String("duel_id", duel.ID),
		zap.String("creator_id", creatorID),
		zap.Int64("bet", bet),
	)

	if invitee := opts.InviteUserID; invitee != "" && invitee != creatorID {
		name := s.Profiles.Names(ctx, creatorID)[creatorID]
		s.Notifications.DispatchAll(ctx, Event{
			Type:    models.NotificationDuelRequest,
			UserID:  invitee,
			Title:   "Duel Challenge!",
			Message: fmt.Sprintf("%s challenged you to a duel for %s coins.", name, utils.FormatCoins(bet)),
			Data: map[string]any{
				"duel_id":    duel.ID,
				"creator_id": creatorID,
				"bet_amount": bet,
			},
		})
	}
	return duel, nil
}

// Accept moves an open duel to accepted with acceptorID as the opponent.
// Only one concurrent acceptor can win; the others get ErrDuelNoLongerOpen.
func (s *DuelService) Accept(ctx context.Context, duelID, acceptorID string) (*models.Duel, error) {
	if acceptorID == "" {
		return nil, ErrMissingUserID
	}
	duel, err := s.Get(ctx, duelID)
	if err != nil {
		return nil, err
	}
	if duel.CreatorID == acceptorID {
		return nil, ErrSelfAcceptance
	}
	if duel.Status != models.DuelStatusOpen {
		return nil, ErrDuelNoLongerOpen
	}

	acceptor, err := s.Profiles.Get(ctx, acceptorID)
	if err != nil {
		return nil, err
	}
	available, err := s.economy.available(ctx, s.DB, acceptor, duel.ID)
	if err != nil {
		return nil, err
	}
	if duel.BetAmount > available {
		return nil, ErrAcceptorFunds
	}

	// The creator's balance may have moved since the duel was listed.
	creator, err := s.Profiles.Get(ctx, duel.CreatorID)
	if err != nil {
		return nil, err
	}
	creatorAvailable, err := s.economy.available(ctx, s.DB, creator, duel.ID)
	if err != nil {
		return nil, err
	}
	if duel.BetAmount > creatorAvailable {
		return nil, ErrCreatorCannotCover
	}

	now := s.now()
	result := s.DB.WithContext(ctx).Model(&models.Duel{}).
		Where("id = ? AND status = ?", duel.ID, models.DuelStatusOpen).
		Updates(map[string]any{
			"opponent_id": acceptorID,
			"status":      models.DuelStatusAccepted,
			"accepted_at": now,
			"updated_at":  now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("accept duel: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		s.log.Debug("accept lost the race", zap.String("duel_id", duel.ID), zap.String("acceptor_id", acceptorID))
		return nil, ErrDuelNoLongerOpen
	}

	s.log.Info("duel accepted",
		zap.String("duel_id", duel.ID),
		zap.String("creator_id", duel.CreatorID),
		zap.String("opponent_id", acceptorID),
	)

	s.Notifications.DispatchAll(ctx, Event{
		Type:    models.NotificationDuelAccepted,
		UserID:  duel.CreatorID,
		Title:   "Duel Accepted!",
		Message: "Your duel challenge has been accepted. Prepare for battle!",
		Data: map[string]any{
			"duel_id":     duel.ID,
			"opponent_id": acceptorID,
		},
	})

	return s.Get(ctx, duel.ID)
}

// Cancel withdraws an open duel. Only its creator may do so.
func (s *DuelService) Cancel(ctx context.Context, duelID, requesterID string) error {
	if requesterID == "" {
		return ErrMissingUserID
	}
	duel, err := s.Get(ctx, duelID)
	if err != nil {
		return err
	}
	if duel.CreatorID != requesterID {
		return ErrNotDuelCreator
	}
	if err := s.cancelOpen(ctx, duel.ID); err != nil {
		return err
	}
	s.log.Info("duel cancelled", zap.String("duel_id", duel.ID), zap.String("creator_id", requesterID))
	return nil
}

func (s *DuelService) cancelOpen(ctx context.Context, duelID string) error {
	now := s.now()
	result := s.DB.WithContext(ctx).Model(&models.Duel{}).
		Where("id = ? AND status = ?", duelID, models.DuelStatusOpen).
		Updates(map[string]any{
			"status":       models.DuelStatusCancelled,
			"cancelled_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return fmt.Errorf("cancel duel: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDuelNoLongerOpen
	}
	return nil
}

// ExpireStaleOpen cancels open duels created before cutoff. Each duel goes
// through the same conditional write as Cancel, so a duel accepted in the
// meantime is left alone.
func (s *DuelService) ExpireStaleOpen(ctx context.Context, cutoff time.Time) (int, error) {
	var ids []string
	if err := s.DB.WithContext(ctx).Model(&models.Duel{}).
		Where("status = ? AND created_at < ?", models.DuelStatusOpen, cutoff).
		Limit(500).
		Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("find stale duels: %w", err)
	}

	expired := 0
	for _, id := range ids {
		err := s.cancelOpen(ctx, id)
		switch {
		case err == nil:
			expired++
		case errors.Is(err, ErrDuelNoLongerOpen):
		default:
			return expired, err
		}
	}
	return expired, nil
}

// Get loads a duel by id.
func (s *DuelService) Get(ctx context.Context, duelID string) (*models.Duel, error) {
	var duel models.Duel
	if err := s.DB.WithContext(ctx).First(&duel, "id = ?", duelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDuelNotFound
		}
		return nil, fmt.Errorf("load duel: %w", err)
	}
	return &duel, nil
}

// ListOpen returns open duels other players may accept, newest first.
func (s *DuelService) ListOpen(ctx context.Context, callerID string, page Page) ([]models.Duel, error) {
	page = page.normalized()
	q := s.DB.WithContext(ctx).Where("status = ?", models.DuelStatusOpen)
	if callerID != "" {
		q = q.Where("creator_id <> ?", callerID)
	}
	var out []models.Duel
	if err := q.Order("created_at DESC").Order("id DESC").
		Limit(page.Limit).Offset(page.Offset).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list open duels: %w", err)
	}
	return out, nil
}

// ListForUser returns the duels userID takes part in, newest first.
// An empty statuses slice means every status.
func (s *DuelService) ListForUser(ctx context.Context, userID string, statuses []models.DuelStatus, page Page) ([]models.Duel, error) {
	page = page.normalized()
	q := s.DB.WithContext(ctx).Where("creator_id = ? OR opponent_id = ?", userID, userID)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}
	var out []models.Duel
	if err := q.Order("created_at DESC").Order("id DESC").
		Limit(page.Limit).Offset(page.Offset).
		Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list duels: %w", err)
	}
	return out, nil
}
