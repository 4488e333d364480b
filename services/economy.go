package services

import (
	"context"
	"fmt"

	"duel-arena/models"

	"gorm.io/gorm"
)

// Economy holds the betting rules shared by the duel and settlement services.
type Economy struct {
	MinBet        int64
	PayoutPercent int64
	// StakeExposureCheck subtracts the user's other outstanding stakes from
	// the balance when validating a new bet or an acceptance.
	StakeExposureCheck bool
}

// DefaultEconomy mirrors the production defaults.
var DefaultEconomy = Economy{MinBet: 10, PayoutPercent: 80, StakeExposureCheck: true}

// Payout is the amount credited to the winner of a bet.
func (e Economy) Payout(bet int64) int64 {
	return models.PotentialWinnings(bet, e.PayoutPercent)
}

// committedStake sums the bets a user has riding on other unfinished duels.
func committedStake(ctx context.Context, db *gorm.DB, userID, excludeDuelID string) (int64, error) {
	var committed int64
	q := db.WithContext(ctx).Model(&models.Duel{}).
		Select("CAST(COALESCE(SUM(bet_amount), 0) AS BIGINT)").
		Where("(creator_id = ? AND status IN ?) OR (opponent_id = ? AND status IN ?)",
			userID,
			[]models.DuelStatus{models.DuelStatusOpen, models.DuelStatusAccepted, models.DuelStatusInProgress},
			userID,
			[]models.DuelStatus{models.DuelStatusAccepted, models.DuelStatusInProgress},
		)
	if excludeDuelID != "" {
		q = q.Where("id <> ?", excludeDuelID)
	}
	if err := q.Scan(&committed).Error; err != nil {
		return 0, fmt.Errorf("sum committed stakes: %w", err)
	}
	return committed, nil
}

// available is the balance a user may still put at stake.
func (e Economy) available(ctx context.Context, db *gorm.DB, p *models.Profile, excludeDuelID string) (int64, error) {
	if !e.StakeExposureCheck {
		return p.Coins, nil
	}
	committed, err := committedStake(ctx, db, p.ID, excludeDuelID)
	if err != nil {
		return 0, err
	}
	return p.Coins - committed, nil
}
