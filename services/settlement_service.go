// services/settlement_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duel-arena/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SettlementService pays out finished duels. A duel id is paid at most once:
// the in_progress -> completed flip, both balance changes and the ledger row
// commit or roll back together.
type SettlementService struct {
	DB      *gorm.DB
	economy Economy
	log     *zap.Logger
	now     func() time.Time
}

func NewSettlementService(db *gorm.DB, economy Economy, logger *zap.Logger) *SettlementService {
	return &SettlementService{
		DB:      db,
		economy: economy,
		log:     logger.Named("settlement"),
		now:     time.Now,
	}
}

// Settle completes duelID in favour of winnerID in its own transaction.
// The duel's battle must already be finished with winnerID as its winner;
// battles normally settle inside their finishing move, so this only pays
// out a finished battle whose duel was left unsettled. A duel that is
// already completed yields ErrDuelAlreadySettled and moves no coins.
func (s *SettlementService) Settle(ctx context.Context, duelID, winnerID string) (*models.Settlement, error) {
	var out *models.Settlement
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var duel models.Duel
		if err := tx.First(&duel, "id = ?", duelID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrDuelNotFound
			}
			return fmt.Errorf("load duel: %w", err)
		}
		switch {
		case duel.Status == models.DuelStatusCompleted:
			return ErrDuelAlreadySettled
		case duel.Status != models.DuelStatusInProgress:
			return ErrDuelNotInProgress
		case !duel.IsParticipant(winnerID):
			return ErrNotParticipant
		}

		var battle models.BattleState
		if err := tx.First(&battle, "duel_id = ?", duel.ID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrBattleNotFinished
			}
			return fmt.Errorf("load battle: %w", err)
		}
		if battle.Status != models.BattleStatusFinished {
			return ErrBattleNotFinished
		}
		if battle.WinnerID == nil || *battle.WinnerID != winnerID {
			return ErrWinnerMismatch
		}

		settlement, err := s.settleTx(tx, &duel, winnerID)
		if err != nil {
			return err
		}
		out = settlement
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// settleTx runs inside the caller's transaction. Any error must abort it.
func (s *SettlementService) settleTx(tx *gorm.DB, duel *models.Duel, winnerID string) (*models.Settlement, error) {
	if duel.Status == models.DuelStatusCompleted {
		return nil, ErrDuelAlreadySettled
	}
	if duel.Status != models.DuelStatusInProgress {
		return nil, ErrDuelNotInProgress
	}
	if !duel.IsParticipant(winnerID) {
		return nil, ErrNotParticipant
	}
	loserID := duel.OtherParticipant(winnerID)
	if loserID == "" {
		return nil, s.violation(duel, winnerID, "", "in-progress duel has no opponent")
	}

	now := s.now()
	result := tx.Model(&models.Duel{}).
		Where("id = ? AND status = ?", duel.ID, models.DuelStatusInProgress).
		Updates(map[string]any{
			"status":       models.DuelStatusCompleted,
			"winner_id":    winnerID,
			"completed_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("complete duel: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		var current models.Duel
		if err := tx.Select("status").First(&current, "id = ?", duel.ID).Error; err != nil {
			return nil, fmt.Errorf("reload duel: %w", err)
		}
		if current.Status == models.DuelStatusCompleted {
			return nil, ErrDuelAlreadySettled
		}
		return nil, ErrDuelNotInProgress
	}

	bet := duel.BetAmount
	payout := s.economy.Payout(bet)

	debit := tx.Model(&models.Profile{}).
		Where("id = ? AND coins >= ?", loserID, bet).
		Updates(map[string]any{
			"coins":      gorm.Expr("coins - ?", bet),
			"losses":     gorm.Expr("losses + 1"),
			"updated_at": now,
		})
	if debit.Error != nil {
		return nil, fmt.Errorf("debit loser: %w", debit.Error)
	}
	if debit.RowsAffected == 0 {
		return nil, s.violation(duel, winnerID, loserID, "loser cannot cover the bet at settlement")
	}

	credit := tx.Model(&models.Profile{}).
		Where("id = ?", winnerID).
		Updates(map[string]any{
			"coins":      gorm.Expr("coins + ?", payout),
			"wins":       gorm.Expr("wins + 1"),
			"updated_at": now,
		})
	if credit.Error != nil {
		return nil, fmt.Errorf("credit winner: %w", credit.Error)
	}
	if credit.RowsAffected == 0 {
		return nil, s.violation(duel, winnerID, loserID, "winner profile missing at settlement")
	}

	settlement := &models.Settlement{
		ID:        uuid.NewString(),
		DuelID:    duel.ID,
		WinnerID:  winnerID,
		LoserID:   loserID,
		BetAmount: bet,
		Payout:    payout,
		HouseFee:  bet - payout,
	}
	if err := tx.Create(settlement).Error; err != nil {
		return nil, fmt.Errorf("record settlement: %w", err)
	}

	duel.Status = models.DuelStatusCompleted
	duel.WinnerID = &winnerID
	duel.CompletedAt = &now

	s.log.Info("duel settled",
		zap.String("duel_id", duel.ID),
		zap.String("winner_id", winnerID),
		zap.String("loser_id", loserID),
		zap.Int64("bet", bet),
		zap.Int64("payout", payout),
	)
	return settlement, nil
}

func (s *SettlementService) violation(duel *models.Duel, winnerID, loserID, msg string) error {
	s.log.Error("settlement consistency violation",
		zap.String("reason", msg),
		zap.String("duel_id", duel.ID),
		zap.String("status", string(duel.Status)),
		zap.String("winner_id", winnerID),
		zap.String("loser_id", loserID),
		zap.Int64("bet", duel.BetAmount),
	)
	return consistencyError(msg)
}

// ForDuel returns the ledger entry of a settled duel.
func (s *SettlementService) ForDuel(ctx context.Context, duelID string) (*models.Settlement, error) {
	var out models.Settlement
	if err := s.DB.WithContext(ctx).First(&out, "duel_id = ?", duelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDuelNotFound
		}
		return nil, fmt.Errorf("load settlement: %w", err)
	}
	return &out, nil
}
