// services/battle_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"duel-arena/combat"
	"duel-arena/models"
	"duel-arena/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BattleService is the turn-based state machine of accepted duels. Every
// move is one conditional UPDATE keyed on the observed status, turn holder
// and turn number; a finishing move settles the duel in the same transaction.
type BattleService struct {
	DB            *gorm.DB
	Profiles      *ProfileService
	Settlement    *SettlementService
	Notifications *NotificationService
	rng           combat.RandomSource
	log           *zap.Logger
	now           func() time.Time
}

func NewBattleService(
	db *gorm.DB,
	profiles *ProfileService,
	settlement *SettlementService,
	notifications *NotificationService,
	rng combat.RandomSource,
	logger *zap.Logger,
) *BattleService {
	if rng == nil {
		rng = combat.DefaultSource()
	}
	return &BattleService{
		DB:            db,
		Profiles:      profiles,
		Settlement:    settlement,
		Notifications: notifications,
		rng:           rng,
		log:           logger.Named("battles"),
		now:           time.Now,
	}
}

// MoveResult is a committed move together with its resolution.
type MoveResult struct {
	Battle     *models.BattleState `json:"battle"`
	Move       combat.Move         `json:"move"`
	Outcome    combat.Outcome      `json:"outcome"`
	LogLine    string              `json:"log_line"`
	Settlement *models.Settlement  `json:"settlement,omitempty"`
}

// Get loads a battle by id.
func (s *BattleService) Get(ctx context.Context, battleID string) (*models.BattleState, error) {
	var b models.BattleState
	if err := s.DB.WithContext(ctx).First(&b, "id = ?", battleID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBattleNotFound
		}
		return nil, fmt.Errorf("load battle: %w", err)
	}
	return &b, nil
}

// GetByDuel loads the battle of a duel.
func (s *BattleService) GetByDuel(ctx context.Context, duelID string) (*models.BattleState, error) {
	return s.getByDuel(s.DB.WithContext(ctx), duelID)
}

func (s *BattleService) getByDuel(db *gorm.DB, duelID string) (*models.BattleState, error) {
	var b models.BattleState
	if err := db.First(&b, "duel_id = ?", duelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBattleNotFound
		}
		return nil, fmt.Errorf("load battle: %w", err)
	}
	return &b, nil
}

// GetOrCreate returns the battle of an accepted duel, creating it on first
// entry. Repeated and concurrent calls all observe the same battle; the
// first one also moves the duel to in_progress.
func (s *BattleService) GetOrCreate(ctx context.Context, duelID, requesterID string) (*models.BattleState, error) {
	if requesterID == "" {
		return nil, ErrMissingUserID
	}

	var duel models.Duel
	if err := s.DB.WithContext(ctx).First(&duel, "id = ?", duelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrDuelNotFound
		}
		return nil, fmt.Errorf("load duel: %w", err)
	}
	if !duel.IsParticipant(requesterID) {
		return nil, ErrNotParticipant
	}

	switch duel.Status {
	case models.DuelStatusAccepted, models.DuelStatusInProgress:
	case models.DuelStatusCompleted:
		return s.GetByDuel(ctx, duel.ID)
	case models.DuelStatusCancelled:
		return nil, ErrDuelCancelled
	default:
		return nil, ErrBattleNotReady
	}

	if existing, err := s.GetByDuel(ctx, duel.ID); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrBattleNotFound) {
		return nil, err
	}

	if duel.OpponentID == nil {
		return nil, consistencyError("accepted duel has no opponent")
	}
	first := duel.CreatorID
	battle := &models.BattleState{
		ID:          uuid.NewString(),
		DuelID:      duel.ID,
		Player1ID:   duel.CreatorID,
		Player2ID:   *duel.OpponentID,
		Player1HP:   models.MaxHP,
		Player2HP:   models.MaxHP,
		CurrentTurn: &first,
		BattleLog:   []string{},
		Status:      models.BattleStatusActive,
	}

	var created bool
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "duel_id"}},
			DoNothing: true,
		}).Create(battle)
		if res.Error != nil {
			return fmt.Errorf("create battle: %w", res.Error)
		}
		created = res.RowsAffected > 0

		// No-op when a concurrent caller already flipped it.
		return tx.Model(&models.Duel{}).
			Where("id = ? AND status = ?", duel.ID, models.DuelStatusAccepted).
			Updates(map[string]any{
				"status":     models.DuelStatusInProgress,
				"updated_at": s.now(),
			}).Error
	})
	if err != nil {
		return nil, err
	}
	if created {
		s.log.Info("battle started",
			zap.String("duel_id", duel.ID),
			zap.String("battle_id", battle.ID),
			zap.String("first_turn", first),
		)
	}
	return s.GetByDuel(ctx, duel.ID)
}

// SubmitMove resolves moveID for actingUserID and commits the new state.
// A request that lost the race against another move for the same turn
// fails with ErrStaleBattleState and changes nothing.
func (s *BattleService) SubmitMove(ctx context.Context, battleID, actingUserID, moveID string) (*MoveResult, error) {
	if actingUserID == "" {
		return nil, ErrMissingUserID
	}
	move, ok := combat.LookupMove(moveID)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMove, moveID)
	}

	battle, err := s.Get(ctx, battleID)
	if err != nil {
		return nil, err
	}
	if !battle.IsParticipant(actingUserID) {
		return nil, ErrNotParticipant
	}
	if !battle.IsTurnOf(actingUserID) {
		return nil, ErrNotYourTurn
	}

	names := s.Profiles.Names(ctx, battle.Player1ID, battle.Player2ID)
	defenderID := battle.Opponent(actingUserID)

	outcome := combat.Resolve(move, s.rng)
	line := combat.Describe(names[actingUserID], move, outcome)

	defenderHP := battle.HPOf(defenderID) - outcome.Damage
	if defenderHP < 0 {
		defenderHP = 0
	}
	finished := defenderHP <= 0

	nextLog := make([]string, 0, len(battle.BattleLog)+1)
	nextLog = append(nextLog, battle.BattleLog...)
	nextLog = append(nextLog, line)

	now := s.now()
	hpColumn := "player2_hp"
	if defenderID == battle.Player1ID {
		hpColumn = "player1_hp"
	}
	updates := map[string]any{
		hpColumn:      defenderHP,
		"battle_log":  datatypes.JSONSlice[string](nextLog),
		"turn_number": battle.TurnNumber + 1,
		"updated_at":  now,
	}
	if finished {
		updates["status"] = models.BattleStatusFinished
		updates["current_turn"] = nil
		updates["winner_id"] = actingUserID
		updates["finished_at"] = now
	} else {
		updates["current_turn"] = defenderID
	}

	var settlement *models.Settlement
	var duel models.Duel
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&duel, "id = ?", battle.DuelID).Error; err != nil {
			return fmt.Errorf("load duel: %w", err)
		}
		if duel.Status != models.DuelStatusInProgress {
			return ErrDuelNotInProgress
		}

		res := tx.Model(&models.BattleState{}).
			Where("id = ? AND status = ? AND current_turn = ? AND turn_number = ?",
				battle.ID, models.BattleStatusActive, actingUserID, battle.TurnNumber).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("apply move: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrStaleBattleState
		}
		if !finished {
			return nil
		}

		st, err := s.Settlement.settleTx(tx, &duel, actingUserID)
		if errors.Is(err, ErrAlreadySettled) || errors.Is(err, ErrDuelNotInProgress) {
			// The battle was still active, so its duel cannot have been paid.
			s.log.Error("battle finished on a duel that is not in progress",
				zap.String("battle_id", battle.ID),
				zap.String("duel_id", battle.DuelID),
				zap.String("duel_status", string(duel.Status)),
			)
			return consistencyError("battle and duel state disagree")
		}
		if err != nil {
			return err
		}
		settlement = st
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrStaleBattleState) {
			s.log.Debug("stale move rejected",
				zap.String("battle_id", battle.ID),
				zap.String("user_id", actingUserID),
				zap.Int("turn_number", battle.TurnNumber),
			)
		}
		return nil, err
	}

	s.log.Info("move applied",
		zap.String("battle_id", battle.ID),
		zap.String("user_id", actingUserID),
		zap.String("move", move.ID),
		zap.Bool("hit", outcome.Hit),
		zap.Int("damage", outcome.Damage),
		zap.Int("defender_hp", defenderHP),
		zap.Bool("finished", finished),
	)

	updated, err := s.Get(ctx, battle.ID)
	if err != nil {
		return nil, err
	}

	if finished {
		s.notifyFinished(ctx, updated, settlement, names)
	} else {
		s.Notifications.DispatchAll(ctx, Event{
			Type:    models.NotificationBattleTurn,
			UserID:  defenderID,
			Title:   "Your Turn!",
			Message: fmt.Sprintf("It's your turn in the battle against %s", names[actingUserID]),
			Data: map[string]any{
				"duel_id":     battle.DuelID,
				"battle_id":   battle.ID,
				"turn_number": updated.TurnNumber,
			},
		})
	}

	return &MoveResult{
		Battle:     updated,
		Move:       move,
		Outcome:    outcome,
		LogLine:    line,
		Settlement: settlement,
	}, nil
}

func (s *BattleService) notifyFinished(ctx context.Context, b *models.BattleState, st *models.Settlement, names map[string]string) {
	if st == nil {
		return
	}
	s.Notifications.DispatchAll(ctx,
		Event{
			Type:    models.NotificationBattleFinished,
			UserID:  st.WinnerID,
			Title:   "Victory!",
			Message: fmt.Sprintf("You defeated %s and won %s coins!", names[st.LoserID], utils.FormatCoins(st.Payout)),
			Data: map[string]any{
				"duel_id":   b.DuelID,
				"battle_id": b.ID,
				"result":    "won",
				"coins":     st.Payout,
			},
		},
		Event{
			Type:    models.NotificationBattleFinished,
			UserID:  st.LoserID,
			Title:   "Defeat",
			Message: fmt.Sprintf("You were defeated by %s and lost %s coins.", names[st.WinnerID], utils.FormatCoins(st.BetAmount)),
			Data: map[string]any{
				"duel_id":   b.DuelID,
				"battle_id": b.ID,
				"result":    "lost",
				"coins":     st.BetAmount,
			},
		},
	)
}

// ListStalled returns active battles without a move since cutoff.
func (s *BattleService) ListStalled(ctx context.Context, cutoff time.Time, limit int) ([]models.BattleState, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []models.BattleState
	err := s.DB.WithContext(ctx).
		Where("status = ? AND updated_at < ?", models.BattleStatusActive, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list stalled battles: %w", err)
	}
	return out, nil
}

// PendingArchive returns finished battles not yet exported.
func (s *BattleService) PendingArchive(ctx context.Context, limit int) ([]models.BattleState, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.BattleState
	err := s.DB.WithContext(ctx).
		Where("status = ? AND archived_at IS NULL", models.BattleStatusFinished).
		Order("finished_at ASC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list unarchived battles: %w", err)
	}
	return out, nil
}

// MarkArchived records the archive key once. It reports false when another
// worker got there first.
func (s *BattleService) MarkArchived(ctx context.Context, battleID, key string) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&models.BattleState{}).
		Where("id = ? AND archived_at IS NULL", battleID).
		Updates(map[string]any{
			"archived_at": s.now(),
			"archive_key": key,
		})
	if res.Error != nil {
		return false, fmt.Errorf("mark battle archived: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
