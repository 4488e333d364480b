package services

import (
	"context"
	"testing"

	"duel-arena/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inProgressDuel(t *testing.T, env *testEnv, bet int64) *models.Duel {
	t.Helper()
	env.seedProfile(t, "alice", 1000)
	env.seedProfile(t, "bob", 1000)
	d := env.acceptedDuel(t, bet)
	_, err := env.battles.GetOrCreate(context.Background(), d.ID, "alice")
	require.NoError(t, err)
	return d
}

// finishedUnsettled leaves a battle finished with winnerID while its duel
// is still in progress and unpaid.
func finishedUnsettled(t *testing.T, env *testEnv, bet int64, winnerID string) *models.Duel {
	t.Helper()
	d := inProgressDuel(t, env, bet)
	require.NoError(t, env.db.Model(&models.BattleState{}).Where("duel_id = ?", d.ID).Updates(map[string]any{
		"status":       models.BattleStatusFinished,
		"winner_id":    winnerID,
		"current_turn": nil,
	}).Error)
	return d
}

func TestSettle(t *testing.T) {
	env := newTestEnv(t, nil)
	d := finishedUnsettled(t, env, 250, "bob")
	ctx := context.Background()

	st, err := env.settlement.Settle(ctx, d.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", st.WinnerID)
	assert.Equal(t, "alice", st.LoserID)
	assert.Equal(t, int64(200), st.Payout)
	assert.Equal(t, int64(50), st.HouseFee)

	alice, bob := env.profile(t, "alice"), env.profile(t, "bob")
	assert.Equal(t, int64(750), alice.Coins)
	assert.Equal(t, int64(1200), bob.Coins)
	assert.Equal(t, int64(1), alice.Losses)
	assert.Equal(t, int64(1), bob.Wins)

	stored := env.duel(t, d.ID)
	assert.Equal(t, models.DuelStatusCompleted, stored.Status)
	require.NotNil(t, stored.WinnerID)
	assert.Equal(t, "bob", *stored.WinnerID)
	assert.NotNil(t, stored.CompletedAt)

	ledger, err := env.settlement.ForDuel(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, st.ID, ledger.ID)
}

func TestSettleTwiceIsNoop(t *testing.T) {
	env := newTestEnv(t, nil)
	d := finishedUnsettled(t, env, 100, "alice")
	ctx := context.Background()

	_, err := env.settlement.Settle(ctx, d.ID, "alice")
	require.NoError(t, err)

	for _, winner := range []string{"alice", "bob"} {
		_, err = env.settlement.Settle(ctx, d.ID, winner)
		assert.ErrorIs(t, err, ErrDuelAlreadySettled)
		assert.ErrorIs(t, err, ErrAlreadySettled)
	}

	assert.Equal(t, int64(1080), env.profile(t, "alice").Coins)
	assert.Equal(t, int64(900), env.profile(t, "bob").Coins)
	assert.Equal(t, int64(1), env.profile(t, "alice").Wins)
}

func TestSettleRejectsWrongState(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 1000)
	env.seedProfile(t, "bob", 1000)
	ctx := context.Background()

	accepted := env.acceptedDuel(t, 100)
	_, err := env.settlement.Settle(ctx, accepted.ID, "alice")
	assert.ErrorIs(t, err, ErrDuelNotInProgress)

	_, err = env.settlement.Settle(ctx, "missing", "alice")
	assert.ErrorIs(t, err, ErrDuelNotFound)

	_, err = env.battles.GetOrCreate(ctx, accepted.ID, "alice")
	require.NoError(t, err)
	_, err = env.settlement.Settle(ctx, accepted.ID, "mallory")
	assert.ErrorIs(t, err, ErrNotParticipant)
	assert.Equal(t, models.DuelStatusInProgress, env.duel(t, accepted.ID).Status)
}

func TestSettleRequiresFinishedBattle(t *testing.T) {
	env := newTestEnv(t, nil)
	d := inProgressDuel(t, env, 100)
	ctx := context.Background()

	_, err := env.settlement.Settle(ctx, d.ID, "bob")
	assert.ErrorIs(t, err, ErrBattleNotFinished)
	assert.ErrorIs(t, err, ErrConflict)

	assert.Equal(t, models.DuelStatusInProgress, env.duel(t, d.ID).Status)
	assert.Equal(t, int64(1000), env.profile(t, "alice").Coins)
	assert.Equal(t, int64(1000), env.profile(t, "bob").Coins)

	battle, err := env.battles.GetByDuel(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BattleStatusActive, battle.Status)

	// The live battle keeps going.
	_, err = env.battles.SubmitMove(ctx, battle.ID, "alice", "strike")
	require.NoError(t, err)
}

func TestSettleRejectsWinnerMismatch(t *testing.T) {
	env := newTestEnv(t, nil)
	d := finishedUnsettled(t, env, 100, "alice")
	ctx := context.Background()

	_, err := env.settlement.Settle(ctx, d.ID, "bob")
	assert.ErrorIs(t, err, ErrWinnerMismatch)
	assert.Equal(t, models.DuelStatusInProgress, env.duel(t, d.ID).Status)
	assert.Equal(t, int64(1000), env.profile(t, "bob").Coins)

	_, err = env.settlement.Settle(ctx, d.ID, "alice")
	require.NoError(t, err)
}

func TestSettleConsistencyViolationRollsBack(t *testing.T) {
	env := newTestEnv(t, nil)
	d := finishedUnsettled(t, env, 100, "bob")
	ctx := context.Background()

	require.NoError(t, env.db.Model(&models.Profile{}).Where("id = ?", "alice").Update("coins", 99).Error)

	_, err := env.settlement.Settle(ctx, d.ID, "bob")
	require.ErrorIs(t, err, ErrConsistencyViolation)

	assert.Equal(t, models.DuelStatusInProgress, env.duel(t, d.ID).Status)
	assert.Equal(t, int64(99), env.profile(t, "alice").Coins)
	assert.Equal(t, int64(1000), env.profile(t, "bob").Coins)
	assert.Zero(t, env.profile(t, "bob").Wins)

	_, err = env.settlement.ForDuel(ctx, d.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEconomyPayout(t *testing.T) {
	e := Economy{PayoutPercent: 80}
	assert.Equal(t, int64(80), e.Payout(100))
	assert.Equal(t, int64(7), e.Payout(9), "payout is floored")
	assert.Equal(t, int64(0), Economy{}.Payout(100))

	huge := int64(9_000_000_000_000_000_000)
	assert.Equal(t, int64(7_200_000_000_000_000_000), e.Payout(huge), "no overflow on large bets")
	assert.Equal(t, int64(7_200_000_000_000_000_079), e.Payout(huge+99))
}
