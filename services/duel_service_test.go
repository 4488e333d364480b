package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"duel-arena/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCreateDuel(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 1000)
	ctx := context.Background()

	d, err := env.duels.Create(ctx, "alice", 100, CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.DuelStatusOpen, d.Status)
	assert.Equal(t, "alice", d.CreatorID)
	assert.Nil(t, d.OpponentID)
	assert.Nil(t, d.WinnerID)
	assert.Equal(t, int64(100), d.BetAmount)

	stored := env.duel(t, d.ID)
	assert.Equal(t, models.DuelStatusOpen, stored.Status)
}

func TestCreateDuelRejectsSmallBets(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 1000)

	for _, bet := range []int64{-5, 0, 9} {
		_, err := env.duels.Create(context.Background(), "alice", bet, CreateOptions{})
		require.ErrorIs(t, err, ErrInvalidBet, "bet %d", bet)
		assert.ErrorIs(t, err, ErrValidation)
		assert.Equal(t, "invalid_bet", ErrorCode(err))
	}
}

func TestCreateDuelInsufficientFundsCreatesNothing(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 500)

	_, err := env.duels.Create(context.Background(), "alice", 1000, CreateOptions{})
	require.ErrorIs(t, err, ErrInsufficientFunds)

	var count int64
	require.NoError(t, env.db.Model(&models.Duel{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestCreateDuelUnknownCreator(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.duels.Create(context.Background(), "ghost", 100, CreateOptions{})
	assert.ErrorIs(t, err, ErrProfileNotFound)

	_, err = env.duels.Create(context.Background(), "", 100, CreateOptions{})
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestCreateDuelCountsOutstandingStakes(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 100)
	ctx := context.Background()

	_, err := env.duels.Create(ctx, "alice", 60, CreateOptions{})
	require.NoError(t, err)

	_, err = env.duels.Create(ctx, "alice", 60, CreateOptions{})
	assert.ErrorIs(t, err, ErrCreatorFunds)

	_, err = env.duels.Create(ctx, "alice", 40, CreateOptions{})
	assert.NoError(t, err)
}

func TestCreateDuelWithoutExposureCheck(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 100)
	env.duels = NewDuelService(env.db, env.profiles, env.notifications,
		Economy{MinBet: 10, PayoutPercent: 80}, zap.NewNop())

	ctx := context.Background()
	_, err := env.duels.Create(ctx, "alice", 60, CreateOptions{})
	require.NoError(t, err)
	_, err = env.duels.Create(ctx, "alice", 60, CreateOptions{})
	assert.NoError(t, err)
}

func TestCreateDuelInvite(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 1000)
	env.seedProfile(t, "bob", 1000)

	d, err := env.duels.Create(context.Background(), "alice", 1000, CreateOptions{InviteUserID: "bob"})
	require.NoError(t, err)

	got := env.notificationsOf(t, "bob", models.NotificationDuelRequest)
	require.Len(t, got, 1)
	assert.Equal(t, "alice challenged you to a duel for 1,000 coins.", got[0].Message)
	assert.Equal(t, d.ID, got[0].Data["duel_id"])

	// Self-invites are ignored.
	_, err = env.duels.Create(context.Background(), "bob", 10, CreateOptions{InviteUserID: "bob"})
	require.NoError(t, err)
	assert.Len(t, env.notificationsOf(t, "bob", models.NotificationDuelRequest), 1)
}

func TestAcceptDuel(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 1000)
	env.seedProfile(t, "bob", 1000)
	ctx := context.Background()

	d, err := env.duels.Create(ctx, "alice", 100, CreateOptions{})
	require.NoError(t, err)

	accepted, err := env.duels.Accept(ctx, d.ID, "bob")
	require.NoError(t, err)
	assert.Equal(t, models.DuelStatusAccepted, accepted.Status)
	require.NotNil(t, accepted.OpponentID)
	assert.Equal(t, "bob", *accepted.OpponentID)
	assert.NotNil(t, accepted.AcceptedAt)

	notes := env.notificationsOf(t, "alice", models.NotificationDuelAccepted)
	require.Len(t, notes, 1)
	assert.Equal(t, "Your duel challenge has been accepted. Prepare for battle!", notes[0].Message)
	assert.Equal(t, d.ID, notes[0].Data["duel_id"])

	// Balances are only touched by settlement.
	assert.Equal(t, int64(1000), env.profile(t, "alice").Coins)
	assert.Equal(t, int64(1000), env.profile(t, "bob").Coins)
}

func TestAcceptDuelRejections(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 1000)
	env.seedProfile(t, "bob", 1000)
	env.seedProfile(t, "poor", 50)
	ctx := context.Background()

	d, err := env.duels.Create(ctx, "alice", 100, CreateOptions{})
	require.NoError(t, err)

	_, err = env.duels.Accept(ctx, d.ID, "alice")
	assert.ErrorIs(t, err, ErrSelfAcceptance)
	assert.ErrorIs(t, err, ErrAuthorization)

	_, err = env.duels.Accept(ctx, d.ID, "poor")
	assert.ErrorIs(t, err, ErrAcceptorFunds)

	_, err = env.duels.Accept(ctx, "missing", "bob")
	assert.ErrorIs(t, err, ErrDuelNotFound)

	assert.Equal(t, models.DuelStatusOpen, env.duel(t, d.ID).Status)
}

func TestAcceptDuelRechecksCreatorBalance(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 1000)
	env.seedProfile(t, "bob", 1000)
	ctx := context.Background()

	d, err := env.duels.Create(ctx, "alice", 500, CreateOptions{})
	require.NoError(t, err)
	require.NoError(t, env.db.Model(&models.Profile{}).Where("id = ?", "alice").Update("coins", 100).Error)

	_, err = env.duels.Accept(ctx, d.ID, "bob")
	assert.ErrorIs(t, err, ErrCreatorCannotCover)
	assert.Equal(t, models.DuelStatusOpen, env.duel(t, d.ID).Status)
}

func TestAcceptDuelOnlyOnceUnderContention(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 1000)
	const acceptors = 12
	for i := 0; i < acceptors; i++ {
		env.seedProfile(t, fmt.Sprintf("p%d", i), 1000)
	}
	ctx := context.Background()
	d, err := env.duels.Create(ctx, "alice", 100, CreateOptions{})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		winners   []string
		conflicts int
	)
	start := make(chan struct{})
	for i := 0; i < acceptors; i++ {
		id := fmt.Sprintf("p%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := env.duels.Accept(ctx, d.ID, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, id)
			case errors.Is(err, ErrDuelNoLongerOpen):
				conflicts++
			default:
				t.Errorf("unexpected error for %s: %v", id, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, winners, 1)
	assert.Equal(t, acceptors-1, conflicts)

	stored := env.duel(t, d.ID)
	require.NotNil(t, stored.OpponentID)
	assert.Equal(t, winners[0], *stored.OpponentID)
	assert.Len(t, env.notificationsOf(t, "alice", models.NotificationDuelAccepted), 1)
}

func TestCancelDuel(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 1000)
	env.seedProfile(t, "bob", 1000)
	ctx := context.Background()

	d, err := env.duels.Create(ctx, "alice", 100, CreateOptions{})
	require.NoError(t, err)

	assert.ErrorIs(t, env.duels.Cancel(ctx, d.ID, "bob"), ErrNotDuelCreator)
	require.NoError(t, env.duels.Cancel(ctx, d.ID, "alice"))

	stored := env.duel(t, d.ID)
	assert.Equal(t, models.DuelStatusCancelled, stored.Status)
	assert.NotNil(t, stored.CancelledAt)

	assert.ErrorIs(t, env.duels.Cancel(ctx, d.ID, "alice"), ErrDuelNoLongerOpen)
	_, err = env.duels.Accept(ctx, d.ID, "bob")
	assert.ErrorIs(t, err, ErrDuelNoLongerOpen)
}

func TestCancelAcceptedDuelFails(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 1000)
	env.seedProfile(t, "bob", 1000)
	d := env.acceptedDuel(t, 100)

	err := env.duels.Cancel(context.Background(), d.ID, "alice")
	assert.ErrorIs(t, err, ErrDuelNoLongerOpen)
	assert.Equal(t, models.DuelStatusAccepted, env.duel(t, d.ID).Status)
}

func TestListDuels(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 1000)
	env.seedProfile(t, "bob", 1000)
	env.seedProfile(t, "carol", 1000)
	ctx := context.Background()

	a1, err := env.duels.Create(ctx, "alice", 10, CreateOptions{})
	require.NoError(t, err)
	_, err = env.duels.Create(ctx, "bob", 20, CreateOptions{})
	require.NoError(t, err)
	_, err = env.duels.Accept(ctx, a1.ID, "carol")
	require.NoError(t, err)

	open, err := env.duels.ListOpen(ctx, "bob", Page{})
	require.NoError(t, err)
	assert.Empty(t, open, "own duels and accepted duels are not listed")

	open, err = env.duels.ListOpen(ctx, "alice", Page{})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "bob", open[0].CreatorID)

	mine, err := env.duels.ListForUser(ctx, "carol", nil, Page{})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, a1.ID, mine[0].ID)

	mine, err = env.duels.ListForUser(ctx, "alice", []models.DuelStatus{models.DuelStatusOpen}, Page{})
	require.NoError(t, err)
	assert.Empty(t, mine)

	paged, err := env.duels.ListForUser(ctx, "alice", nil, Page{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Empty(t, paged)
}

func TestExpireStaleOpen(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 1000)
	env.seedProfile(t, "bob", 1000)
	ctx := context.Background()

	stale, err := env.duels.Create(ctx, "alice", 10, CreateOptions{})
	require.NoError(t, err)
	accepted := env.acceptedDuel(t, 10)
	fresh, err := env.duels.Create(ctx, "alice", 10, CreateOptions{})
	require.NoError(t, err)

	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, env.db.Model(&models.Duel{}).
		Where("id IN ?", []string{stale.ID, accepted.ID}).
		UpdateColumn("created_at", old).Error)

	n, err := env.duels.ExpireStaleOpen(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, models.DuelStatusCancelled, env.duel(t, stale.ID).Status)
	assert.Equal(t, models.DuelStatusAccepted, env.duel(t, accepted.ID).Status)
	assert.Equal(t, models.DuelStatusOpen, env.duel(t, fresh.ID).Status)
}
