package services

import (
	"context"
	"testing"
	"time"

	"duel-arena/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHousekeepingJobs(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 1000)
	env.seedProfile(t, "bob", 1000)
	ctx := context.Background()

	open, err := env.duels.Create(ctx, "alice", 10, CreateOptions{})
	require.NoError(t, err)
	d := env.acceptedDuel(t, 10)
	_, err = env.battles.GetOrCreate(ctx, d.ID, "alice")
	require.NoError(t, err)

	n := dispatch(t, env, "alice", models.NotificationBattleTurn)
	require.NoError(t, env.notifications.MarkRead(ctx, "alice", n.ID))

	hk := NewHousekeeping(env.duels, env.battles, env.notifications, HousekeepingConfig{
		OpenDuelTTL:           time.Hour,
		NotificationRetention: time.Hour,
	}, zap.NewNop())
	hk.now = func() time.Time { return time.Now().Add(3 * time.Hour) }

	require.NoError(t, hk.ExpireOpenDuels(ctx))
	require.NoError(t, hk.PruneNotifications(ctx))
	require.NoError(t, hk.ReportStalledBattles(ctx))

	assert.Equal(t, models.DuelStatusCancelled, env.duel(t, open.ID).Status)
	assert.Equal(t, models.DuelStatusInProgress, env.duel(t, d.ID).Status, "battles are never forfeited")

	var count int64
	require.NoError(t, env.db.Model(&models.Notification{}).Where("id = ?", n.ID).Count(&count).Error)
	assert.Zero(t, count)

	stalled, err := env.battles.ListStalled(ctx, hk.now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, stalled, 1)
}

func TestHousekeepingDisabledByZeroTTL(t *testing.T) {
	env := newTestEnv(t, nil)
	env.seedProfile(t, "alice", 1000)
	ctx := context.Background()

	open, err := env.duels.Create(ctx, "alice", 10, CreateOptions{})
	require.NoError(t, err)

	hk := NewHousekeeping(env.duels, env.battles, env.notifications, HousekeepingConfig{}, zap.NewNop())
	hk.now = func() time.Time { return time.Now().Add(24 * time.Hour) }
	require.NoError(t, hk.ExpireOpenDuels(ctx))
	require.NoError(t, hk.ReportStalledBattles(ctx))
	assert.Equal(t, models.DuelStatusOpen, env.duel(t, open.ID).Status)
}

func TestHousekeepingStartAndShutdown(t *testing.T) {
	env := newTestEnv(t, nil)
	hk := NewHousekeeping(env.duels, env.battles, env.notifications, HousekeepingConfig{Interval: time.Hour}, zap.NewNop())

	sched, err := hk.Start(context.Background())
	require.NoError(t, err)
	assert.Len(t, sched.Jobs(), 3)
	assert.NoError(t, sched.Shutdown())
}
