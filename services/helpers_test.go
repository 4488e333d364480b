package services

import (
	"context"
	"testing"

	"duel-arena/combat"
	"duel-arena/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps the in-memory database alive and serialises writers.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

// fixedSource always hits with zero jitter unless told otherwise.
type fixedSource struct {
	roll float64 // in [0,1)
	intn int     // -1 means the centre of the range
}

func (f fixedSource) Float64() float64 { return f.roll }
func (f fixedSource) IntN(n int) int {
	if f.intn < 0 {
		return n / 2
	}
	return f.intn
}

var alwaysHit = fixedSource{roll: 0, intn: -1}

type testEnv struct {
	db            *gorm.DB
	hub           *Hub
	notifications *NotificationService
	profiles      *ProfileService
	settlement    *SettlementService
	duels         *DuelService
	battles       *BattleService
}

func newTestEnv(t *testing.T, rng combat.RandomSource) *testEnv {
	t.Helper()
	db := newTestDB(t)
	log := zap.NewNop()
	if rng == nil {
		rng = alwaysHit
	}

	env := &testEnv{db: db, hub: NewHub(8)}
	env.notifications = NewNotificationService(db, env.hub, log)
	env.profiles = NewProfileService(db, 1000, log)
	env.settlement = NewSettlementService(db, DefaultEconomy, log)
	env.duels = NewDuelService(db, env.profiles, env.notifications, DefaultEconomy, log)
	env.battles = NewBattleService(db, env.profiles, env.settlement, env.notifications, rng, log)
	return env
}

func (e *testEnv) seedProfile(t *testing.T, id string, coins int64) {
	t.Helper()
	require.NoError(t, e.db.Create(&models.Profile{ID: id, Username: id, DisplayName: id, Coins: coins}).Error)
}

func (e *testEnv) profile(t *testing.T, id string) models.Profile {
	t.Helper()
	p, err := e.profiles.Get(context.Background(), id)
	require.NoError(t, err)
	return *p
}

func (e *testEnv) duel(t *testing.T, id string) models.Duel {
	t.Helper()
	d, err := e.duels.Get(context.Background(), id)
	require.NoError(t, err)
	return *d
}

// acceptedDuel creates alice's duel accepted by bob.
func (e *testEnv) acceptedDuel(t *testing.T, bet int64) *models.Duel {
	t.Helper()
	ctx := context.Background()
	d, err := e.duels.Create(ctx, "alice", bet, CreateOptions{})
	require.NoError(t, err)
	d, err = e.duels.Accept(ctx, d.ID, "bob")
	require.NoError(t, err)
	return d
}

func (e *testEnv) notificationsOf(t *testing.T, userID string, typ models.NotificationType) []models.Notification {
	t.Helper()
	var out []models.Notification
	require.NoError(t, e.db.Where("user_id = ? AND type = ?", userID, typ).Order("created_at ASC").Find(&out).Error)
	return out
}
