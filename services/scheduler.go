// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// HousekeepingConfig controls the periodic jobs. A zero TTL or retention
// disables the matching job.
type HousekeepingConfig struct {
	Interval              time.Duration
	OpenDuelTTL           time.Duration
	NotificationRetention time.Duration
}

// Housekeeping runs maintenance outside the duel state machine. It never
// resolves an accepted or in-progress duel: stalled battles are only reported.
type Housekeeping struct {
	Duels         *DuelService
	Battles       *BattleService
	Notifications *NotificationService
	cfg           HousekeepingConfig
	log           *zap.Logger
	now           func() time.Time
}

func NewHousekeeping(duels *DuelService, battles *BattleService, notifications *NotificationService, cfg HousekeepingConfig, logger *zap.Logger) *Housekeeping {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Housekeeping{
		Duels:         duels,
		Battles:       battles,
		Notifications: notifications,
		cfg:           cfg,
		log:           logger.Named("housekeeping"),
		now:           time.Now,
	}
}

// Start registers the jobs on a new gocron scheduler and starts it.
// The caller owns Shutdown.
func (h *Housekeeping) Start(ctx context.Context) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	jobs := []struct {
		name string
		run  func(context.Context) error
	}{
		{"expire-open-duels", h.ExpireOpenDuels},
		{"prune-notifications", h.PruneNotifications},
		{"report-stalled-battles", h.ReportStalledBattles},
	}
	for _, j := range jobs {
		_, err := sched.NewJob(
			gocron.DurationJob(h.cfg.Interval),
			gocron.NewTask(func() {
				if err := j.run(ctx); err != nil {
					h.log.Error("job failed", zap.String("job", j.name), zap.Error(err))
				}
			}),
			gocron.WithName(j.name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("register %s: %w", j.name, err)
		}
	}

	sched.Start()
	h.log.Info("housekeeping started", zap.Duration("interval", h.cfg.Interval))
	return sched, nil
}

// ExpireOpenDuels cancels open duels older than the TTL.
func (h *Housekeeping) ExpireOpenDuels(ctx context.Context) error {
	if h.cfg.OpenDuelTTL <= 0 {
		return nil
	}
	n, err := h.Duels.ExpireStaleOpen(ctx, h.now().Add(-h.cfg.OpenDuelTTL))
	if err != nil {
		return err
	}
	if n > 0 {
		h.log.Info("expired open duels", zap.Int("count", n))
	}
	return nil
}

// PruneNotifications drops read notifications past retention.
func (h *Housekeeping) PruneNotifications(ctx context.Context) error {
	if h.cfg.NotificationRetention <= 0 {
		return nil
	}
	n, err := h.Notifications.PruneRead(ctx, h.now().Add(-h.cfg.NotificationRetention))
	if err != nil {
		return fmt.Errorf("prune notifications: %w", err)
	}
	if n > 0 {
		h.log.Info("pruned notifications", zap.Int64("count", n))
	}
	return nil
}

// ReportStalledBattles logs active battles idle for longer than the open duel
// TTL. There is no forfeit policy.
func (h *Housekeeping) ReportStalledBattles(ctx context.Context) error {
	if h.cfg.OpenDuelTTL <= 0 {
		return nil
	}
	stalled, err := h.Battles.ListStalled(ctx, h.now().Add(-h.cfg.OpenDuelTTL), 100)
	if err != nil {
		return err
	}
	for _, b := range stalled {
		turn := ""
		if b.CurrentTurn != nil {
			turn = *b.CurrentTurn
		}
		h.log.Warn("battle stalled",
			zap.String("battle_id", b.ID),
			zap.String("duel_id", b.DuelID),
			zap.String("waiting_on", turn),
			zap.Time("last_move_at", b.UpdatedAt),
		)
	}
	return nil
}
