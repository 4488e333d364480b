package workers

import (
	"context"
	"fmt"
	"time"

	"duel-arena/models"
	"duel-arena/services"

	"go.uber.org/zap"
)

// Archiver stores a JSON document and returns where it landed.
type Archiver interface {
	PutJSON(ctx context.Context, key string, v any) (string, error)
}

// BattleArchive is the exported form of a finished battle.
type BattleArchive struct {
	Battle     models.BattleState `json:"battle"`
	ArchivedAt time.Time          `json:"archived_at"`
}

// BattleArchiveWorker exports finished battles to object storage. Export is
// best-effort: a failed upload is retried on the next tick and never touches
// the battle itself.
type BattleArchiveWorker struct {
	battles   *services.BattleService
	store     Archiver
	interval  time.Duration
	batchSize int
	log       *zap.Logger
}

func NewBattleArchiveWorker(battles *services.BattleService, store Archiver, interval time.Duration, logger *zap.Logger) *BattleArchiveWorker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &BattleArchiveWorker{
		battles:   battles,
		store:     store,
		interval:  interval,
		batchSize: 50,
		log:       logger.Named("battle_archive"),
	}
}

// Run polls until ctx is cancelled.
func (w *BattleArchiveWorker) Run(ctx context.Context) {
	w.log.Info("battle archive worker started", zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info("battle archive worker stopped")
			return
		case <-ticker.C:
			n, err := w.ArchiveBatch(ctx)
			if err != nil {
				w.log.Warn("archive batch failed", zap.Int("archived", n), zap.Error(err))
				continue
			}
			if n > 0 {
				w.log.Info("archived battles", zap.Int("count", n))
			}
		}
	}
}

// ArchiveBatch exports one batch of unarchived battles and returns how many
// were marked archived by this call.
func (w *BattleArchiveWorker) ArchiveBatch(ctx context.Context) (int, error) {
	pending, err := w.battles.PendingArchive(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}

	archived := 0
	for i := range pending {
		b := pending[i]
		key := archiveKey(&b)

		if _, err := w.store.PutJSON(ctx, key, BattleArchive{Battle: b, ArchivedAt: time.Now().UTC()}); err != nil {
			return archived, fmt.Errorf("upload battle %s: %w", b.ID, err)
		}

		marked, err := w.battles.MarkArchived(ctx, b.ID, key)
		if err != nil {
			return archived, err
		}
		if !marked {
			w.log.Debug("battle already archived", zap.String("battle_id", b.ID))
			continue
		}
		archived++
	}
	return archived, nil
}

func archiveKey(b *models.BattleState) string {
	day := b.CreatedAt
	if b.FinishedAt != nil {
		day = *b.FinishedAt
	}
	return fmt.Sprintf("battles/%s/%s.json", day.UTC().Format("2006/01/02"), b.ID)
}
