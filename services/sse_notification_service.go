package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"duel-arena/models"

	"go.uber.org/zap"
)

// Stream writes the user's new notifications to w as server-sent events
// until ctx ends or the client goes away. The database is polled every
// interval; hub deliveries only wake the stream up early. Events are
// de-duplicated by id, so a notification seen on both paths is sent once.
func (s *NotificationService) Stream(ctx context.Context, w *bufio.Writer, userID string, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}

	var live <-chan *models.Notification
	if s.Hub != nil {
		ch, cancel := s.Hub.Subscribe(userID)
		defer cancel()
		live = ch
	}

	cursor := time.Now()
	if latest, err := s.Latest(ctx, userID); err != nil {
		s.log.Warn("sse init failed", zap.String("user_id", userID), zap.Error(err))
	} else if latest != nil {
		cursor = latest.CreatedAt
	}
	// Rows at the cursor instant were already visible before the stream opened.
	seen := map[string]time.Time{}
	if boundary, err := s.Since(ctx, userID, cursor); err == nil {
		for _, n := range boundary {
			seen[n.ID] = n.CreatedAt
		}
	}

	if _, err := w.WriteString(":\n\n"); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case n, ok := <-live:
			if !ok {
				live = nil
				continue
			}
			if _, dup := seen[n.ID]; dup {
				continue
			}
			seen[n.ID] = n.CreatedAt
			if err := writeNotificationEvent(w, n); err != nil {
				return err
			}
			if err := w.Flush(); err != nil {
				return err
			}

		case <-ticker.C:
			rows, err := s.Since(ctx, userID, cursor)
			if err != nil {
				s.log.Warn("sse poll failed", zap.String("user_id", userID), zap.Error(err))
				continue
			}
			sent := 0
			for i := range rows {
				n := &rows[i]
				if n.CreatedAt.After(cursor) {
					cursor = n.CreatedAt
				}
				if _, dup := seen[n.ID]; dup {
					continue
				}
				seen[n.ID] = n.CreatedAt
				if err := writeNotificationEvent(w, n); err != nil {
					return err
				}
				sent++
			}
			for id, at := range seen {
				if at.Before(cursor) {
					delete(seen, id)
				}
			}
			if sent == 0 {
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return err
				}
			}
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
}

func writeNotificationEvent(w *bufio.Writer, n *models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\nid: %s\ndata: %s\n\n", n.Type, n.ID, payload)
	return err
}
