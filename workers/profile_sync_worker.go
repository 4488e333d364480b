// workers/profile_sync_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"duel-arena/services"
	"duel-arena/utils"

	"go.uber.org/zap"
)

// MirroredProfile matches one user in the sync service response.
type MirroredProfile struct {
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	FirstName  *string   `json:"first_name,omitempty"`
	LastName   *string   `json:"last_name,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DisplayName joins first and last name when present.
func (m MirroredProfile) DisplayName() string {
	var parts []string
	for _, p := range []*string{m.FirstName, m.LastName} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.TrimSpace(*p))
		}
	}
	return strings.Join(parts, " ")
}

// GetProfileChangesResponse is the top-level structure of the sync service response.
type GetProfileChangesResponse struct {
	Users []MirroredProfile `json:"users"`
}

// ProfileSyncWorker mirrors usernames and display names from the profile
// sync service. Balances are never touched.
type ProfileSyncWorker struct {
	profiles     *services.ProfileService
	interval     time.Duration
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
	log          *zap.Logger
	since        time.Time
}

func NewProfileSyncWorker(profiles *services.ProfileService, syncServiceBaseURL, endpointPath, serviceToken string, interval time.Duration, logger *zap.Logger) *ProfileSyncWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &ProfileSyncWorker{
		profiles:     profiles,
		interval:     interval,
		baseURL:      syncServiceBaseURL,
		endpointPath: endpointPath,
		serviceToken: serviceToken,
		httpClient:   utils.HTTPClient,
		log:          logger.Named("profile_sync"),
	}
}

// Run backfills once, then syncs incrementally until ctx is cancelled.
func (w *ProfileSyncWorker) Run(ctx context.Context) {
	w.log.Info("profile sync worker started", zap.String("base_url", w.baseURL))

	if _, err := w.SyncBatch(ctx); err != nil {
		w.log.Warn("initial profile sync failed", zap.Error(err))
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncBatch(ctx); err != nil {
				w.log.Warn("profile sync batch failed", zap.Error(err))
			}
		case <-ctx.Done():
			w.log.Info("profile sync worker stopped")
			return
		}
	}
}

// SyncBatch pulls changes since the last successful batch and upserts them.
// The cursor only advances on success, so a failed window is retried.
func (w *ProfileSyncWorker) SyncBatch(ctx context.Context) (int64, error) {
	users, err := w.fetch(ctx, w.since)
	if err != nil {
		return 0, err
	}
	if len(users) == 0 {
		return 0, nil
	}

	ids := make([]services.ProfileIdentity, 0, len(users))
	latest := w.since
	for _, u := range users {
		if u.ExternalID == "" {
			continue
		}
		ids = append(ids, services.ProfileIdentity{
			ID:          u.ExternalID,
			Username:    u.Username,
			DisplayName: u.DisplayName(),
		})
		if u.UpdatedAt.After(latest) {
			latest = u.UpdatedAt
		}
	}

	n, err := w.profiles.UpsertIdentities(ctx, ids)
	if err != nil {
		return 0, err
	}
	w.since = latest
	w.log.Info("profiles synced",
		zap.Int("received", len(users)),
		zap.Int64("upserted", n),
		zap.Time("cursor", latest),
	)
	return n, nil
}

func (w *ProfileSyncWorker) fetch(ctx context.Context, since time.Time) ([]MirroredProfile, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpointURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned status %d: %s", resp.StatusCode, string(body))
	}

	var response GetProfileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return response.Users, nil
}
