// config/config.go
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting of the duel service.
type Config struct {
	Port             string
	DatabaseURL      string
	GameServiceToken string
	AllowedOrigins   []string

	LogLevel  string
	LogFormat string

	// Economy
	MinBet             int64
	StartingCoins      int64
	PayoutPercent      int64
	StakeExposureCheck bool

	// Housekeeping
	OpenDuelTTL           time.Duration
	NotificationRetention time.Duration
	HousekeepingInterval  time.Duration

	SSEPollInterval time.Duration

	// Optional collaborators
	AuthServiceURL   string
	AuthServiceToken string
	SyncServiceURL   string
	SyncInterval     time.Duration

	R2 R2Config
}

// R2Config configures the battle archive bucket. Archiving is off when Bucket is empty.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
	ArchiveInterval time.Duration
}

// Enabled reports whether enough settings are present to talk to R2.
func (r R2Config) Enabled() bool {
	return r.Bucket != "" && r.AccountID != "" && r.AccessKeyID != ""
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "5200")
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")
	v.SetDefault("MIN_BET", 10)
	v.SetDefault("STARTING_COINS", 1000)
	v.SetDefault("PAYOUT_PERCENT", 80)
	v.SetDefault("STAKE_EXPOSURE_CHECK", true)
	v.SetDefault("OPEN_DUEL_TTL", "0s")
	v.SetDefault("NOTIFICATION_RETENTION", "720h")
	v.SetDefault("HOUSEKEEPING_INTERVAL", "1m")
	v.SetDefault("SSE_POLL_INTERVAL", "2s")
	v.SetDefault("SYNC_INTERVAL", "1m")
	v.SetDefault("R2_ARCHIVE_INTERVAL", "30s")
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// Missing .env is normal in containers.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Port:                  v.GetString("PORT"),
		DatabaseURL:           v.GetString("DATABASE_URL"),
		GameServiceToken:      v.GetString("GAME_SERVICE_TOKEN"),
		AllowedOrigins:        splitList(v.GetString("ALLOWED_ORIGINS")),
		LogLevel:              strings.ToLower(v.GetString("LOG_LEVEL")),
		LogFormat:             strings.ToLower(v.GetString("LOG_FORMAT")),
		MinBet:                v.GetInt64("MIN_BET"),
		StartingCoins:         v.GetInt64("STARTING_COINS"),
		PayoutPercent:         v.GetInt64("PAYOUT_PERCENT"),
		StakeExposureCheck:    v.GetBool("STAKE_EXPOSURE_CHECK"),
		OpenDuelTTL:           v.GetDuration("OPEN_DUEL_TTL"),
		NotificationRetention: v.GetDuration("NOTIFICATION_RETENTION"),
		HousekeepingInterval:  v.GetDuration("HOUSEKEEPING_INTERVAL"),
		SSEPollInterval:       v.GetDuration("SSE_POLL_INTERVAL"),
		AuthServiceURL:        v.GetString("AUTH_SERVICE_URL"),
		AuthServiceToken:      v.GetString("AUTH_SERVICE_TOKEN"),
		SyncServiceURL:        v.GetString("SYNC_SERVICE_URL"),
		SyncInterval:          v.GetDuration("SYNC_INTERVAL"),
		R2: R2Config{
			AccountID:       v.GetString("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     v.GetString("R2_ACCESS_KEY_ID"),
			AccessKeySecret: v.GetString("R2_ACCESS_KEY_SECRET"),
			Bucket:          v.GetString("R2_BUCKET_NAME"),
			CDNBaseURL:      v.GetString("CDN_BASE_URL"),
			ArchiveInterval: v.GetDuration("R2_ARCHIVE_INTERVAL"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL environment variable not set")
	}
	if c.GameServiceToken == "" {
		return errors.New("GAME_SERVICE_TOKEN environment variable not set")
	}
	if c.MinBet <= 0 {
		return errors.New("MIN_BET must be positive")
	}
	if c.PayoutPercent < 0 || c.PayoutPercent > 100 {
		return errors.New("PAYOUT_PERCENT must be within [0,100]")
	}
	if c.StartingCoins < 0 {
		return errors.New("STARTING_COINS must not be negative")
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
