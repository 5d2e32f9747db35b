package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/crm-voice-sync/internal/archive"
	appconfig "github.com/wolfman30/crm-voice-sync/internal/config"
	"github.com/wolfman30/crm-voice-sync/internal/notify"
	"github.com/wolfman30/crm-voice-sync/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildArchive returns the raw webhook archive, or nil without a bucket.
func BuildArchive(s3Client archive.S3API, cfg *appconfig.Config, logger *logging.Logger) *archive.Store {
	if cfg == nil || s3Client == nil || strings.TrimSpace(cfg.CallArchiveBucket) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	logger.Info("call webhook archive enabled", "bucket", cfg.CallArchiveBucket)
	return archive.NewStore(s3Client, cfg.CallArchiveBucket, logger.Logger)
}

// BuildEmailSender picks SendGrid when an API key is present and falls back to
// the logging stub.
func BuildEmailSender(cfg *appconfig.Config, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg != nil && strings.TrimSpace(cfg.SendGridAPIKey) != "" {
		if sender := notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger); sender != nil {
			return sender
		}
	}
	logger.Info("sendgrid not configured, follow-up emails will be logged only")
	return notify.NewStubEmailSender(logger)
}

// BuildFollowUpNotifier wires follow-up email with Redis dedupe when available.
func BuildFollowUpNotifier(cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) *notify.FollowUpNotifier {
	ttl := notify.DefaultDedupeTTL
	if cfg != nil && cfg.FollowUpDedupeTTL > 0 {
		ttl = cfg.FollowUpDedupeTTL
	}
	return notify.NewFollowUpNotifier(BuildEmailSender(cfg, logger), redisClient, ttl, logger)
}
