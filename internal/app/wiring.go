package app

import (
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/notify"
	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

// NewLocker selects the lock backend. The memory backend only serialises
// callers inside one process and is meant for single-binary runs.
func NewLocker(cfg *Config, client redis.UniversalClient) shared.Locker {
	if cfg.LockBackend == LockBackendRedis && client != nil {
		return shared.NewRedisLocker(client, cfg.LockTTL)
	}
	return shared.NewKeyedMutex()
}

// NewNotifier builds the e-mail notifier. Without SMTP settings messages
// are logged instead of sent.
func NewNotifier(cfg *Config, catalog notify.Catalog, logger *slog.Logger) (*notify.EmailNotifier, error) {
	var mailer notify.Mailer = notify.LogMailer{Logger: logger}
	if cfg.SMTPEnabled() {
		smtpMailer, err := notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			FromName: cfg.SMTPFromName,
			UseSSL:   cfg.SMTPUseSSL,
			UseTLS:   cfg.SMTPUseTLS,
		})
		if err != nil {
			return nil, err
		}
		mailer = smtpMailer
	}
	return notify.NewEmailNotifier(mailer, catalog, cfg.AlertAdminEmails, cfg.AlertSupplierEmail, logger), nil
}
