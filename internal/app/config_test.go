package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ALERT_ADMIN_EMAILS", "ops@example.com,lead@example.com")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, LockBackendRedis, cfg.LockBackend)
	require.Equal(t, 30*time.Second, cfg.LockTTL)
	require.Equal(t, 10, cfg.LowStockThreshold)
	require.Equal(t, 0, cfg.OutOfStockThreshold)
	require.Equal(t, 5, cfg.AutoReorderThreshold)
	require.True(t, cfg.NotifyAdminsOnLowStock)
	require.False(t, cfg.EnableAutoReorder)
	require.Equal(t, 50, cfg.ReorderQuantity)
	require.Equal(t, []string{"ops@example.com", "lead@example.com"}, cfg.AlertAdminEmails)
	require.False(t, cfg.SMTPEnabled())
}

func TestLoadConfigRejectsInvertedThresholds(t *testing.T) {
	t.Setenv("INVENTORY_LOW_STOCK_THRESHOLD", "3")
	t.Setenv("INVENTORY_OUT_OF_STOCK_THRESHOLD", "5")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoadConfigNormalisesLockBackend(t *testing.T) {
	t.Setenv("LOCK_BACKEND", " Memory ")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, LockBackendMemory, cfg.LockBackend)

	t.Setenv("LOCK_BACKEND", "etcd")
	_, err = LoadConfig()
	require.Error(t, err)
}

func TestAlertSettingsMirrorsConfig(t *testing.T) {
	t.Setenv("INVENTORY_ENABLE_AUTO_REORDER", "true")
	t.Setenv("INVENTORY_NOTIFY_SUPPLIER", "true")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	settings := cfg.AlertSettings()
	require.Equal(t, 10, settings.LowStockThreshold)
	require.Equal(t, 5, settings.AutoReorderThreshold)
	require.True(t, settings.EnableAutoReorder)
	require.True(t, settings.NotifySupplierOnLowStock)
	require.True(t, settings.NotifyAdminsOnLowStock)
}

func TestConnectionOptions(t *testing.T) {
	t.Setenv("REDIS_ADDR", "redis:6380")
	t.Setenv("REDIS_PASSWORD", "pw")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("PG_MAX_CONNS", "12")
	cfg, err := LoadConfig()
	require.NoError(t, err)

	pg := cfg.PostgresOptions("odyssey-worker")
	require.Equal(t, cfg.PGDSN, pg.DSN)
	require.EqualValues(t, 12, pg.MaxConns)
	require.Equal(t, "odyssey-worker", pg.ApplicationName)
	require.Equal(t, 15*time.Second, pg.StatementTimeout)

	rc := cfg.RedisOptions()
	require.Equal(t, "redis:6380", rc.Addr)
	require.Equal(t, 3, rc.DB)

	q := cfg.QueueRedisOpt()
	require.Equal(t, "redis:6380", q.Addr)
	require.Equal(t, "pw", q.Password)
	require.Equal(t, 3, q.DB)
}
