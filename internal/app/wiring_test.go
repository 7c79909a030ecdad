package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-fulfillment/internal/shared"
)

type namedCatalog struct{}

func (namedCatalog) ProductName(context.Context, string) (string, error) { return "Widget", nil }

func TestNewLockerSelectsBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &Config{LockBackend: LockBackendRedis, LockTTL: 0}
	require.IsType(t, &shared.RedisLocker{}, NewLocker(cfg, client))

	cfg.LockBackend = LockBackendMemory
	require.IsType(t, &shared.KeyedMutex{}, NewLocker(cfg, client))

	cfg.LockBackend = LockBackendRedis
	require.IsType(t, &shared.KeyedMutex{}, NewLocker(cfg, nil))
}

func TestNewNotifierFallsBackToLogMailer(t *testing.T) {
	cfg := &Config{AlertAdminEmails: []string{"ops@example.com"}}
	notifier, err := NewNotifier(cfg, namedCatalog{}, nil)
	require.NoError(t, err)
	require.NotNil(t, notifier)
}

func TestNewNotifierRejectsIncompleteSMTP(t *testing.T) {
	cfg := &Config{SMTPHost: "smtp.example.com", SMTPPort: 25}
	_, err := NewNotifier(cfg, namedCatalog{}, nil)
	require.Error(t, err)
}
