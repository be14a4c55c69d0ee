package app

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aura-events/enrollment/config"
	"github.com/aura-events/enrollment/pkg/lock"
)

func TestNewLocker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := config.EnrollmentConfig{LockBackend: config.LockBackendRedis, LockTTL: time.Second}
	_, ok := newLocker(cfg, client, zap.NewNop()).(*lock.Redis)
	assert.True(t, ok)

	_, ok = newLocker(cfg, nil, zap.NewNop()).(*lock.Local)
	assert.True(t, ok)

	cfg.LockBackend = config.LockBackendLocal
	_, ok = newLocker(cfg, client, zap.NewNop()).(*lock.Local)
	assert.True(t, ok)
}

func TestWireWithoutRedis(t *testing.T) {
	cfg := &config.Config{Enrollment: config.EnrollmentConfig{Location: time.UTC, LockBackend: config.LockBackendLocal}}
	assert.False(t, needsRedis(cfg))

	a := &App{Config: cfg, Logger: zap.NewNop(), Registry: prometheus.NewRegistry()}
	a.wire(nil)
	require.NotNil(t, a.Registrations)
	require.NotNil(t, a.Attendance)
	assert.Nil(t, a.Queue)
	assert.Nil(t, a.Notifications)
	assert.Equal(t, time.UTC, a.Codec.Location())
	require.NoError(t, a.Locker.WithLock(context.Background(), "event:x", func(context.Context) error { return nil }))
}

func TestWireWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		Enrollment:    config.EnrollmentConfig{Location: time.UTC, LockBackend: config.LockBackendRedis, LockTTL: time.Second},
		Notifications: config.NotificationsConfig{Enabled: true},
	}
	assert.True(t, needsRedis(cfg))

	a := &App{Config: cfg, Logger: zap.NewNop(), Registry: prometheus.NewRegistry()}
	a.wire(client)
	assert.NotNil(t, a.Queue)
	assert.NotNil(t, a.Notifications)
	_, ok := a.Locker.(*lock.Redis)
	assert.True(t, ok)
}
