// Package app wires the enrollment services from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aura-events/enrollment/config"
	"github.com/aura-events/enrollment/internal/attendance"
	"github.com/aura-events/enrollment/internal/events"
	"github.com/aura-events/enrollment/internal/members"
	"github.com/aura-events/enrollment/internal/notifications"
	"github.com/aura-events/enrollment/internal/occurrence"
	"github.com/aura-events/enrollment/internal/registrations"
	"github.com/aura-events/enrollment/pkg/database"
	"github.com/aura-events/enrollment/pkg/lock"
	"github.com/aura-events/enrollment/pkg/queue"
	"github.com/aura-events/enrollment/pkg/redis"
)

// App holds the wired services and the connections they share.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Registry *prometheus.Registry

	Pool  *pgxpool.Pool
	Redis *redis.Client

	Codec         *occurrence.Codec
	Locker        lock.Locker
	Queue         *queue.Queue
	Attendance    *attendance.Store
	Registrations *registrations.Service
	Notifications *notifications.Processor
	Logs          *notifications.Repository
}

// New connects to PostgreSQL and Redis, runs migrations and builds the services.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	var rdb *redis.Client
	if needsRedis(cfg) {
		rdb, err = redis.NewClient(ctx, cfg.Redis, logger)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("redis: %w", err)
		}
	}

	a := &App{Config: cfg, Logger: logger, Registry: prometheus.NewRegistry(), Pool: pool, Redis: rdb}
	var client *goredis.Client
	if rdb != nil {
		client = rdb.Client
	}
	a.wire(client)
	return a, nil
}

func needsRedis(cfg *config.Config) bool {
	return cfg.Enrollment.LockBackend == config.LockBackendRedis || cfg.Notifications.Enabled
}

// newLocker picks the admission lock backend.
func newLocker(cfg config.EnrollmentConfig, client *goredis.Client, logger *zap.Logger) lock.Locker {
	if cfg.LockBackend == config.LockBackendRedis && client != nil {
		return lock.NewRedis(client, cfg.LockTTL, logger)
	}
	if cfg.LockBackend == config.LockBackendRedis {
		logger.Warn("redis lock backend requested without a redis client, using in-process locks")
	}
	return lock.NewLocal()
}

func (a *App) wire(client *goredis.Client) {
	cfg := a.Config
	a.Codec = occurrence.NewCodec(cfg.Enrollment.Location)
	a.Locker = newLocker(cfg.Enrollment, client, a.Logger)

	var enq notifications.Enqueuer
	if client != nil {
		a.Queue = queue.NewQueue(client, a.Logger)
		enq = a.Queue
	}
	sink := notifications.NewSink(enq, cfg.Notifications.Enabled, a.Logger)

	regRepo := registrations.NewRepository(a.Pool)
	a.Attendance = attendance.NewStore(regRepo, a.Codec, a.Locker, attendance.NewMetrics(a.Registry), a.Logger)
	a.Registrations = registrations.NewService(registrations.Deps{
		Store:       regRepo,
		Events:      events.NewRepository(a.Pool),
		Members:     members.NewRepository(a.Pool),
		Expander:    events.NewSingleOccurrence(a.Codec.Now),
		Notifier:    sink,
		Assignments: a.Attendance,
		Codec:       a.Codec,
		Locker:      a.Locker,
		Metrics:     registrations.NewMetrics(a.Registry),
	}, registrations.Options{
		LookaheadCount: cfg.Enrollment.LookaheadCount,
		SummaryMax:     cfg.Enrollment.SummaryMax,
	}, a.Logger)

	a.Logs = notifications.NewRepository(a.Pool)
	if a.Queue != nil {
		a.Notifications = notifications.NewProcessor(a.Queue, notifications.NewLogDeliverer(a.Logger), a.Logs, a.Logger)
	}
}

// Close releases the connections held by the app.
func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
