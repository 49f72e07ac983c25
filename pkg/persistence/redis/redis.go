// Package redis provides Redis-backed persistence. Records are JSON values
// in one hash per record type, which gives per-record atomicity without any
// schema management.
package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/stepflow/stepflow/pkg/persistence"
)

const (
	compositionsKey = "stepflow:compositions"
	executionsKey   = "stepflow:executions"
	schedulesKey    = "stepflow:schedules"
)

// Persistence implements persistence.Persistence on Redis.
type Persistence struct {
	client          *goredis.Client
	compositionRepo *CompositionRepository
	executionRepo   *ExecutionRepository
	scheduleRepo    *ScheduleRepository
}

// NewPersistence connects to Redis using a redis:// URL.
func NewPersistence(ctx context.Context, redisURL string) (*Persistence, error) {
	options, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := goredis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &Persistence{
		client:          client,
		compositionRepo: &CompositionRepository{client: client},
		executionRepo:   &ExecutionRepository{client: client},
		scheduleRepo:    &ScheduleRepository{client: client},
	}, nil
}

// Close releases the Redis connection.
func (rp *Persistence) Close(_ context.Context) error {
	if err := rp.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}

	return nil
}

// HealthCheck pings the server.
func (rp *Persistence) HealthCheck(ctx context.Context) error {
	if err := rp.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}

	return nil
}

func (rp *Persistence) CompositionRepository() persistence.CompositionRepository {
	return rp.compositionRepo
}

func (rp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return rp.executionRepo
}

func (rp *Persistence) ScheduleRepository() persistence.ScheduleRepository {
	return rp.scheduleRepo
}
