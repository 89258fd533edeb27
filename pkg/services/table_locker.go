package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-crm/pkg/apperrors"
)

// DefaultLockTTL bounds how long a crashed instance can hold a table.
const DefaultLockTTL = 30 * time.Minute

// TableLocker gives one batch run at a time exclusive use of a table.
type TableLocker interface {
	// Acquire returns apperrors.ErrConflict when the table is already locked.
	Acquire(ctx context.Context, tableID uuid.UUID) (release func(), err error)
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisTableLocker struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisTableLocker creates a locker shared by every instance using rdb.
func NewRedisTableLocker(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) TableLocker {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &redisTableLocker{rdb: rdb, ttl: ttl, logger: logger.Named("table-locker")}
}

var _ TableLocker = (*redisTableLocker)(nil)

func tableLockKey(tableID uuid.UUID) string {
	return "crm:batch-lock:" + tableID.String()
}

func (l *redisTableLocker) Acquire(ctx context.Context, tableID uuid.UUID) (func(), error) {
	key := tableLockKey(tableID)
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire table lock: %w", err)
	}
	if !ok {
		return nil, apperrors.ErrConflict
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(ctx, l.rdb, []string{key}, token).Err(); err != nil {
			l.logger.Warn("Failed to release table lock",
				zap.String("table_id", tableID.String()),
				zap.Error(err))
		}
	}
	return release, nil
}

type memoryTableLocker struct {
	mu     sync.Mutex
	locked map[uuid.UUID]bool
}

// NewMemoryTableLocker creates a process-local locker.
func NewMemoryTableLocker() TableLocker {
	return &memoryTableLocker{locked: make(map[uuid.UUID]bool)}
}

var _ TableLocker = (*memoryTableLocker)(nil)

func (l *memoryTableLocker) Acquire(ctx context.Context, tableID uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.locked[tableID] {
		return nil, apperrors.ErrConflict
	}
	l.locked[tableID] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.locked, tableID)
			l.mu.Unlock()
		})
	}, nil
}
