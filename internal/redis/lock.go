package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("day lock not acquired")
)

// Locker is used by the appointment service to serialize bookings per doctor and date.
type Locker interface {
	WithDayLock(ctx context.Context, doctorID uuid.UUID, day string, fn func(ctx context.Context) error) error
}

type LockOptions struct {
	TTL   time.Duration // lifetime of the key, bounds the critical section
	Wait  time.Duration // total time spent trying to acquire
	Retry time.Duration // delay between attempts
}

type redisDayLocker struct {
	client *redis.Client
	opts   LockOptions
}

// NewRedisDayLocker creates a locker that uses a per doctor/day Redis key.
func NewRedisDayLocker(client *redis.Client, opts LockOptions) Locker {
	if opts.Retry <= 0 {
		opts.Retry = 50 * time.Millisecond
	}
	return &redisDayLocker{
		client: client,
		opts:   opts,
	}
}

func DayLockKey(doctorID uuid.UUID, day string) string {
	return fmt.Sprintf("lock:doctor:%s:%s", doctorID.String(), day)
}

func (l *redisDayLocker) WithDayLock(ctx context.Context, doctorID uuid.UUID, day string, fn func(ctx context.Context) error) error {
	key := DayLockKey(doctorID, day)
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// release with a fresh context so a cancelled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.opts.TTL)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisDayLocker) acquire(ctx context.Context, key, token string) error {
	deadline := time.Now().Add(l.opts.Wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.opts.TTL).Result()
		if err != nil {
			return fmt.Errorf("acquire day lock: %w", err)
		}
		if ok {
			return nil
		}
		if !time.Now().Add(l.opts.Retry).Before(deadline) {
			return ErrLockNotAcquired
		}

		timer := time.NewTimer(l.opts.Retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release day lock: %w", err)
	}
	return nil
}
