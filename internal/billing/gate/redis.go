package gate

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/antaeus/internal/billing/domain"
	"go.uber.org/zap"
)

type RedisConfig struct {
	Key           string
	TTL           time.Duration
	RetryInterval time.Duration
}

func (c RedisConfig) withDefaults() RedisConfig {
	if c.Key == "" {
		c.Key = "antaeus:billing:pass"
	}
	if c.TTL <= 0 {
		c.TTL = 30 * time.Minute
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 500 * time.Millisecond
	}
	return c
}

// RedisGate takes the local gate first and then a Redis lock shared by every
// process billing the same database. The lock is extended while held.
type RedisGate struct {
	local  *LocalGate
	locker *Locker
	cfg    RedisConfig
	log    *zap.Logger
}

func NewRedis(local *LocalGate, locker *Locker, cfg RedisConfig, log *zap.Logger) *RedisGate {
	if local == nil {
		local = NewLocal()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisGate{
		local:  local,
		locker: locker,
		cfg:    cfg.withDefaults(),
		log:    log.Named("billing.gate").With(zap.String("lock_key", cfg.withDefaults().Key)),
	}
}

func (g *RedisGate) Acquire(ctx context.Context) (func(), error) {
	releaseLocal, err := g.local.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	ticker := time.NewTicker(g.cfg.RetryInterval)
	defer ticker.Stop()
	for {
		token, ok, err := g.locker.TryLock(ctx, g.cfg.Key, g.cfg.TTL)
		if err != nil {
			releaseLocal()
			return nil, err
		}
		if ok {
			return g.hold(token, releaseLocal), nil
		}
		select {
		case <-ctx.Done():
			releaseLocal()
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (g *RedisGate) TryAcquire(ctx context.Context) (func(), error) {
	releaseLocal, err := g.local.TryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	token, ok, err := g.locker.TryLock(ctx, g.cfg.Key, g.cfg.TTL)
	if err != nil {
		releaseLocal()
		return nil, err
	}
	if !ok {
		releaseLocal()
		return nil, domain.ErrLockHeld
	}
	return g.hold(token, releaseLocal), nil
}

// hold keeps the lock alive until the returned release runs.
func (g *RedisGate) hold(token string, releaseLocal func()) func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(g.cfg.TTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), g.cfg.TTL/3)
				err := g.locker.Extend(ctx, g.cfg.Key, token, g.cfg.TTL)
				cancel()
				if err != nil {
					g.log.Warn("billing.lock.extend_failed", zap.Error(err))
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { g.release(token, stop, done, releaseLocal) })
	}
}

func (g *RedisGate) release(token string, stop, done chan struct{}, releaseLocal func()) {
	close(stop)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := g.locker.Release(ctx, g.cfg.Key, token); err != nil {
		g.log.Warn("billing.lock.release_failed", zap.Error(err))
	}
	releaseLocal()
}
