package lock

import (
	"context"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/crateflow/internal/config"
	obsmetrics "github.com/smallbiznis/crateflow/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("lock",
	fx.Provide(New),
)

type Params struct {
	fx.In

	Lc      fx.Lifecycle
	Cfg     config.Config
	Policy  *config.PolicyHolder
	Log     *zap.Logger
	Metrics *obsmetrics.BillingMetrics `optional:"true"`
}

// New picks the lock backend from the billing policy at startup.
func New(p Params) Locker {
	locking := p.Policy.Locking()

	if locking.Backend != config.LockBackendRedis {
		p.Log.Info("using in-process locks")
		return Instrument(NewMemoryLocker(locking.WaitTimeout), p.Metrics)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     p.Cfg.Redis.Addr,
		Password: p.Cfg.Redis.Password,
		DB:       p.Cfg.Redis.DB,
	})
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	p.Log.Info("using redis locks", zap.String("addr", p.Cfg.Redis.Addr))
	return Instrument(NewRedisLocker(client, locking.TTL, locking.WaitTimeout, p.Log), p.Metrics)
}
