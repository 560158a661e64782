package aegisnet

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/ghalamif/AegisNet/internal/adapters/cache"
	"github.com/ghalamif/AegisNet/internal/adapters/fanout"
	"github.com/ghalamif/AegisNet/internal/adapters/store"
	"github.com/ghalamif/AegisNet/internal/app/pipeline"
	"github.com/ghalamif/AegisNet/internal/ports"
)

const connectRetries = 5

type historyDeps struct {
	sinks  []Sink // caller supplied
	store  *store.SQLStore
	redis  *cache.RedisSink
	wal    ports.WAL
	queue  ports.EventQueue
	active []Sink
}

func (h *historyDeps) close() error {
	var errs []error
	if h.store != nil {
		errs = append(errs, h.store.Close())
	}
	if h.redis != nil {
		errs = append(errs, h.redis.Close())
	}
	if h.wal != nil {
		errs = append(errs, h.wal.Close())
	}
	return errors.Join(errs...)
}

// connectHistory opens the SQL store and Redis with bounded retries. A
// backend that stays unreachable is logged and left out.
func (r *Runtime) connectHistory(ctx context.Context) {
	if !r.historyEnabled() {
		return
	}
	active := append([]Sink(nil), r.history.sinks...)

	if h := r.cfg.History; h.Enabled {
		err := r.retry(ctx, "sql", func() error {
			s, err := store.Open(ctx, h.Driver, h.DSN, h.Table)
			if err != nil {
				return err
			}
			if err := s.EnsureSchema(ctx); err != nil {
				s.Close()
				return err
			}
			r.history.store = s
			return nil
		})
		if err != nil {
			r.obs.LogError("history_store_unavailable", err, ports.Field{Key: "driver", Value: h.Driver})
		} else {
			active = append(active, r.history.store)
		}
	}

	if rc := r.cfg.Redis; rc.Enabled() {
		err := r.retry(ctx, "redis", func() error {
			s, err := cache.NewRedisSink(ctx, cache.Options{
				Addr:        rc.Addr,
				Password:    rc.Password,
				DB:          rc.DB,
				KeyPrefix:   rc.KeyPrefix,
				Channel:     rc.Channel,
				RecentLimit: rc.RecentLimit,
			})
			if err != nil {
				return err
			}
			r.history.redis = s
			return nil
		})
		if err != nil {
			r.obs.LogError("redis_unavailable", err, ports.Field{Key: "addr", Value: rc.Addr})
		} else {
			active = append(active, r.history.redis)
		}
	}

	r.history.active = active
}

func (r *Runtime) retry(ctx context.Context, backend string, op func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, connectRetries), ctx)
	return backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		r.obs.LogWarn("history_connect_retry",
			ports.Field{Key: "backend", Value: backend},
			ports.Field{Key: "error", Value: err.Error()},
			ports.Field{Key: "wait", Value: wait.String()},
		)
	})
}

// runHistory starts the ingest loop, then replays uncommitted WAL entries and
// journals every live event. Replay runs beside ingest so a block policy on a
// queue smaller than the backlog drains instead of stalling.
func (r *Runtime) runHistory(ctx context.Context, g *errgroup.Group) {
	h := r.history
	pol := r.cfg.History.Policy

	g.Go(func() error {
		return pipeline.RunHistoryIngest(ctx, h.wal, h.queue, h.active, pol, r.obs)
	})
	g.Go(func() error {
		o, err := r.hub.Subscribe(ctx, pol.MaxQueueLen)
		if err != nil {
			if ctx.Err() != nil || fanout.IsStopped(err) {
				return nil
			}
			return err
		}
		defer r.hub.Unsubscribe(o)

		if _, err := pipeline.ReplayWAL(ctx, h.wal, h.queue, pol, r.obs); err != nil && ctx.Err() == nil {
			r.obs.LogError("wal_replay_failed", err)
		}
		return pipeline.RunHistoryEdge(ctx, o.C, h.wal, h.queue, pol, r.obs)
	})
}
