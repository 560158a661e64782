package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ghalamif/AegisNet/internal/domain"
	"github.com/ghalamif/AegisNet/internal/ports"
)

const (
	recentSuffix  = ":events:recent"
	verdictSuffix = ":verdict:latest"
	tuningSuffix  = ":tuning:latest"
)

type Options struct {
	Addr        string
	Password    string
	DB          int
	KeyPrefix   string
	Channel     string
	RecentLimit int64
}

// RedisSink mirrors telemetry into Redis: a capped list of recent events, the
// latest verdict and tuning state, and a pub/sub channel for out-of-process
// observers.
type RedisSink struct {
	client *redis.Client
	opts   Options
}

func NewRedisSink(ctx context.Context, opts Options) (*RedisSink, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     10,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisSinkWithClient(client, opts), nil
}

func NewRedisSinkWithClient(client *redis.Client, opts Options) *RedisSink {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "aegisnet"
	}
	if opts.Channel == "" {
		opts.Channel = opts.KeyPrefix + ":events"
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = 1000
	}
	return &RedisSink{client: client, opts: opts}
}

func (r *RedisSink) Name() string { return "redis" }

func (r *RedisSink) RecentKey() string  { return r.opts.KeyPrefix + recentSuffix }
func (r *RedisSink) VerdictKey() string { return r.opts.KeyPrefix + verdictSuffix }
func (r *RedisSink) TuningKey() string  { return r.opts.KeyPrefix + tuningSuffix }

func (r *RedisSink) WriteBatch(ctx context.Context, events []*domain.Event) error {
	if len(events) == 0 {
		return nil
	}

	pipe := r.client.Pipeline()
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("failed to marshal event %s: %w", ev.ID, err)
		}
		pipe.LPush(ctx, r.RecentKey(), data)
		switch ev.Type {
		case domain.EventAttackDetection:
			pipe.Set(ctx, r.VerdictKey(), data, 0)
		case domain.EventTuning:
			pipe.Set(ctx, r.TuningKey(), data, 0)
		}
		pipe.Publish(ctx, r.opts.Channel, data)
	}
	pipe.LTrim(ctx, r.RecentKey(), 0, r.opts.RecentLimit-1)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to mirror events: %w", err)
	}
	return nil
}

// Recent returns up to count events, newest first.
func (r *RedisSink) Recent(ctx context.Context, count int64) ([]domain.Event, error) {
	data, err := r.client.LRange(ctx, r.RecentKey(), 0, count-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get recent events: %w", err)
	}

	out := make([]domain.Event, 0, len(data))
	for _, d := range data {
		var ev domain.Event
		if err := json.Unmarshal([]byte(d), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// LatestVerdict returns the last published verdict event, or nil when none exists.
func (r *RedisSink) LatestVerdict(ctx context.Context) (*domain.Event, error) {
	data, err := r.client.Get(ctx, r.VerdictKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ev domain.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *RedisSink) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisSink) Close() error {
	return r.client.Close()
}

var _ ports.Sink = (*RedisSink)(nil)
