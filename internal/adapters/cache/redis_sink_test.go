package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/ghalamif/AegisNet/internal/domain"
)

func newTestSink(t *testing.T, limit int64) (*RedisSink, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	sink, err := NewRedisSink(context.Background(), Options{Addr: mr.Addr(), KeyPrefix: "test", RecentLimit: limit})
	if err != nil {
		t.Fatalf("new redis sink: %v", err)
	}
	t.Cleanup(func() { sink.Close() })
	return sink, mr
}

func TestRedisSinkWriteBatch(t *testing.T) {
	sink, mr := newTestSink(t, 3)
	ctx := context.Background()
	at := time.Unix(1700000000, 0).UTC()

	var events []*domain.Event
	for i := 0; i < 4; i++ {
		events = append(events, domain.NewMetricsEvent(domain.Sample{Timestamp: at.Add(time.Duration(i) * time.Second)}, nil))
	}
	verdict := domain.NewVerdictEvent(domain.Verdict{AttackDetected: true, CycleID: "c-1"}, at)
	events = append(events, verdict)

	if err := sink.WriteBatch(ctx, events); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	list, err := mr.List(sink.RecentKey())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected recent list trimmed to 3, got %d", len(list))
	}

	recent, err := sink.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 || recent[0].ID != verdict.ID {
		t.Fatalf("expected verdict to be the newest entry, got %+v", recent)
	}

	latest, err := sink.LatestVerdict(ctx)
	if err != nil || latest == nil {
		t.Fatalf("latest verdict: %v %v", latest, err)
	}
	if latest.Verdict == nil || latest.Verdict.CycleID != "c-1" {
		t.Fatalf("unexpected latest verdict %+v", latest)
	}
}

func TestRedisSinkPublishes(t *testing.T) {
	sink, mr := newTestSink(t, 10)
	ctx := context.Background()

	sub := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer sub.Close()
	ps := sub.Subscribe(ctx, "test:events")
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	ev := domain.NewTuningEvent(domain.TuningState{CaptureDuration: 63 * time.Second, CycleInterval: 16 * time.Second}, time.Now())
	if err := sink.WriteBatch(ctx, []*domain.Event{ev}); err != nil {
		t.Fatalf("write batch: %v", err)
	}

	select {
	case msg := <-ps.Channel():
		if msg.Payload == "" {
			t.Fatalf("empty pubsub payload")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no pubsub message received")
	}

	if !mr.Exists(sink.TuningKey()) {
		t.Fatalf("expected latest tuning key to be set")
	}
}

func TestRedisSinkNoVerdictYet(t *testing.T) {
	sink, _ := newTestSink(t, 10)
	latest, err := sink.LatestVerdict(context.Background())
	if err != nil || latest != nil {
		t.Fatalf("expected no verdict, got %v %v", latest, err)
	}
}

func TestNewRedisSinkUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewRedisSink(ctx, Options{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatalf("expected connection error")
	}
}
