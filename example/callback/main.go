package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/AegisNet/pkg/aegisnet"
)

func main() {
	flow, err := aegisnet.Conf("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	onEvent := func(ev *aegisnet.Event) {
		switch ev.Type {
		case aegisnet.EventMetrics:
			if ev.Aggregates == nil {
				return
			}
			fmt.Printf("%s avg_latency=%.1fms avg_loss=%.1f%%\n",
				ev.Timestamp.Format(time.RFC3339),
				ev.Aggregates.AvgLatency,
				ev.Aggregates.AvgLoss,
			)
		case aegisnet.EventAttackDetection:
			if ev.Verdict.AttackDetected && ev.Verdict.Details != nil {
				fmt.Printf("%s ATTACK %s\n", ev.Timestamp.Format(time.RFC3339), *ev.Verdict.Details)
			}
		case aegisnet.EventTuning:
			fmt.Printf("%s next capture=%s interval=%s\n",
				ev.Timestamp.Format(time.RFC3339),
				ev.Tuning.CaptureDuration,
				ev.Tuning.CycleInterval,
			)
		}
	}

	if err := flow.Run(ctx, aegisnet.StreamOutEvents(onEvent)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
