package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/AegisNet"
)

func main() {
	cfg, err := aegisnet.LoadConfig("../../data/config.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg.History.Policy.MaxBatchSize = 16

	flow, err := aegisnet.ConfFromConfig(cfg)
	if err != nil {
		log.Fatalf("build flow: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, batches, closeBatches := aegisnet.NewChannelSink("forwarder", 32)
	defer closeBatches()

	go forwardWorker("ingest", batches)

	if err := flow.Run(ctx, aegisnet.StreamOutSink(sink)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func forwardWorker(name string, batches <-chan []aegisnet.Event) {
	for batch := range batches {
		attacks := 0
		for _, ev := range batch {
			if ev.Verdict != nil && ev.Verdict.AttackDetected {
				attacks++
			}
		}
		fmt.Printf("[%s] forwarding %d events (%d attack verdicts) at %s\n", name, len(batch), attacks, time.Now().Format(time.RFC3339))
	}
}
