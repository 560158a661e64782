package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/ghalamif/AegisNet"
	"github.com/ghalamif/AegisNet/internal/adapters/snapshot"
	"github.com/ghalamif/AegisNet/internal/adapters/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "history":
		err = historyCommand(os.Args[2:])
	case "window":
		err = windowCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("aegis-net %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	flow, err := aegisnet.Conf(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := aegisnet.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	fmt.Printf("  gate: avg_latency>%vms max_latency>%vms avg_loss>%v%% max_loss>%v%%\n",
		cfg.Anomaly.AvgLatency, cfg.Anomaly.MaxLatency, cfg.Anomaly.AvgLoss, cfg.Anomaly.MaxLoss)
	fmt.Printf("  cycle: capture=%s interval=%s classifier=%s\n",
		cfg.Cycle.InitialCaptureDuration, cfg.Cycle.InitialCycleInterval, cfg.Classifier.Mode)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(*url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsTargets = []string{
	"aegis_samples_total",
	"aegis_window_avg_latency_ms",
	"aegis_window_avg_loss_percent",
	"aegis_cycles_started_total",
	"aegis_attacks_detected_total",
	"aegis_capture_duration_seconds",
	"aegis_cycle_interval_seconds",
	"aegis_fanout_observers",
}

func printMetricsSnapshot(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	values, err := scrape(bufio.NewScanner(resp.Body), statsTargets)
	if err != nil {
		return err
	}

	fmt.Printf("[%s] samples=%.0f latency=%.1fms loss=%.1f%% cycles=%.0f attacks=%.0f capture=%.0fs interval=%.0fs observers=%.0f\n",
		time.Now().Format(time.RFC3339),
		values["aegis_samples_total"],
		values["aegis_window_avg_latency_ms"],
		values["aegis_window_avg_loss_percent"],
		values["aegis_cycles_started_total"],
		values["aegis_attacks_detected_total"],
		values["aegis_capture_duration_seconds"],
		values["aegis_cycle_interval_seconds"],
		values["aegis_fanout_observers"],
	)
	return nil
}

// scrape pulls unlabelled sample values out of the Prometheus text format.
func scrape(scanner *bufio.Scanner, keys []string) (map[string]float64, error) {
	out := make(map[string]float64, len(keys))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		for _, key := range keys {
			if strings.HasPrefix(line, key+" ") {
				var value float64
				if _, err := fmt.Sscanf(line, key+" %g", &value); err == nil {
					out[key] = value
				}
			}
		}
	}
	return out, scanner.Err()
}

func historyCommand(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	kind := fs.String("type", "", "Event type filter (metrics, attack_detection, tuning, error)")
	limit := fs.Int("limit", 20, "Number of events to print")
	asJSON := fs.Bool("json", false, "Print raw JSON events")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := aegisnet.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if !cfg.History.Enabled {
		return fmt.Errorf("history is disabled in %s", *cfgPath)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := store.Open(ctx, cfg.History.Driver, cfg.History.DSN, cfg.History.Table)
	if err != nil {
		return err
	}
	defer s.Close()

	events, err := s.Recent(ctx, aegisnet.EventType(*kind), *limit)
	if err != nil {
		return err
	}
	sort.SliceStable(events, func(i, j int) bool { return events[i].Timestamp.Before(events[j].Timestamp) })

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTYPE\tSUMMARY")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", ev.Timestamp.Format(time.RFC3339), ev.Type, summarize(ev))
	}
	return tw.Flush()
}

func windowCommand(args []string) error {
	fs := flag.NewFlagSet("window", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file")
	path := fs.String("path", "", "Snapshot file to read (defaults to sampler.snapshot_path)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *path == "" {
		cfg, err := aegisnet.LoadConfig(*cfgPath)
		if err != nil {
			return err
		}
		*path = cfg.Sampler.SnapshotPath
	}

	samples, err := snapshot.Load(*path)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tEXT_LATENCY\tEXT_LOSS\tGW_LATENCY\tGW_LOSS\tSENT_B/S\tRECV_B/S")
	for _, s := range samples {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.0f\t%.0f\n",
			s.Timestamp.Format(time.RFC3339),
			optional(s.ExternalPing.Latency, "ms"),
			optional(s.ExternalPing.Loss, "%"),
			optional(s.LocalPing.Latency, "ms"),
			optional(s.LocalPing.Loss, "%"),
			s.ThroughputSent,
			s.ThroughputRecv,
		)
	}
	return tw.Flush()
}

func optional(v *float64, unit string) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%s", *v, unit)
}

func summarize(ev aegisnet.Event) string {
	switch {
	case ev.Verdict != nil:
		if ev.Verdict.Details != nil {
			return *ev.Verdict.Details
		}
		return fmt.Sprintf("attack_detected=%t", ev.Verdict.AttackDetected)
	case ev.Tuning != nil:
		return fmt.Sprintf("capture=%s interval=%s previous_attack=%t",
			ev.Tuning.CaptureDuration, ev.Tuning.CycleInterval, ev.Tuning.PreviousAttackDetected)
	case ev.Error != nil:
		return ev.Error.Kind + ": " + ev.Error.Message
	case ev.Aggregates != nil:
		return fmt.Sprintf("avg_latency=%.1fms avg_loss=%.1f%%", ev.Aggregates.AvgLatency, ev.Aggregates.AvgLoss)
	default:
		return "-"
	}
}

func printUsage() {
	fmt.Printf(`AegisNet CLI

Usage:
  aegis-net <command> [flags]

Commands:
  run        Start the monitoring runtime using the provided config
  validate   Load and validate a config file without starting the runtime
  stats      Poll the Prometheus metrics endpoint and print live counters
  history    Print recent events from the SQL history store
  window     Print the last-N samples snapshot written by the sampler

Examples:
  aegis-net run -config ./data/config.yaml
  aegis-net validate -config ./data/config.yaml
  aegis-net stats -url http://localhost:9100/metrics -interval 1s
  aegis-net history -config ./data/config.yaml -type attack_detection -limit 20
  aegis-net window -config ./data/config.yaml
`)
}
