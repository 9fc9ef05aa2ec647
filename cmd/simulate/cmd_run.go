package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/swarmsim/swarmsim/internal/config"
	"github.com/swarmsim/swarmsim/internal/simulation"
)

// runRun implements `simulate run`: load a config file (optionally
// overridden by flags), run the driver, and print a summary or JSON
// SimulationResults (spec §6 — this is the only place allowed to
// serialize the driver's output).
func runRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configFlag := fs.String("config", "", "path to a simulation config file")
	jsonFlag := fs.Bool("json", false, "print the full SimulationResults as JSON")
	numPeers := fs.Int("peers", 0, "override num_peers")
	durationSec := fs.Float64("duration", 0, "override duration_sec")
	seed := fs.Int64("seed", 0, "override seed")
	variant := fs.String("variant", "", "override variant: p2p, origin, cdn, dht")
	fs.Parse(args)

	cfg := simulation.Config{}
	if path, err := config.FindConfigFile(*configFlag); err == nil {
		loaded, err := config.LoadSimulationConfig(path)
		if err != nil {
			fatal("Config error: %v", err)
		}
		cfg = loaded
		slog.Info("simulate: loaded config", "path", path)
	} else if *configFlag != "" {
		fatal("Config error: %v", err)
	}

	if *numPeers > 0 {
		cfg.NumPeers = *numPeers
	}
	if *durationSec > 0 {
		cfg.DurationSec = *durationSec
	}
	if *seed != 0 {
		cfg.Seed = *seed
	}
	if *variant != "" {
		cfg.Variant = simulation.Variant(*variant)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	isTTY := term.IsTerminal(int(os.Stdout.Fd()))
	if isTTY {
		fmt.Printf("running simulation: %d peers, %.0fs...\n", cfg.NumPeers, cfg.DurationSec)
	} else {
		slog.Info("simulate: starting run", "numPeers", cfg.NumPeers, "durationSec", cfg.DurationSec, "variant", string(cfg.Variant))
	}

	started := time.Now()
	results, err := simulation.Run(ctx, cfg)
	if err != nil {
		fatal("Simulation error: %v", err)
	}
	elapsed := time.Since(started)

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fatal("Failed to encode results: %v", err)
		}
		return
	}

	printSummary(results, elapsed)
}

func printSummary(r simulation.Results, elapsed time.Duration) {
	fmt.Printf("simulated %d peers for %.0fs (wall: %s)\n", r.PeersSimulated, r.Duration, elapsed.Round(time.Millisecond))
	fmt.Printf("  totalRequests:        %d\n", r.TotalRequests)
	fmt.Printf("  peerRequests:         %d\n", r.PeerRequests)
	fmt.Printf("  originRequests:       %d\n", r.OriginRequests)
	fmt.Printf("  localCacheHits:       %d\n", r.LocalCacheHits)
	fmt.Printf("  cacheHitRatio:        %.2f%%\n", r.CacheHitRatio)
	fmt.Printf("  networkCacheHitRatio: %.2f%%\n", r.NetworkCacheHitRatio)
	fmt.Printf("  avgLatency:           %.2fms\n", r.AvgLatency)
	fmt.Printf("  latencyImprovement:   %.2f%%\n", r.LatencyImprovement)
	fmt.Printf("  p99Latency:           %.2fms\n", r.LatencyPercentiles.P99)
	fmt.Printf("  jainFairnessIndex:    %.4f\n", r.JainFairnessIndex)
	if r.FilePropagationTime != nil {
		fmt.Printf("  filePropagationTime:  %.2fs\n", *r.FilePropagationTime)
	}
	if r.RecoverySpeed != nil {
		fmt.Printf("  recoverySpeed:        %.2fms\n", *r.RecoverySpeed)
	}
	fmt.Printf("  anchorNodes:          %d\n", len(r.AnchorNodes))
}
