package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD) -X main.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)" -o simulate ./cmd/simulate
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if len(os.Args) < 2 {
		printUsage()
		osExit(1)
	}

	switch os.Args[1] {
	case "run":
		runRun(os.Args[2:])
	case "config":
		runConfig(os.Args[2:])
	case "version", "--version":
		printVersion()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		osExit(1)
	}
}

func printVersion() {
	fmt.Printf("simulate %s (%s) built %s\n", version, commit, buildDate)
	fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Println("Usage: simulate <command> [options]")
	fmt.Println()
	fmt.Println("  run [--config path] [flags...] [--json]   Run a simulation and report results")
	fmt.Println("  config validate [--config path]           Validate a simulation config file")
	fmt.Println("  config show     [--config path]           Show the resolved config")
	fmt.Println("  version                                   Show version information")
	fmt.Println()
	fmt.Println("Without --config, simulate searches: ./swarmsim.yaml, ~/.config/swarmsim/config.yaml, /etc/swarmsim/config.yaml")
	fmt.Println()
	fmt.Println("Get started:  simulate run --config swarmsim.yaml")
}
