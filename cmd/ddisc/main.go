package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"
)

// Set via -ldflags at build time:
//
//	go build -ldflags "-X main.version=0.1.0 -X main.commit=$(git rev-parse --short HEAD) -X main.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)" -o ddisc ./cmd/ddisc
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
		return
	}

	switch os.Args[1] {
	case "announce":
		runAnnounce(os.Args[2:])
	case "unannounce":
		runUnannounce(os.Args[2:])
	case "lookup":
		runLookup(os.Args[2:])
	case "whoami":
		runWhoami(os.Args[2:])
	case "serve":
		runServe(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
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
	fmt.Printf("ddisc %s (%s) built %s\n", version, commit, buildDate)
	fmt.Printf("Go %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

func printUsage() {
	fmt.Println("Usage: ddisc <command> [options]")
	fmt.Println()
	fmt.Println("Peer discovery:")
	fmt.Println("  announce <topic-hex> <port> [--implied-port]   Announce this host on a topic")
	fmt.Println("  unannounce <topic-hex> <port>                  Retract a prior announcement")
	fmt.Println("  lookup <topic-hex> [--json] [--timeout 5s]     Discover peers serving a topic")
	fmt.Println("  whoami [--json]                                Show how trackers see this host")
	fmt.Println()
	fmt.Println("Server:")
	fmt.Println("  serve                                          Run a tracker (unicast + mDNS)")
	fmt.Println("  status [--json]                                Query a running tracker's metrics")
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println("  config validate [--config path]                Validate config")
	fmt.Println("  config show     [--config path]                Show resolved config")
	fmt.Println("  config rollback [--config path]                Restore last-known-good config")
	fmt.Println()
	fmt.Println("  version                                        Show version information")
	fmt.Println()
	fmt.Println("All commands support --config <path> to specify a config file.")
	fmt.Println("Without --config, ddisc searches: ./ddisc.yaml, ~/.config/ddisc/config.yaml, /etc/ddisc/config.yaml")
	fmt.Println()
	fmt.Println("Get started: write a ddisc.yaml with a domain and tracker list, then run 'ddisc serve' or 'ddisc announce'.")
}
