package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/shurlinet/dnsdiscover/internal/config"
	"github.com/shurlinet/dnsdiscover/internal/termcolor"
)

func runStatus(args []string) {
	if err := doStatus(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

type statusReport struct {
	Reachable  bool  `json:"reachable"`
	PeerCount  int64 `json:"peer_count"`
	SubCount   int64 `json:"subscription_count"`
}

var gaugeRe = regexp.MustCompile(`(?m)^(ddisc_peer_store_size|ddisc_subscription_count)\s+([0-9.e+]+)$`)

func doStatus(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	jsonOut := fs.Bool("json", false, "print status as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile, err := findConfig(*configFlag)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	report := statusReport{}
	if !cfg.Telemetry.Metrics.Enabled {
		if *jsonOut {
			return json.NewEncoder(stdout).Encode(report)
		}
		termcolor.Yellow("Metrics are disabled in %s; cannot query a running tracker.", cfgFile)
		return nil
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get("http://" + cfg.Telemetry.Metrics.ListenAddress + "/metrics")
	if err != nil {
		if *jsonOut {
			return json.NewEncoder(stdout).Encode(report)
		}
		termcolor.Red("No tracker reachable at %s: %v", cfg.Telemetry.Metrics.ListenAddress, err)
		return nil
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading metrics response: %w", err)
	}

	report.Reachable = resp.StatusCode == http.StatusOK
	for _, m := range gaugeRe.FindAllStringSubmatch(string(body), -1) {
		v, _ := strconv.ParseFloat(m[2], 64)
		switch m[1] {
		case "ddisc_peer_store_size":
			report.PeerCount = int64(v)
		case "ddisc_subscription_count":
			report.SubCount = int64(v)
		}
	}

	if *jsonOut {
		return json.NewEncoder(stdout).Encode(report)
	}
	if report.Reachable {
		termcolor.Green("Tracker reachable at %s", cfg.Telemetry.Metrics.ListenAddress)
		fmt.Fprintf(stdout, "  peers:         %d\n", report.PeerCount)
		fmt.Fprintf(stdout, "  subscriptions: %d\n", report.SubCount)
	} else {
		termcolor.Red("Tracker at %s returned HTTP %d", cfg.Telemetry.Metrics.ListenAddress, resp.StatusCode)
	}
	return nil
}
