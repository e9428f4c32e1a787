package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shurlinet/dnsdiscover/pkg/discovery"
)

func runLookup(args []string) {
	if err := doLookup(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doLookup(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	timeout := fs.Duration("timeout", 5*time.Second, "fan-out deadline")
	jsonOut := fs.Bool("json", false, "print results as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	remaining := fs.Args()
	if len(remaining) < 1 {
		return fmt.Errorf("usage: ddisc lookup <topic-hex> [--json] [--timeout 5s] [--config path]")
	}
	topic, err := discovery.TopicFromString(remaining[0])
	if err != nil {
		return fmt.Errorf("invalid topic %q: %w", remaining[0], err)
	}

	cfgFile, err := findConfig(*configFlag)
	if err != nil {
		return err
	}
	b, err := buildInstance(cfgFile)
	if err != nil {
		return err
	}
	defer b.Close()

	events, cancelEvents := b.Discovery.Events()
	defer cancelEvents()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	lookupErr := b.Discovery.Lookup(ctx, topic)

	var peers []discovery.PeerView
	drain := true
	for drain {
		select {
		case ev := <-events:
			if ev.Kind == discovery.EventPeer && ev.Topic == topic {
				peers = append(peers, discovery.PeerView{Host: ev.Peer.Host, Port: ev.Peer.Port})
			}
		default:
			drain = false
		}
	}

	if lookupErr != nil && len(peers) == 0 {
		return fmt.Errorf("lookup failed: %w", lookupErr)
	}

	if *jsonOut {
		enc := json.NewEncoder(stdout)
		return enc.Encode(peers)
	}
	if len(peers) == 0 {
		fmt.Fprintln(stdout, "No peers found.")
		return nil
	}
	for _, p := range peers {
		fmt.Fprintf(stdout, "%s:%d\n", p.Host, p.Port)
	}
	return nil
}
