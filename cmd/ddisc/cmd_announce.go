package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shurlinet/dnsdiscover/internal/config"
	"github.com/shurlinet/dnsdiscover/pkg/discovery"
)

func runAnnounce(args []string) {
	if err := doAnnounce(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doAnnounce(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("announce", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	impliedPort := fs.Bool("implied-port", false, "announce the port trackers observed this request arriving from")
	timeout := fs.Duration("timeout", 10*time.Second, "fan-out deadline")
	if err := fs.Parse(args); err != nil {
		return err
	}

	remaining := fs.Args()
	if len(remaining) < 2 {
		return fmt.Errorf("usage: ddisc announce <topic-hex> <port> [--implied-port] [--config path]")
	}
	topic, err := discovery.TopicFromString(remaining[0])
	if err != nil {
		return fmt.Errorf("invalid topic %q: %w", remaining[0], err)
	}
	port, err := strconv.ParseUint(remaining[1], 10, 16)
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", remaining[1], err)
	}

	cfgFile, err := findConfig(*configFlag)
	if err != nil {
		return err
	}
	b, err := buildInstance(cfgFile, func(c *config.Config) {
		if *impliedPort {
			c.Listen.ImpliedPort = true
		}
	})
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := b.Discovery.Announce(ctx, topic, uint16(port)); err != nil {
		return fmt.Errorf("announce failed: %w", err)
	}
	fmt.Fprintf(stdout, "Announced topic %s on port %d\n", topic, port)
	return nil
}
