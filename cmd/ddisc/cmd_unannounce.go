package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/shurlinet/dnsdiscover/pkg/discovery"
)

func runUnannounce(args []string) {
	if err := doUnannounce(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doUnannounce(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("unannounce", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	timeout := fs.Duration("timeout", 10*time.Second, "fan-out deadline")
	if err := fs.Parse(args); err != nil {
		return err
	}

	remaining := fs.Args()
	if len(remaining) < 2 {
		return fmt.Errorf("usage: ddisc unannounce <topic-hex> <port> [--config path]")
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
	b, err := buildInstance(cfgFile)
	if err != nil {
		return err
	}
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := b.Discovery.Unannounce(ctx, topic, uint16(port)); err != nil {
		return fmt.Errorf("unannounce failed: %w", err)
	}
	fmt.Fprintf(stdout, "Unannounced topic %s on port %d\n", topic, port)
	return nil
}
