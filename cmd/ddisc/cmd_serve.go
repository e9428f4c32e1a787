package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/shurlinet/dnsdiscover/internal/config"
	"github.com/shurlinet/dnsdiscover/internal/termcolor"
)

func runServe(args []string) {
	if err := doServe(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doServe(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
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

	if !b.Config.Listen.Enabled {
		return fmt.Errorf("listen.enabled is false in %s; server mode requires it", cfgFile)
	}

	// Archive the config that just validated and built successfully, so
	// a later bad edit can be rolled back with 'ddisc config rollback'.
	if err := config.Archive(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to archive config: %v\n", err)
	}

	if err := b.Discovery.Listen(b.Config.Listen.Ports); err != nil {
		return fmt.Errorf("listen failed: %w", err)
	}
	termcolor.Green("Tracker listening on %v (domain %s)", b.Config.Listen.Ports, b.Config.Domain)

	if b.Metrics != nil {
		addr := b.Config.Telemetry.Metrics.ListenAddress
		mux := http.NewServeMux()
		mux.Handle("/metrics", b.Metrics.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintf(os.Stderr, "metrics server: %v\n", err)
			}
		}()
		defer srv.Close()
		fmt.Fprintf(stdout, "Metrics exposed on http://%s/metrics\n", addr)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	fmt.Fprintln(stdout, "Shutting down...")
	return nil
}
