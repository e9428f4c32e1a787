package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"
)

func runWhoami(args []string) {
	if err := doWhoami(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doWhoami(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("whoami", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	timeout := fs.Duration("timeout", 5*time.Second, "probe deadline")
	jsonOut := fs.Bool("json", false, "print the observation as JSON")
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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	obs, err := b.Discovery.Whoami(ctx)
	if err != nil {
		return fmt.Errorf("whoami failed: %w", err)
	}

	if *jsonOut {
		enc := json.NewEncoder(stdout)
		return enc.Encode(struct {
			Host string `json:"host"`
			Port uint16 `json:"port"`
		}{obs.Host, obs.Port})
	}
	fmt.Fprintf(stdout, "%s:%d\n", obs.Host, obs.Port)
	return nil
}
