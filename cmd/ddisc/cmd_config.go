package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/shurlinet/dnsdiscover/internal/config"
)

func runConfig(args []string) {
	if len(args) < 1 {
		printConfigUsage()
		osExit(1)
		return
	}

	switch args[0] {
	case "validate":
		runConfigValidate(args[1:])
	case "show":
		runConfigShow(args[1:])
	case "rollback":
		runConfigRollback(args[1:])
	case "backup":
		runConfigBackup(args[1:])
	case "backups":
		runConfigBackups(args[1:])
	case "restore":
		runConfigRestore(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config command: %s\n\n", args[0])
		printConfigUsage()
		osExit(1)
	}
}

// backupDirFor places a config file's timestamped snapshots in a
// "backups" directory next to it.
func backupDirFor(cfgFile string) string {
	return filepath.Join(filepath.Dir(cfgFile), "backups")
}

func runConfigValidate(args []string) {
	if err := doConfigValidate(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doConfigValidate(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("config validate", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile, err := findConfig(*configFlag)
	if err != nil {
		return err
	}

	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(stdout, "FAIL: %s\n", err)
		return fmt.Errorf("invalid config")
	}

	fmt.Fprintf(stdout, "OK: %s is valid\n", cfgFile)
	return nil
}

func runConfigShow(args []string) {
	if err := doConfigShow(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doConfigShow(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile, err := findConfig(*configFlag)
	if err != nil {
		return err
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Fprintf(stdout, "# Resolved config from %s\n", cfgFile)
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	fmt.Fprint(stdout, string(out))

	if config.HasArchive(cfgFile) {
		fmt.Fprintf(stdout, "\n# Last-known-good archive: %s\n", config.ArchivePath(cfgFile))
	} else {
		fmt.Fprintf(stdout, "\n# No last-known-good archive (will be created on next successful serve)\n")
	}
	return nil
}

func runConfigRollback(args []string) {
	if err := doConfigRollback(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doConfigRollback(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("config rollback", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile, err := findConfig(*configFlag)
	if err != nil {
		return err
	}

	if !config.HasArchive(cfgFile) {
		return fmt.Errorf("no last-known-good archive for %s", cfgFile)
	}

	if err := config.Rollback(cfgFile); err != nil {
		return fmt.Errorf("rollback failed: %w", err)
	}

	fmt.Fprintf(stdout, "Restored %s from last-known-good archive\n", cfgFile)
	fmt.Fprintln(stdout, "You can now restart ddisc serve.")
	return nil
}

func runConfigBackup(args []string) {
	if err := doConfigBackup(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doConfigBackup(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("config backup", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile, err := findConfig(*configFlag)
	if err != nil {
		return err
	}

	sm := config.NewSnapshotManager(backupDirFor(cfgFile))
	snap, err := sm.Create(filepath.Dir(cfgFile), []string{filepath.Base(cfgFile)})
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}

	fmt.Fprintf(stdout, "Backed up %s to %s\n", cfgFile, snap.Path)
	return nil
}

func runConfigBackups(args []string) {
	if err := doConfigBackups(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doConfigBackups(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("config backups", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfgFile, err := findConfig(*configFlag)
	if err != nil {
		return err
	}

	sm := config.NewSnapshotManager(backupDirFor(cfgFile))
	snaps, err := sm.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(snaps) == 0 {
		fmt.Fprintln(stdout, "No backups found.")
		return nil
	}
	for _, s := range snaps {
		fmt.Fprintf(stdout, "%s  %s\n", s.Name, s.Files)
	}
	return nil
}

func runConfigRestore(args []string) {
	if err := doConfigRestore(args, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		osExit(1)
	}
}

func doConfigRestore(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("config restore", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	configFlag := fs.String("config", "", "path to config file")
	name := fs.String("name", "", "backup name to restore (see `ddisc config backups`)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("--name is required (see `ddisc config backups`)")
	}

	cfgFile, err := findConfig(*configFlag)
	if err != nil {
		return err
	}

	sm := config.NewSnapshotManager(backupDirFor(cfgFile))
	snaps, err := sm.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	var target *config.Snapshot
	for i := range snaps {
		if snaps[i].Name == *name {
			target = &snaps[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("no backup named %q (see `ddisc config backups`)", *name)
	}

	if err := sm.Restore(target, filepath.Dir(cfgFile)); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}

	fmt.Fprintf(stdout, "Restored %s from backup %s\n", cfgFile, target.Name)
	return nil
}

func printConfigUsage() {
	fmt.Println("Usage: ddisc config <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  validate [--config path]             Validate config without starting")
	fmt.Println("  show     [--config path]             Show resolved config")
	fmt.Println("  rollback [--config path]             Restore last-known-good config")
	fmt.Println("  backup   [--config path]             Snapshot the config file")
	fmt.Println("  backups  [--config path]             List available snapshots")
	fmt.Println("  restore  [--config path] --name NAME Restore a named snapshot")
}
