package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/standardbeagle/refind/internal/archive"
	"github.com/standardbeagle/refind/internal/config"
	"github.com/standardbeagle/refind/internal/types"

	"github.com/urfave/cli/v2"
)

// archiveFlags returns the shared capture-directory flags plus any
// command-specific extras.
func archiveFlags(extra ...cli.Flag) []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "dir",
			Aliases: []string{"d"},
			Usage:   "Capture directory (defaults to the configured archive dir)",
		},
		&cli.StringFlag{
			Name:  "pattern",
			Usage: "Capture filename glob (defaults to the configured pattern)",
		},
	}
	return append(flags, extra...)
}

func archiveArgs(c *cli.Context, cfg *config.Config) (dir, pattern string) {
	dir = c.String("dir")
	if dir == "" {
		dir = cfg.Archive.Dir
	}
	pattern = c.String("pattern")
	if pattern == "" {
		pattern = cfg.Archive.Pattern
	}
	return dir, pattern
}

func archiveScanCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	dir, pattern := archiveArgs(c, cfg)

	entries, err := archive.Scan(dir, pattern)
	if err != nil {
		return cli.Exit(fmt.Sprintf("archive scan: %v", err), 2)
	}

	if c.Bool("json") {
		return printJSON(c.App.Writer, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintf(c.App.Writer, "no captures in %s\n", dir)
		return nil
	}
	for _, entry := range entries {
		fmt.Fprintf(c.App.Writer, "%s  %-16s %8d bytes  %s\n",
			entry.CapturedAt.Format("2006-01-02 15:04:05"), entry.Device, entry.Size, filepath.Base(entry.Path))
	}
	return nil
}

func archiveIngestCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	dir, pattern := archiveArgs(c, cfg)

	entries, err := archive.Scan(dir, pattern)
	if err != nil {
		return cli.Exit(fmt.Sprintf("archive ingest: %v", err), 2)
	}
	if len(entries) == 0 {
		fmt.Fprintf(c.App.Writer, "no captures in %s\n", dir)
		return nil
	}

	eng := newEngine(cfg)
	report, err := archive.IngestAll(c.Context, eng.store, entries, cfg.Archive.Parallelism)
	if report == nil {
		return cli.Exit(fmt.Sprintf("archive ingest: %v", err), 2)
	}

	if err := recordManifest(dir, c.String("device"), report); err != nil {
		return cli.Exit(fmt.Sprintf("archive ingest: %v", err), 2)
	}

	for _, r := range report.Ingested {
		name := filepath.Base(r.Entry.Path)
		if r.Err != nil {
			fmt.Fprintf(c.App.Writer, "failed   %s: %v\n", name, r.Err)
			continue
		}
		fmt.Fprintf(c.App.Writer, "ingested %s -> %s\n", name, r.SnapshotID)
	}
	if report.Failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d captures failed", report.Failed, len(entries)), 1)
	}
	fmt.Fprintf(c.App.Writer, "%d captures ingested from %s\n", len(report.Ingested), dir)
	return nil
}

// recordManifest appends newly ingested captures to the session
// manifest, creating it on first use. Files already recorded keep their
// original entries, so re-running ingest is harmless.
func recordManifest(dir, device string, report *archive.Report) error {
	m, err := archive.LoadManifest(dir)
	if err != nil {
		return err
	}
	if m == nil {
		if device == "" {
			device = commonDevice(report)
		}
		m = &archive.Manifest{Device: device, Started: time.Now()}
	}

	seen := make(map[string]bool, len(m.Captures))
	for _, capture := range m.Captures {
		seen[capture.File] = true
	}
	changed := false
	for _, r := range report.Ingested {
		if r.Err != nil || seen[filepath.Base(r.Entry.Path)] {
			continue
		}
		m.AddCapture(r.Entry, r.SnapshotID)
		changed = true
	}
	if !changed {
		return nil
	}
	return archive.WriteManifest(dir, m)
}

// commonDevice returns the device shared by every successful capture,
// or "" when they disagree.
func commonDevice(report *archive.Report) string {
	device := ""
	for _, r := range report.Ingested {
		if r.Err != nil {
			continue
		}
		if device == "" {
			device = r.Entry.Device
			continue
		}
		if device != r.Entry.Device {
			return ""
		}
	}
	return device
}

func archiveWatchCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	dir, _ := archiveArgs(c, cfg)

	eng := newEngine(cfg)
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(c.App.Writer, "watching %s for new captures\n", dir)
	err = archive.Watch(ctx, eng.store, dir, func(entry archive.Entry, id types.SnapshotID, err error) {
		name := filepath.Base(entry.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ingest %s: %v\n", name, err)
			return
		}
		fmt.Fprintf(c.App.Writer, "ingested %s -> %s\n", name, id)
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("archive watch: %v", err), 2)
	}
	return nil
}
