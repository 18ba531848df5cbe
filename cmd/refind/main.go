package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"

	"github.com/standardbeagle/refind/internal/analysis"
	"github.com/standardbeagle/refind/internal/cache"
	"github.com/standardbeagle/refind/internal/classifier"
	"github.com/standardbeagle/refind/internal/config"
	"github.com/standardbeagle/refind/internal/debug"
	"github.com/standardbeagle/refind/internal/mcp"
	"github.com/standardbeagle/refind/internal/resolver"
	"github.com/standardbeagle/refind/internal/similarity"
	"github.com/standardbeagle/refind/internal/store"
	"github.com/standardbeagle/refind/internal/strategy"
	"github.com/standardbeagle/refind/internal/types"
	"github.com/standardbeagle/refind/internal/version"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "refind",
		Usage:   "Deterministic element re-resolution for mobile UI hierarchy dumps",
		Version: version.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path",
				Value:   config.DefaultFileName,
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Write debug logging to stderr",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool("debug") {
				debug.EnableDebug = "true"
				debug.SetOutput(os.Stderr)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:    "resolve",
				Aliases: []string{"r"},
				Usage:   "Re-find a captured element in a hierarchy dump",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "snapshot",
						Aliases: []string{"s"},
						Usage:   "Hierarchy dump XML file",
					},
					&cli.StringFlag{
						Name:    "target",
						Aliases: []string{"t"},
						Usage:   "Target descriptor as JSON, or @file to read it from disk",
					},
					&cli.StringFlag{
						Name:  "chain",
						Usage: "Comma-separated strategy names tried in order (defaults to the configured chain)",
					},
					&cli.StringFlag{
						Name:  "device",
						Usage: "Device label recorded on the snapshot",
					},
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: resolveCommand,
			},
			{
				Name:    "analyze",
				Aliases: []string{"a"},
				Usage:   "Identifiability metrics for a subtree of a hierarchy dump",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "snapshot",
						Aliases: []string{"s"},
						Usage:   "Hierarchy dump XML file",
					},
					&cli.StringFlag{
						Name:    "path",
						Aliases: []string{"p"},
						Usage:   "Subtree root as a child-position path like 0/3/2 (empty is the root)",
					},
					&cli.BoolFlag{
						Name:    "json",
						Aliases: []string{"j"},
						Usage:   "Output as JSON",
					},
				},
				Action: analyzeCommand,
			},
			{
				Name:  "archive",
				Usage: "Work with a directory of timestamped capture files",
				Subcommands: []*cli.Command{
					{
						Name:   "scan",
						Usage:  "List captures, newest first",
						Flags:  archiveFlags(&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"}),
						Action: archiveScanCommand,
					},
					{
						Name:  "ingest",
						Usage: "Ingest every capture and record the session manifest",
						Flags: archiveFlags(&cli.StringFlag{
							Name:  "device",
							Usage: "Device label for a freshly created manifest",
						}),
						Action: archiveIngestCommand,
					},
					{
						Name:   "watch",
						Usage:  "Ingest new captures as they appear, until interrupted",
						Flags:  archiveFlags(),
						Action: archiveWatchCommand,
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the engine over the Model Context Protocol on stdio",
				Action: mcpCommand,
			},
			{
				Name:   "version",
				Usage:  "Print version and build information",
				Action: versionCommand,
			},
		},
		Action: func(c *cli.Context) error {
			// MCP clients spawn the bare binary with a pipe on stdin.
			if isMCPMode() {
				debug.LogMCP("auto-detected MCP mode\n")
				return mcpCommand(c)
			}
			return cli.ShowAppHelp(c)
		},
	}
}

// engine bundles the assembled stack for one-shot commands.
type engine struct {
	store    *store.Store
	cache    *cache.AnalysisCache
	analyzer *analysis.Analyzer
	resolver *resolver.Resolver
}

func newEngine(cfg *config.Config) *engine {
	cls := classifier.New(cfg.Classifier.ExcludeIDs, cfg.Classifier.IDTrustFloor)
	sim := similarity.NewScorer(cfg.Resolver.FuzzyFloor)
	cat := strategy.NewCatalog(cls, sim, cfg.Resolver.DisableBounds)
	ch := cache.New(cfg.Cache.MaxEntries)
	st := store.New(ch)
	an := analysis.New(cls)
	return &engine{
		store:    st,
		cache:    ch,
		analyzer: an,
		resolver: resolver.New(st, cat, ch, an, resolver.Options{
			HiddenParentThreshold: cfg.Resolver.HiddenParentThreshold,
		}),
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("config: %v", err), 2)
	}
	return cfg, nil
}

// loadTarget parses the --target argument: inline JSON, or @file.
func loadTarget(arg string) (*types.TargetDescriptor, []mcp.UnknownField, error) {
	if arg == "" {
		return nil, nil, errors.New("target is required")
	}
	raw := []byte(arg)
	if strings.HasPrefix(arg, "@") {
		data, err := os.ReadFile(strings.TrimPrefix(arg, "@"))
		if err != nil {
			return nil, nil, err
		}
		raw = data
	}
	var p mcp.DescriptorParam
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, nil, fmt.Errorf("target: %w", err)
	}
	if p.Empty() {
		return nil, nil, errors.New("target carries no fields")
	}
	d, err := p.ToDescriptor()
	if err != nil {
		return nil, nil, fmt.Errorf("target: %w", err)
	}
	return d, p.Warnings, nil
}

func splitChain(arg string) []string {
	if arg == "" {
		return nil
	}
	parts := strings.Split(arg, ",")
	names := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			names = append(names, trimmed)
		}
	}
	return names
}

func resolveCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	snapshotPath := c.String("snapshot")
	if snapshotPath == "" {
		return cli.Exit("resolve: --snapshot is required", 2)
	}
	raw, err := os.ReadFile(snapshotPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("resolve: %v", err), 2)
	}

	d, warnings, err := loadTarget(c.String("target"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("resolve: %v", err), 2)
	}
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: unknown target field %q\n", w.Name)
	}

	specs, err := cfg.SpecsFor(splitChain(c.String("chain")))
	if err != nil {
		return cli.Exit(fmt.Sprintf("resolve: %v", err), 2)
	}

	eng := newEngine(cfg)
	id, err := eng.store.Ingest(raw, c.String("device"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("resolve: %v", err), 2)
	}

	result, err := eng.resolver.Resolve(c.Context, id, d, specs)
	if err != nil {
		return cli.Exit(fmt.Sprintf("resolve: %v", err), 2)
	}

	if c.Bool("json") {
		if err := printJSON(c.App.Writer, result); err != nil {
			return err
		}
	} else {
		printResult(c.App.Writer, result)
	}

	if !result.Matched() {
		return cli.Exit("", 1)
	}
	return nil
}

func analyzeCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	snapshotPath := c.String("snapshot")
	if snapshotPath == "" {
		return cli.Exit("analyze: --snapshot is required", 2)
	}
	raw, err := os.ReadFile(snapshotPath)
	if err != nil {
		return cli.Exit(fmt.Sprintf("analyze: %v", err), 2)
	}
	path, err := types.ParsePath(c.String("path"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("analyze: %v", err), 2)
	}

	eng := newEngine(cfg)
	id, err := eng.store.Ingest(raw, "")
	if err != nil {
		return cli.Exit(fmt.Sprintf("analyze: %v", err), 2)
	}
	snap, err := eng.store.Get(id)
	if err != nil {
		return cli.Exit(fmt.Sprintf("analyze: %v", err), 2)
	}
	metrics, err := eng.analyzer.Compute(snap, path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("analyze: %v", err), 2)
	}

	if c.Bool("json") {
		return printJSON(c.App.Writer, struct {
			Path string `json:"path"`
			types.SubtreeMetrics
		}{path.String(), metrics})
	}
	printMetrics(c.App.Writer, path, metrics)
	return nil
}

func mcpCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	srv, err := mcp.NewServer(cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("mcp: %v", err), 2)
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

func versionCommand(c *cli.Context) error {
	fmt.Fprintln(c.App.Writer, version.FullInfo())
	fmt.Fprintf(c.App.Writer, "build:    %s\n", version.BuildID())
	fmt.Fprintf(c.App.Writer, "platform: %s/%s (%s)\n", runtime.GOOS, runtime.GOARCH, runtime.Version())
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printResult(w io.Writer, result *types.MatchResult) {
	fmt.Fprintf(w, "outcome: %s\n", result.Outcome)
	if result.Winner != nil {
		win := result.Winner
		fmt.Fprintf(w, "winner:  path=%s index=%d bounds=%s confidence=%.2f via %s\n",
			win.Path, win.Index, win.Bounds, win.Confidence, win.Strategy)
	}
	fmt.Fprintln(w, "trace:")
	for i, step := range result.Trace {
		mark := "-"
		if step.Qualified {
			mark = "+"
		}
		fmt.Fprintf(w, "  %s %d. %-18s threshold=%.2f candidates=%d best=%.2f  %s\n",
			mark, i+1, step.Strategy, step.Threshold, step.Candidates, step.Best, step.Reason)
	}
	if result.Outcome == types.OutcomeAmbiguous && len(result.Candidates) > 0 {
		fmt.Fprintln(w, "candidates:")
		for _, cand := range result.Candidates {
			fmt.Fprintf(w, "  path=%s index=%d bounds=%s confidence=%.2f\n",
				cand.Path, cand.Index, cand.Bounds, cand.Confidence)
		}
	}
}

func printMetrics(w io.Writer, path types.Path, m types.SubtreeMetrics) {
	label := path.String()
	if label == "" {
		label = "(root)"
	}
	names := make([]string, len(m.Fields))
	for i, kind := range m.Fields {
		names[i] = kind.String()
	}
	fmt.Fprintf(w, "path:       %s\n", label)
	fmt.Fprintf(w, "nodes:      %d\n", m.Nodes)
	fmt.Fprintf(w, "fields:     %s\n", strings.Join(names, ", "))
	fmt.Fprintf(w, "uniqueness: %.2f\n", m.Uniqueness)
	fmt.Fprintf(w, "stability:  %.2f\n", m.Stability)
	fmt.Fprintf(w, "confidence: %.2f\n", m.Confidence)
	fmt.Fprintf(w, "suggested:  %s\n", m.Suggested)
}

// isMCPMode reports whether a bare invocation should serve MCP: the
// client either set REFIND_MCP_MODE or attached a pipe to stdin, which
// is how MCP clients spawn servers.
func isMCPMode() bool {
	if v := os.Getenv("REFIND_MCP_MODE"); v == "1" || v == "true" {
		return true
	}
	stat, err := os.Stdin.Stat()
	return err == nil && stat.Mode()&os.ModeCharDevice == 0
}
