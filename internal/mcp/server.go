// Package mcp exposes the resolution engine over the Model Context
// Protocol. The server owns one engine stack (store, cache, analyzer,
// resolver) built from config, and serves it over stdio; every tool
// call is a plain request/response against that shared state.
//
// Tool failures are reported inside the result with IsError set, never
// as protocol-level errors, so a client can read what went wrong and
// correct its next call.
package mcp

import (
	"context"

	"github.com/standardbeagle/refind/internal/analysis"
	"github.com/standardbeagle/refind/internal/cache"
	"github.com/standardbeagle/refind/internal/classifier"
	"github.com/standardbeagle/refind/internal/config"
	"github.com/standardbeagle/refind/internal/debug"
	"github.com/standardbeagle/refind/internal/resolver"
	"github.com/standardbeagle/refind/internal/similarity"
	"github.com/standardbeagle/refind/internal/store"
	"github.com/standardbeagle/refind/internal/strategy"
	"github.com/standardbeagle/refind/internal/version"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// ServerName identifies this server to MCP clients.
const ServerName = "refind-mcp-server"

// UnknownField records an argument the caller sent that no parameter
// claims. Unknown fields never fail a call; they come back as warnings
// so a misspelled parameter is visible instead of silently dropped.
type UnknownField struct {
	Name  string      `json:"name"`
	Value interface{} `json:"value"`
}

// Server wires the engine behind MCP stdio tools.
type Server struct {
	server   *mcp.Server
	cfg      *config.Config
	store    *store.Store
	cache    *cache.AnalysisCache
	analyzer *analysis.Analyzer
	resolver *resolver.Resolver
}

// NewServer assembles the engine from a validated config. A nil config
// gets the defaults, so tests and embedders can pass nothing.
func NewServer(cfg *config.Config) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cls := classifier.New(cfg.Classifier.ExcludeIDs, cfg.Classifier.IDTrustFloor)
	sim := similarity.NewScorer(cfg.Resolver.FuzzyFloor)
	cat := strategy.NewCatalog(cls, sim, cfg.Resolver.DisableBounds)
	ch := cache.New(cfg.Cache.MaxEntries)
	st := store.New(ch)
	an := analysis.New(cls)

	s := &Server{
		server: mcp.NewServer(&mcp.Implementation{
			Name:    ServerName,
			Version: version.Version,
		}, nil),
		cfg:      cfg,
		store:    st,
		cache:    ch,
		analyzer: an,
		resolver: resolver.New(st, cat, ch, an, resolver.Options{
			HiddenParentThreshold: cfg.Resolver.HiddenParentThreshold,
		}),
	}
	s.registerTools()
	return s, nil
}

// Run serves MCP over stdio until the context is canceled or the
// client disconnects. Stdio belongs to the protocol, so when debugging
// is enabled the output goes to a temp log file instead.
func (s *Server) Run(ctx context.Context) error {
	debug.SetMCPMode(true)
	if debug.Enabled() {
		if path, err := debug.InitLogFile(); err == nil {
			defer debug.CloseLogFile()
			debug.LogMCP("%s %s serving stdio, debug log %s\n", ServerName, version.Version, path)
		}
	}
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// registerTools declares every tool with its input schema. The schema
// is what clients see; the handlers re-validate because arguments
// arrive as raw JSON regardless.
func (s *Server) registerTools() {
	s.server.AddTool(&mcp.Tool{
		Name:        "ingest_snapshot",
		Description: "Parse a uiautomator XML dump into an immutable snapshot and return its id. Re-ingesting identical markup yields a fresh id.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"xml": {
					Type:        "string",
					Description: "Raw hierarchy dump XML",
				},
				"device": {
					Type:        "string",
					Description: "Device serial or label recorded on the snapshot",
				},
			},
			Required: []string{"xml"},
		},
	}, s.handleIngestSnapshot)

	s.server.AddTool(&mcp.Tool{
		Name:        "resolve_element",
		Description: "Re-find the element a descriptor was captured from in a snapshot. Runs the strategy chain in order and returns the outcome with a full per-strategy trace. No match and ambiguity are outcomes, not errors.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"snapshot_id": {
					Type:        "string",
					Description: "Snapshot to search, from ingest_snapshot",
				},
				"descriptor": {
					Type:        "object",
					Description: "Element identity captured at selection time. Fields: text, content_desc, resource_id, class, package, parent_class, bounds (\"[l,t][r,b]\"), index, path (\"0/3/2\"), clickable, enabled, focusable, scrollable, selected. All optional; empty strings are absent.",
					Properties: map[string]*jsonschema.Schema{
						"text":         {Type: "string", Description: "Visible text"},
						"content_desc": {Type: "string", Description: "Accessibility description"},
						"resource_id":  {Type: "string", Description: "Full resource id (package:id/name)"},
						"class":        {Type: "string", Description: "Widget class name"},
						"package":      {Type: "string", Description: "Owning application package"},
						"parent_class": {Type: "string", Description: "Parent widget class at capture time"},
						"bounds":       {Type: "string", Description: "Screen bounds in dump form, e.g. [0,96][1080,240]"},
						"index":        {Type: "integer", Description: "Document-order arena index at capture time"},
						"path":         {Type: "string", Description: "Child-position path from the root, e.g. 0/3/2"},
						"clickable":    {Type: "boolean"},
						"enabled":      {Type: "boolean"},
						"focusable":    {Type: "boolean"},
						"scrollable":   {Type: "boolean"},
						"selected":     {Type: "boolean"},
					},
				},
				"chain": {
					Type:        "array",
					Items:       &jsonschema.Schema{Type: "string"},
					Description: "Strategy names to try in order (strict, standard, relaxed, positionless, path-first-index, path-all-matches, path-direct, family, clone, absolute). Defaults to the configured chain.",
				},
				"thresholds": {
					Type:        "object",
					Description: "Per-strategy qualification overrides in [0,1], keyed by strategy name",
				},
			},
			Required: []string{"snapshot_id", "descriptor"},
		},
	}, s.handleResolveElement)

	s.server.AddTool(&mcp.Tool{
		Name:        "analyze_node",
		Description: "Compute identifiability metrics for the subtree rooted at a path: which fields carry signal, uniqueness, stability, and the weakest strategy expected to re-find the node.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"snapshot_id": {
					Type:        "string",
					Description: "Snapshot to analyze",
				},
				"path": {
					Type:        "string",
					Description: "Child-position path of the subtree root, e.g. 0/3/2. Empty string is the root.",
				},
			},
			Required: []string{"snapshot_id"},
		},
	}, s.handleAnalyzeNode)

	s.server.AddTool(&mcp.Tool{
		Name:        "list_snapshots",
		Description: "List ingested snapshots with node counts, devices, and capture times.",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
	}, s.handleListSnapshots)

	s.server.AddTool(&mcp.Tool{
		Name:        "evict_snapshot",
		Description: "Drop a snapshot and every cached analysis derived from it.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"snapshot_id": {
					Type:        "string",
					Description: "Snapshot to evict",
				},
			},
			Required: []string{"snapshot_id"},
		},
	}, s.handleEvictSnapshot)

	s.server.AddTool(&mcp.Tool{
		Name:        "archive_scan",
		Description: "Scan a capture directory for timestamped ui_dump files, newest first. With ingest=true, every listed capture is ingested and its snapshot id reported.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"dir": {
					Type:        "string",
					Description: "Capture directory. Defaults to the configured archive dir.",
				},
				"pattern": {
					Type:        "string",
					Description: "Capture filename glob. Defaults to the configured pattern.",
				},
				"ingest": {
					Type:        "boolean",
					Description: "Ingest every scanned capture",
				},
			},
		},
	}, s.handleArchiveScan)

	s.server.AddTool(&mcp.Tool{
		Name:        "info",
		Description: "Get help and examples for any tool. Use 'info' alone for the overview, or pass a tool name. 'info version' reports server build and cache health.",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"tool": {
					Type:        "string",
					Description: "Tool name to describe (e.g. 'resolve_element', 'version')",
				},
			},
		},
	}, s.handleInfo)
}
