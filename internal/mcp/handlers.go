package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/standardbeagle/refind/internal/archive"
	"github.com/standardbeagle/refind/internal/debug"
	"github.com/standardbeagle/refind/internal/strategy"
	"github.com/standardbeagle/refind/internal/types"
	"github.com/standardbeagle/refind/internal/version"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

func (s *Server) handleIngestSnapshot(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params IngestParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("ingest_snapshot", fmt.Errorf("invalid parameters: %w", err))
	}
	if params.XML == "" {
		return createErrorResponse("ingest_snapshot", fmt.Errorf("xml is required"))
	}

	id, err := s.store.Ingest([]byte(params.XML), params.Device)
	if err != nil {
		return createErrorResponse("ingest_snapshot", err)
	}
	snap, err := s.store.Get(id)
	if err != nil {
		return createErrorResponse("ingest_snapshot", err)
	}

	debug.LogMCP("ingested %s: %d nodes", id, snap.Len())
	return createJSONResponse(map[string]interface{}{
		"snapshot_id": id,
		"nodes":       snap.Len(),
		"device":      snap.Device,
	})
}

func (s *Server) handleResolveElement(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params ResolveParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("resolve_element", fmt.Errorf("invalid parameters: %w", err))
	}
	if params.SnapshotID == "" {
		return createErrorResponse("resolve_element", fmt.Errorf("snapshot_id is required"))
	}
	if params.Descriptor.Empty() {
		return createErrorResponse("resolve_element", fmt.Errorf("descriptor carries no fields; provide at least one of text, content_desc, resource_id, class, bounds, or path"))
	}

	d, err := params.Descriptor.ToDescriptor()
	if err != nil {
		return createErrorResponse("resolve_element", fmt.Errorf("invalid descriptor: %w", err))
	}

	specs, err := s.cfg.SpecsFor(params.Chain)
	if err != nil {
		return createErrorResponse("resolve_element", err)
	}
	for name, th := range params.Thresholds {
		kind, err := strategy.ParseKind(name)
		if err != nil {
			return createErrorResponse("resolve_element", fmt.Errorf("thresholds: %w", err))
		}
		if th < 0 || th > 1 {
			return createErrorResponse("resolve_element", fmt.Errorf("thresholds: %s must be within [0,1], got %v", kind, th))
		}
		for i := range specs {
			if specs[i].Kind == kind {
				specs[i].Threshold = th
			}
		}
	}

	result, err := s.resolver.Resolve(ctx, types.SnapshotID(params.SnapshotID), d, specs)
	if err != nil {
		return createErrorResponse("resolve_element", err)
	}

	debug.LogMCP("resolve %s: %s after %d steps", params.SnapshotID, result.Outcome, len(result.Trace))
	return createJSONResponse(struct {
		*types.MatchResult
		Warnings []UnknownField `json:"warnings,omitempty"`
	}{result, params.Warnings})
}

func (s *Server) handleAnalyzeNode(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params AnalyzeParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("analyze_node", fmt.Errorf("invalid parameters: %w", err))
	}
	if params.SnapshotID == "" {
		return createErrorResponse("analyze_node", fmt.Errorf("snapshot_id is required"))
	}
	path, err := types.ParsePath(params.Path)
	if err != nil {
		return createErrorResponse("analyze_node", fmt.Errorf("invalid path: %w", err))
	}

	id := types.SnapshotID(params.SnapshotID)
	snap, err := s.store.Get(id)
	if err != nil {
		return createErrorResponse("analyze_node", err)
	}
	metrics, err := s.cache.GetOrCompute(id, path, func() (types.SubtreeMetrics, error) {
		return s.analyzer.Compute(snap, path)
	})
	if err != nil {
		return createErrorResponse("analyze_node", err)
	}

	return createJSONResponse(struct {
		SnapshotID string `json:"snapshot_id"`
		Path       string `json:"path"`
		types.SubtreeMetrics
	}{params.SnapshotID, path.String(), metrics})
}

func (s *Server) handleListSnapshots(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ids := s.store.List()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	type snapshotEntry struct {
		ID         types.SnapshotID `json:"id"`
		Device     string           `json:"device,omitempty"`
		Nodes      int              `json:"nodes"`
		CapturedAt time.Time        `json:"captured_at"`
	}
	entries := make([]snapshotEntry, 0, len(ids))
	for _, id := range ids {
		snap, err := s.store.Get(id)
		if err != nil {
			// Evicted between List and Get; skip.
			continue
		}
		entries = append(entries, snapshotEntry{
			ID:         snap.ID,
			Device:     snap.Device,
			Nodes:      snap.Len(),
			CapturedAt: snap.CapturedAt,
		})
	}

	return createJSONResponse(map[string]interface{}{
		"snapshots": entries,
		"count":     len(entries),
	})
}

func (s *Server) handleEvictSnapshot(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params EvictParams
	if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
		return createErrorResponse("evict_snapshot", fmt.Errorf("invalid parameters: %w", err))
	}
	if params.SnapshotID == "" {
		return createErrorResponse("evict_snapshot", fmt.Errorf("snapshot_id is required"))
	}

	found, dropped := s.store.Evict(types.SnapshotID(params.SnapshotID))
	debug.LogMCP("evict %s: found=%v dropped=%d", params.SnapshotID, found, dropped)
	return createJSONResponse(map[string]interface{}{
		"snapshot_id":           params.SnapshotID,
		"evicted":               found,
		"cache_entries_dropped": dropped,
	})
}

func (s *Server) handleArchiveScan(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params ArchiveScanParams
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
			return createErrorResponse("archive_scan", fmt.Errorf("invalid parameters: %w", err))
		}
	}
	dir := params.Dir
	if dir == "" {
		dir = s.cfg.Archive.Dir
	}
	pattern := params.Pattern
	if pattern == "" {
		pattern = s.cfg.Archive.Pattern
	}

	if params.Latest {
		out, err := archive.IngestLatest(s.store, dir, pattern, params.Device)
		if err != nil {
			return createErrorResponse("archive_scan", err)
		}
		debug.LogMCP("archive latest %s: %s -> %s", dir, out.Entry.Path, out.SnapshotID)
		return createJSONResponse(map[string]interface{}{
			"dir":         dir,
			"pattern":     pattern,
			"entry":       out.Entry,
			"snapshot_id": out.SnapshotID,
		})
	}

	entries, err := archive.Scan(dir, pattern)
	if err != nil {
		return createErrorResponse("archive_scan", err)
	}

	if !params.Ingest {
		return createJSONResponse(map[string]interface{}{
			"dir":     dir,
			"pattern": pattern,
			"count":   len(entries),
			"entries": entries,
		})
	}

	report, err := archive.IngestAll(ctx, s.store, entries, s.cfg.Archive.Parallelism)
	if report == nil {
		// Only a dead batch comes back without a report; per-file
		// failures ride inside it.
		return createErrorResponse("archive_scan", err)
	}

	type ingestedCapture struct {
		Entry      archive.Entry    `json:"entry"`
		SnapshotID types.SnapshotID `json:"snapshot_id,omitempty"`
		Error      string           `json:"error,omitempty"`
	}
	ingested := make([]ingestedCapture, len(report.Ingested))
	for i, r := range report.Ingested {
		ingested[i] = ingestedCapture{Entry: r.Entry, SnapshotID: r.SnapshotID}
		if r.Err != nil {
			ingested[i].Error = r.Err.Error()
		}
	}

	debug.LogMCP("archive scan %s: %d captures, %d failed", dir, len(entries), report.Failed)
	return createJSONResponse(map[string]interface{}{
		"dir":      dir,
		"pattern":  pattern,
		"count":    len(entries),
		"ingested": ingested,
		"failed":   report.Failed,
	})
}

func (s *Server) handleInfo(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var params InfoParams
	if len(req.Params.Arguments) > 0 {
		if err := json.Unmarshal(req.Params.Arguments, &params); err != nil {
			return createErrorResponse("info", fmt.Errorf("invalid parameters: %w", err))
		}
	}

	tool := strings.ToLower(strings.TrimSpace(params.Tool))
	switch tool {
	case "":
		return createJSONResponse(map[string]interface{}{
			"server":  ServerName,
			"version": version.Version,
			"tools": map[string]string{
				"ingest_snapshot": "Parse a uiautomator XML dump into a snapshot",
				"resolve_element": "Re-find a captured element in a snapshot with a full decision trace",
				"analyze_node":    "Identifiability metrics for a subtree",
				"list_snapshots":  "List ingested snapshots",
				"evict_snapshot":  "Drop a snapshot and its cached analyses",
				"archive_scan":    "Scan (and optionally ingest) a capture directory",
				"info":            "This help; 'info version' for build and cache health",
			},
			"workflow": []string{
				"1. ingest_snapshot with a fresh dump, or archive_scan with ingest=true",
				"2. resolve_element with the descriptor captured at selection time",
				"3. read the trace whenever the outcome surprises you",
			},
		})

	case "version":
		return createJSONResponse(map[string]interface{}{
			"name":           "version",
			"server_name":    ServerName,
			"server_version": version.FullInfo(),
			"build_id":       version.BuildID(),
			"go_version":     runtime.Version(),
			"platform":       runtime.GOOS + "/" + runtime.GOARCH,
			"snapshots":      s.store.Len(),
			"cache":          s.cache.Stats(),
			"cache_health":   s.cache.HealthStatus(),
			"capabilities": []string{
				"stdio_transport",
				"deterministic_resolution",
				"strategy_fallback_chain",
				"decision_trace",
				"hidden_parent_substitution",
				"subtree_analysis",
				"analysis_cache",
				"capture_archive",
			},
		})

	case "ingest_snapshot":
		return createJSONResponse(map[string]interface{}{
			"name":        "ingest_snapshot",
			"description": "Parse a uiautomator XML dump into an immutable snapshot. Returns the snapshot id used by every other tool.",
			"parameters": map[string]string{
				"xml":    "REQUIRED: raw hierarchy dump XML",
				"device": "device serial or label recorded on the snapshot",
			},
			"notes": []string{
				"Snapshots are immutable; a changed screen is a new ingest.",
				"Re-ingesting identical markup yields a fresh id.",
			},
			"example": `{"xml": "<hierarchy>...</hierarchy>", "device": "emulator-5554"}`,
		})

	case "resolve_element":
		return createJSONResponse(map[string]interface{}{
			"name":        "resolve_element",
			"description": "Run the strategy chain against a snapshot until one strategy produces a qualified winner. The response always carries one trace step per strategy tried.",
			"parameters": map[string]string{
				"snapshot_id": "REQUIRED: snapshot to search",
				"descriptor":  "REQUIRED: captured element identity (text, content_desc, resource_id, class, bounds, path, ...)",
				"chain":       "strategy names in order; defaults to the configured chain",
				"thresholds":  "per-strategy qualification overrides in [0,1]",
			},
			"outcomes": map[string]string{
				"matched":   "exactly one qualified winner",
				"no-match":  "every strategy fell through; see trace reasons",
				"ambiguous": "a fail-closed strategy found co-qualified candidates",
			},
			"aliases": "descriptor accepts contentDesc/content-desc/desc, resourceId/resource-id/id, parentClass/parent-class; 'target' works for 'descriptor'. Unknown fields come back in warnings.",
			"example": `{"snapshot_id": "snap_QSVvUGAD8hl", "descriptor": {"resource_id": "com.app:id/send", "class": "android.widget.Button"}, "chain": ["strict", "standard"]}`,
		})

	case "analyze_node":
		return createJSONResponse(map[string]interface{}{
			"name":        "analyze_node",
			"description": "Identifiability metrics for the subtree at a path: meaningful fields, uniqueness, stability, and the weakest strategy expected to re-find the root.",
			"parameters": map[string]string{
				"snapshot_id": "REQUIRED: snapshot to analyze",
				"path":        "subtree root path like 0/3/2; empty string is the root",
			},
			"example": `{"snapshot_id": "snap_QSVvUGAD8hl", "path": "0/1"}`,
		})

	case "list_snapshots":
		return createJSONResponse(map[string]interface{}{
			"name":        "list_snapshots",
			"description": "List ingested snapshots, sorted by id, with device, node count, and capture time.",
			"parameters":  map[string]string{},
			"example":     `{}`,
		})

	case "evict_snapshot":
		return createJSONResponse(map[string]interface{}{
			"name":        "evict_snapshot",
			"description": "Drop a snapshot and every cached analysis derived from it. Evicting an unknown id reports evicted=false rather than failing.",
			"parameters": map[string]string{
				"snapshot_id": "REQUIRED: snapshot to evict",
			},
			"example": `{"snapshot_id": "snap_QSVvUGAD8hl"}`,
		})

	case "archive_scan":
		return createJSONResponse(map[string]interface{}{
			"name":        "archive_scan",
			"description": "Scan a capture directory for ui_dump_{device}_{timestamp}.xml files, newest first. With ingest=true every capture is loaded and its snapshot id reported; per-file failures are reported per entry. With latest=true only the newest capture is ingested.",
			"parameters": map[string]string{
				"dir":     "capture directory; defaults to the configured archive dir",
				"pattern": "filename glob; defaults to the configured pattern",
				"ingest":  "ingest every scanned capture",
				"latest":  "ingest only the newest capture and return its snapshot id",
				"device":  "with latest, restrict to one device serial",
			},
			"example": `{"dir": "./captures", "latest": true, "device": "emulator-5554"}`,
		})

	case "info":
		return createJSONResponse(map[string]interface{}{
			"name":        "info",
			"description": "Help for the server and its tools.",
			"parameters": map[string]string{
				"tool": "tool name to describe, or 'version'",
			},
			"example": `{"tool": "resolve_element"}`,
		})

	default:
		return createErrorResponse("info", fmt.Errorf("unknown tool %q; known tools: ingest_snapshot, resolve_element, analyze_node, list_snapshots, evict_snapshot, archive_scan, info, version", params.Tool))
	}
}
