// Package archive manages a directory of timestamped capture files as
// an ingestion surface for the snapshot store. Capture tools drop
// uiautomator dumps named ui_dump_{device}_{timestamp}.xml into the
// directory; the archive scans them, loads them in bulk, and can watch
// the directory for new arrivals.
package archive

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/standardbeagle/refind/internal/debug"
	apperrors "github.com/standardbeagle/refind/internal/errors"
	"github.com/standardbeagle/refind/internal/store"
	"github.com/standardbeagle/refind/internal/types"
)

// DefaultPattern matches the capture files adb-based grabbers write.
const DefaultPattern = "ui_dump_*.xml"

// timestampLayout is the wall clock portion of a capture filename.
const timestampLayout = "20060102_150405"

// filenamePattern extracts the device serial and capture timestamp.
// Files that do not match are not captures and are skipped, never
// errors: capture directories accumulate manifests, screenshots, and
// editor droppings.
var filenamePattern = regexp.MustCompile(`^ui_dump_([^_]+)_(\d{8}_\d{6})\.xml$`)

// Entry is one capture file found in an archive directory.
type Entry struct {
	Path       string    `json:"path"`
	Device     string    `json:"device"`
	CapturedAt time.Time `json:"captured_at"`
	Size       int64     `json:"size"`
}

// ParseFilename extracts capture metadata from a capture file name or
// path. ok is false when the name does not follow the capture naming
// scheme.
func ParseFilename(name string) (device string, capturedAt time.Time, ok bool) {
	m := filenamePattern.FindStringSubmatch(filepath.Base(name))
	if m == nil {
		return "", time.Time{}, false
	}
	ts, err := time.ParseInLocation(timestampLayout, m[2], time.Local)
	if err != nil {
		return "", time.Time{}, false
	}
	return m[1], ts, true
}

// Scan lists the capture files under dir matching pattern, newest
// first. An empty pattern means DefaultPattern. A directory with no
// matching files yields an empty list, not an error.
func Scan(dir, pattern string) ([]Entry, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}

	matches, err := doublestar.FilepathGlob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, apperrors.NewArchiveError(dir, "scan", err)
	}

	entries := make([]Entry, 0, len(matches))
	for _, path := range matches {
		device, capturedAt, ok := ParseFilename(path)
		if !ok {
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		entries = append(entries, Entry{
			Path:       path,
			Device:     device,
			CapturedAt: capturedAt,
			Size:       info.Size(),
		})
	}

	// Newest first; path breaks timestamp ties so the order is stable
	// across runs.
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].CapturedAt.Equal(entries[j].CapturedAt) {
			return entries[i].CapturedAt.After(entries[j].CapturedAt)
		}
		return entries[i].Path < entries[j].Path
	})

	debug.LogArchive("scanned %s: %d captures\n", dir, len(entries))
	return entries, nil
}

// IngestedEntry pairs a capture with the outcome of its ingestion.
type IngestedEntry struct {
	Entry      Entry            `json:"entry"`
	SnapshotID types.SnapshotID `json:"snapshot_id,omitempty"`
	Err        error            `json:"-"`
}

// Report summarizes a batch ingestion. Ingested preserves the order of
// the input entries regardless of which file finished first.
type Report struct {
	Ingested []IngestedEntry `json:"ingested"`
	Failed   int             `json:"failed"`
}

// IngestAll loads every entry into the store, reading at most
// parallelism files at a time. A file that fails to read or parse is
// recorded in the report and does not stop the batch; the returned
// error aggregates the per-file failures. Only context cancellation
// aborts the batch outright.
func IngestAll(ctx context.Context, st *store.Store, entries []Entry, parallelism int) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if parallelism < 1 {
		parallelism = 1
	}

	results := make([]IngestedEntry, len(entries))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)
	for i := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = ingestOne(st, entries[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{Ingested: results}
	multi := apperrors.NewMultiError(nil)
	for _, r := range results {
		if r.Err != nil {
			report.Failed++
			multi.Add(r.Err)
		}
	}

	debug.LogArchive("ingested %d captures, %d failed\n",
		len(results)-report.Failed, report.Failed)
	return report, multi.ErrorOrNil()
}

// IngestLatest ingests the newest capture in dir matching pattern,
// optionally filtered by device serial. An empty device takes the
// newest capture from any device.
func IngestLatest(st *store.Store, dir, pattern, device string) (*IngestedEntry, error) {
	entries, err := Scan(dir, pattern)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		if device != "" && entry.Device != device {
			continue
		}
		out := ingestOne(st, entry)
		if out.Err != nil {
			return nil, out.Err
		}
		return &out, nil
	}

	want := dir
	if device != "" {
		want = device + " in " + dir
	}
	return nil, apperrors.NewNotFoundError("capture", want)
}

func ingestOne(st *store.Store, entry Entry) IngestedEntry {
	out := IngestedEntry{Entry: entry}

	raw, err := os.ReadFile(entry.Path)
	if err != nil {
		out.Err = apperrors.NewArchiveError(entry.Path, "read", err)
		return out
	}
	id, err := st.Ingest(raw, entry.Device)
	if err != nil {
		out.Err = apperrors.NewArchiveError(entry.Path, "ingest", err)
		return out
	}
	out.SnapshotID = id
	return out
}
