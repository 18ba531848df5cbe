package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	apperrors "github.com/standardbeagle/refind/internal/errors"
	"github.com/standardbeagle/refind/internal/store"
	"github.com/standardbeagle/refind/internal/types"
	"github.com/standardbeagle/refind/testhelpers"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func screen(text string) testhelpers.NodeSpec {
	return testhelpers.NodeSpec{
		Class:  "android.widget.FrameLayout",
		Bounds: "[0,0][1080,1920]",
		Children: []testhelpers.NodeSpec{
			{Class: "android.widget.TextView", Text: text, Bounds: "[0,0][400,100]"},
		},
	}
}

func writeCapture(t *testing.T, dir, name string, root testhelpers.NodeSpec) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(testhelpers.Dump(root)), 0o644))
	return path
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		name       string
		wantDevice string
		wantTime   time.Time
		wantOK     bool
	}{
		{
			name:       "ui_dump_emulator-5554_20250812_093045.xml",
			wantDevice: "emulator-5554",
			wantTime:   time.Date(2025, 8, 12, 9, 30, 45, 0, time.Local),
			wantOK:     true,
		},
		{
			name:       "ui_dump_RF8M33XKPLK_20240101_000000.xml",
			wantDevice: "RF8M33XKPLK",
			wantTime:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.Local),
			wantOK:     true,
		},
		{
			// Full paths work; only the base name is parsed.
			name:       "/captures/session/ui_dump_abc_20250812_093045.xml",
			wantDevice: "abc",
			wantTime:   time.Date(2025, 8, 12, 9, 30, 45, 0, time.Local),
			wantOK:     true,
		},
		{name: "session.toml"},
		{name: "window_dump.xml"},
		{name: "ui_dump_.xml"},
		{name: "ui_dump_dev_2025.xml"},
		{name: "ui_dump_dev_20250812_093045.xml.bak"},
		{name: "ui_dump_dev_20250812_093045.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			device, capturedAt, ok := ParseFilename(tt.name)
			require.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantDevice, device)
			assert.True(t, tt.wantTime.Equal(capturedAt))
		})
	}
}

func TestScan(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir, "ui_dump_alpha_20250810_120000.xml", screen("one"))
	writeCapture(t, dir, "ui_dump_alpha_20250811_120000.xml", screen("two"))
	writeCapture(t, dir, "ui_dump_beta_20250812_120000.xml", screen("three"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "window_dump.xml"), []byte("<hierarchy/>"), 0o644))

	entries, err := Scan(dir, "")
	require.NoError(t, err)
	require.Len(t, entries, 3)

	// Newest first.
	assert.Equal(t, "beta", entries[0].Device)
	assert.Equal(t, "alpha", entries[1].Device)
	assert.Equal(t, "alpha", entries[2].Device)
	assert.True(t, entries[0].CapturedAt.After(entries[1].CapturedAt))
	assert.True(t, entries[1].CapturedAt.After(entries[2].CapturedAt))
	for _, e := range entries {
		assert.Positive(t, e.Size)
	}
}

func TestScanCustomPattern(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir, "ui_dump_alpha_20250810_120000.xml", screen("one"))
	writeCapture(t, dir, "ui_dump_beta_20250812_120000.xml", screen("two"))

	entries, err := Scan(dir, "ui_dump_beta_*.xml")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "beta", entries[0].Device)
}

func TestScanMissingDir(t *testing.T) {
	entries, err := Scan(filepath.Join(t.TempDir(), "does-not-exist"), "")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestIngestAll(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir, "ui_dump_alpha_20250810_120000.xml", screen("one"))
	writeCapture(t, dir, "ui_dump_alpha_20250811_120000.xml", screen("two"))
	writeCapture(t, dir, "ui_dump_beta_20250812_120000.xml", screen("three"))
	corrupt := filepath.Join(dir, "ui_dump_gamma_20250813_120000.xml")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a dump"), 0o644))

	entries, err := Scan(dir, "")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	st := store.New(nil)
	report, err := IngestAll(context.Background(), st, entries, 2)
	require.Error(t, err, "the corrupt capture surfaces in the aggregate error")
	assert.True(t, apperrors.IsArchive(err))

	require.NotNil(t, report)
	require.Len(t, report.Ingested, 4)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, st.Len())

	// Report order follows scan order, not completion order.
	for i, r := range report.Ingested {
		assert.Equal(t, entries[i].Path, r.Entry.Path)
	}

	for _, r := range report.Ingested {
		if r.Entry.Path == corrupt {
			assert.Error(t, r.Err)
			assert.Empty(t, r.SnapshotID)
			continue
		}
		assert.NoError(t, r.Err)
		assert.NotEmpty(t, r.SnapshotID)
		_, getErr := st.Get(r.SnapshotID)
		assert.NoError(t, getErr)
	}
}

func TestIngestAllCanceled(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir, "ui_dump_alpha_20250810_120000.xml", screen("one"))
	entries, err := Scan(dir, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := store.New(nil)
	_, err = IngestAll(ctx, st, entries, 4)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, st.Len())
}

func TestIngestLatest(t *testing.T) {
	dir := t.TempDir()
	writeCapture(t, dir, "ui_dump_alpha_20250810_120000.xml", screen("one"))
	writeCapture(t, dir, "ui_dump_alpha_20250811_120000.xml", screen("two"))
	writeCapture(t, dir, "ui_dump_beta_20250812_120000.xml", screen("three"))

	st := store.New(nil)

	latest, err := IngestLatest(st, dir, "", "")
	require.NoError(t, err)
	assert.Equal(t, "beta", latest.Entry.Device)
	assert.NotEmpty(t, latest.SnapshotID)

	alpha, err := IngestLatest(st, dir, "", "alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", alpha.Entry.Device)
	assert.True(t, alpha.Entry.CapturedAt.Equal(time.Date(2025, 8, 11, 12, 0, 0, 0, time.Local)))

	// A pattern narrows the scan the same way it does for Scan.
	patterned, err := IngestLatest(st, dir, "ui_dump_alpha_*.xml", "")
	require.NoError(t, err)
	assert.Equal(t, "alpha", patterned.Entry.Device)

	_, err = IngestLatest(st, dir, "", "gamma")
	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))

	assert.Equal(t, 3, st.Len())
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()

	m := &Manifest{
		Device:  "emulator-5554",
		Package: "com.example.app",
		Started: time.Date(2025, 8, 12, 9, 0, 0, 0, time.UTC),
		Notes:   "login flow regression pass",
	}
	m.AddCapture(Entry{
		Path:       filepath.Join(dir, "ui_dump_emulator-5554_20250812_093045.xml"),
		Device:     "emulator-5554",
		CapturedAt: time.Date(2025, 8, 12, 9, 30, 45, 0, time.UTC),
	}, types.SnapshotID("snap_Kx9fQ2"))

	require.NoError(t, WriteManifest(dir, m))

	loaded, err := LoadManifest(dir)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	assert.Equal(t, m.Device, loaded.Device)
	assert.Equal(t, m.Package, loaded.Package)
	assert.Equal(t, m.Notes, loaded.Notes)
	assert.True(t, m.Started.Equal(loaded.Started))

	require.Len(t, loaded.Captures, 1)
	assert.Equal(t, "ui_dump_emulator-5554_20250812_093045.xml", loaded.Captures[0].File)
	assert.Equal(t, "snap_Kx9fQ2", loaded.Captures[0].SnapshotID)
	assert.True(t, m.Captures[0].CapturedAt.Equal(loaded.Captures[0].CapturedAt))
}

func TestLoadManifestAbsent(t *testing.T) {
	m, err := LoadManifest(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestLoadManifestMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ManifestName), []byte("device = [unclosed"), 0o644))

	_, err := LoadManifest(dir)
	require.Error(t, err)
	assert.True(t, apperrors.IsArchive(err))
}

func TestWatchIngestsNewCaptures(t *testing.T) {
	dir := t.TempDir()
	st := store.New(nil)

	type ingested struct {
		entry Entry
		id    types.SnapshotID
		err   error
	}
	events := make(chan ingested, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, st, dir, func(entry Entry, id types.SnapshotID, err error) {
			events <- ingested{entry, id, err}
		})
	}()

	// Let the watch register before files start arriving.
	time.Sleep(100 * time.Millisecond)

	writeCapture(t, dir, "ui_dump_emulator-5554_20250812_093045.xml", screen("Hello"))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	select {
	case got := <-events:
		require.NoError(t, got.err)
		assert.Equal(t, "emulator-5554", got.entry.Device)
		assert.NotEmpty(t, got.id)
		_, err := st.Get(got.id)
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the capture to be ingested")
	}

	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, 1, st.Len(), "the noise file was never ingested")
}

func TestWatchReportsIngestFailures(t *testing.T) {
	dir := t.TempDir()
	st := store.New(nil)

	events := make(chan error, 1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, st, dir, func(_ Entry, _ types.SnapshotID, err error) {
			events <- err
		})
	}()

	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "ui_dump_alpha_20250812_093045.xml"),
		[]byte("truncated garbage"), 0o644))

	select {
	case err := <-events:
		require.Error(t, err)
		assert.True(t, apperrors.IsArchive(err))
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the failure callback")
	}

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, st.Len())
}

func TestWatchMissingDir(t *testing.T) {
	st := store.New(nil)
	err := Watch(context.Background(), st, filepath.Join(t.TempDir(), "missing"), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsArchive(err))
}
