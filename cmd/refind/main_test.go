package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/standardbeagle/refind/internal/archive"
	"github.com/standardbeagle/refind/testhelpers"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// runApp executes the CLI in process, capturing stdout and the exit
// code carried by cli.Exit errors. Code 0 means the command returned
// nil.
func runApp(t *testing.T, args ...string) (string, int) {
	t.Helper()
	app := newApp()
	var out bytes.Buffer
	app.Writer = &out
	// Swallow exit handling so the test process stays alive.
	app.ExitErrHandler = func(*cli.Context, error) {}

	err := app.Run(append([]string{"refind"}, args...))
	code := 0
	if err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			code = 1
		}
	}
	return out.String(), code
}

// loginDump renders a five-node login screen. Arena order: 0 frame,
// 1 linear, 2 username field, 3 password field, 4 login button.
func loginDump() string {
	return testhelpers.Dump(testhelpers.NodeSpec{
		Class:   "android.widget.FrameLayout",
		Package: "com.app",
		Children: []testhelpers.NodeSpec{{
			Class:   "android.widget.LinearLayout",
			Package: "com.app",
			Children: []testhelpers.NodeSpec{
				{
					ContentDesc: "Username",
					ResourceID:  "com.app:id/input_user",
					Class:       "android.widget.EditText",
					Package:     "com.app",
					Bounds:      "[0,300][1080,450]",
					Clickable:   true,
					Focusable:   true,
				},
				{
					ContentDesc: "Password",
					ResourceID:  "com.app:id/input_pass",
					Class:       "android.widget.EditText",
					Package:     "com.app",
					Bounds:      "[0,470][1080,620]",
					Clickable:   true,
					Focusable:   true,
					Password:    true,
				},
				{
					Text:       "Log in",
					ResourceID: "com.app:id/btn_login",
					Class:      "android.widget.Button",
					Package:    "com.app",
					Bounds:     "[0,650][1080,800]",
					Clickable:  true,
					Focusable:  true,
				},
			},
		}},
	})
}

func writeDump(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(loginDump()), 0o644))
	return path
}

func TestResolveCommandMatched(t *testing.T) {
	dump := writeDump(t, t.TempDir(), "screen.xml")

	out, code := runApp(t, "resolve",
		"--snapshot", dump,
		"--target", `{"resource_id": "com.app:id/btn_login", "text": "Log in", "class": "android.widget.Button"}`)

	assert.Equal(t, 0, code)
	assert.Contains(t, out, "outcome: matched")
	assert.Contains(t, out, "path=0/2")
	assert.Contains(t, out, "via strict")
}

func TestResolveCommandNoMatchExitsOne(t *testing.T) {
	dump := writeDump(t, t.TempDir(), "screen.xml")

	out, code := runApp(t, "resolve",
		"--snapshot", dump,
		"--target", `{"text": "Sign out"}`,
		"--json")

	assert.Equal(t, 1, code)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "no-match", result["outcome"])
	assert.NotEmpty(t, result["trace"])
}

func TestResolveCommandChainFlag(t *testing.T) {
	dump := writeDump(t, t.TempDir(), "screen.xml")

	out, code := runApp(t, "resolve",
		"--snapshot", dump,
		"--target", `{"resourceId": "com.app:id/btn_login", "text": "Log in"}`,
		"--chain", "standard",
		"--json")

	assert.Equal(t, 0, code)
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	trace := result["trace"].([]interface{})
	require.Len(t, trace, 1)
	assert.Equal(t, "standard", trace[0].(map[string]interface{})["strategy"])
}

func TestResolveCommandUsageErrors(t *testing.T) {
	dir := t.TempDir()
	dump := writeDump(t, dir, "screen.xml")

	tests := []struct {
		name string
		args []string
	}{
		{"missing snapshot", []string{"resolve", "--target", `{"text": "Log in"}`}},
		{"missing target", []string{"resolve", "--snapshot", dump}},
		{"snapshot file absent", []string{"resolve", "--snapshot", filepath.Join(dir, "nope.xml"), "--target", `{"text": "Log in"}`}},
		{"target not json", []string{"resolve", "--snapshot", dump, "--target", "not json"}},
		{"empty target", []string{"resolve", "--snapshot", dump, "--target", `{}`}},
		{"bad bounds", []string{"resolve", "--snapshot", dump, "--target", `{"bounds": "wherever"}`}},
		{"unknown strategy", []string{"resolve", "--snapshot", dump, "--target", `{"text": "Log in"}`, "--chain", "telepathy"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, code := runApp(t, tt.args...)
			assert.Equal(t, 2, code)
		})
	}
}

func TestResolveCommandTargetFromFile(t *testing.T) {
	dir := t.TempDir()
	dump := writeDump(t, dir, "screen.xml")
	targetPath := filepath.Join(dir, "target.json")
	require.NoError(t, os.WriteFile(targetPath, []byte(`{"content_desc": "Password", "class": "android.widget.EditText"}`), 0o644))

	out, code := runApp(t, "resolve", "--snapshot", dump, "--target", "@"+targetPath)

	assert.Equal(t, 0, code)
	assert.Contains(t, out, "outcome: matched")
	assert.Contains(t, out, "path=0/1")
}

func TestAnalyzeCommand(t *testing.T) {
	dump := writeDump(t, t.TempDir(), "screen.xml")

	out, code := runApp(t, "analyze", "--snapshot", dump, "--path", "0/2")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "0/2")
	assert.Contains(t, out, "suggested:")
	assert.Contains(t, out, "confidence:")

	out, code = runApp(t, "analyze", "--snapshot", dump, "--path", "0/2", "--json")
	assert.Equal(t, 0, code)
	var metrics map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &metrics))
	assert.Equal(t, "0/2", metrics["path"])
	assert.Equal(t, float64(1), metrics["nodes"])

	_, code = runApp(t, "analyze", "--snapshot", dump, "--path", "9/9")
	assert.Equal(t, 2, code)

	_, code = runApp(t, "analyze", "--snapshot", dump, "--path", "x/y")
	assert.Equal(t, 2, code)
}

func TestArchiveScanCommand(t *testing.T) {
	dir := t.TempDir()
	writeDump(t, dir, "ui_dump_alpha_20250810_101500.xml")
	writeDump(t, dir, "ui_dump_beta_20250811_093000.xml")
	writeDump(t, dir, "window_dump.xml")

	out, code := runApp(t, "archive", "scan", "--dir", dir)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "ui_dump_alpha_20250810_101500.xml")
	assert.Contains(t, out, "ui_dump_beta_20250811_093000.xml")
	assert.NotContains(t, out, "window_dump.xml")

	// Newest first.
	assert.Less(t, strings.Index(out, "beta"), strings.Index(out, "alpha"))
}

func TestArchiveIngestCommandRecordsManifest(t *testing.T) {
	dir := t.TempDir()
	writeDump(t, dir, "ui_dump_alpha_20250810_101500.xml")
	writeDump(t, dir, "ui_dump_alpha_20250811_093000.xml")

	out, code := runApp(t, "archive", "ingest", "--dir", dir)
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "2 captures ingested")

	m, err := archive.LoadManifest(dir)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, "alpha", m.Device)
	require.Len(t, m.Captures, 2)
	for _, capture := range m.Captures {
		assert.NotEmpty(t, capture.SnapshotID)
	}

	// Re-running does not duplicate manifest entries.
	_, code = runApp(t, "archive", "ingest", "--dir", dir)
	assert.Equal(t, 0, code)
	m, err = archive.LoadManifest(dir)
	require.NoError(t, err)
	assert.Len(t, m.Captures, 2)
}

func TestArchiveIngestCommandReportsFailures(t *testing.T) {
	dir := t.TempDir()
	writeDump(t, dir, "ui_dump_alpha_20250810_101500.xml")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ui_dump_beta_20250811_093000.xml"), []byte("truncated"), 0o644))

	out, code := runApp(t, "archive", "ingest", "--dir", dir)
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "failed")

	// The good capture still lands in the manifest.
	m, err := archive.LoadManifest(dir)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Len(t, m.Captures, 1)
}

func TestVersionCommand(t *testing.T) {
	out, code := runApp(t, "version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "refind")
	assert.Contains(t, out, "platform:")
}

func TestSplitChain(t *testing.T) {
	assert.Nil(t, splitChain(""))
	assert.Equal(t, []string{"strict", "standard"}, splitChain("strict,standard"))
	assert.Equal(t, []string{"strict", "standard"}, splitChain(" strict , ,standard "))
}

func TestLoadTarget(t *testing.T) {
	d, warnings, err := loadTarget(`{"resourceId": "com.app:id/send", "hue": 3}`)
	require.NoError(t, err)
	assert.Equal(t, "com.app:id/send", d.ResourceID)
	require.Len(t, warnings, 1)
	assert.Equal(t, "hue", warnings[0].Name)

	_, _, err = loadTarget("")
	assert.Error(t, err)

	_, _, err = loadTarget("not json")
	assert.Error(t, err)

	_, _, err = loadTarget("@/no/such/file.json")
	assert.Error(t, err)
}
