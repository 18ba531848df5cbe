package debug

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// saveAndRestoreState saves the debug package state and returns a cleanup function
func saveAndRestoreState() func() {
	originalDebug := EnableDebug
	originalMode := mcpMode
	originalOutput := output
	originalFile := logFile
	return func() {
		EnableDebug = originalDebug
		mcpMode = originalMode
		output = originalOutput
		logFile = originalFile
	}
}

func TestEnabled(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")

	EnableDebug = "false"
	assert.False(t, Enabled())

	EnableDebug = "true"
	assert.True(t, Enabled())

	// Invalid build flag value defaults to false
	EnableDebug = "invalid"
	assert.False(t, Enabled())

	// Environment override works at runtime
	EnableDebug = "false"
	t.Setenv("DEBUG", "1")
	assert.True(t, Enabled())

	t.Setenv("DEBUG", "true")
	assert.True(t, Enabled())
}

func TestLog(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")

	var buf bytes.Buffer
	SetOutput(&buf)
	EnableDebug = "true"
	Log("TEST", "Hello %s", "World")

	out := buf.String()
	assert.Contains(t, out, "[DEBUG:TEST]")
	assert.Contains(t, out, "Hello World")
}

func TestLogDark(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")

	var buf bytes.Buffer
	SetOutput(&buf)
	EnableDebug = "false"
	Log("TEST", "should not appear\n")
	assert.Empty(t, buf.String())

	// Must not panic with no writer configured either
	EnableDebug = "true"
	SetOutput(nil)
	Log("TEST", "no writer\n")
}

func TestComponentLogs(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")

	var buf bytes.Buffer
	SetOutput(&buf)
	EnableDebug = "true"

	LogStore("ingested %d nodes\n", 42)
	LogResolver("strategy %s qualified\n", "strict")
	LogCache("invalidated %d entries\n", 3)
	LogArchive("scanned %s\n", "/captures")
	LogMCP("tool %s called\n", "resolve_element")

	out := buf.String()
	for _, component := range []string{"STORE", "RESOLVE", "CACHE", "ARCHIVE", "MCP"} {
		assert.Contains(t, out, "[DEBUG:"+component+"]")
	}
}

func TestMCPModeDropsProtocolWriters(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")
	EnableDebug = "true"

	SetOutput(os.Stderr)
	SetMCPMode(true)
	assert.Nil(t, output, "entering MCP mode must drop a stderr writer")

	// Stdio writers are refused while MCP mode is on.
	SetOutput(os.Stderr)
	assert.Nil(t, output)
	SetOutput(os.Stdout)
	assert.Nil(t, output)

	// Non-stdio writers still work, so file logging stays possible.
	var buf bytes.Buffer
	SetOutput(&buf)
	Log("TEST", "over buffer\n")
	assert.Contains(t, buf.String(), "over buffer")

	SetMCPMode(false)
	SetOutput(os.Stderr)
	assert.Equal(t, os.Stderr, output)
}

func TestInitLogFile(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")
	EnableDebug = "true"

	path, err := InitLogFile()
	require.NoError(t, err)
	assert.True(t, strings.Contains(path, "refind-debug-logs"))

	Log("TEST", "written to file\n")
	require.NoError(t, CloseLogFile())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")

	// Closing again is a no-op.
	assert.NoError(t, CloseLogFile())
	_ = os.Remove(path)
}

func TestInitLogFileInMCPMode(t *testing.T) {
	defer saveAndRestoreState()()
	t.Setenv("DEBUG", "")
	EnableDebug = "true"

	SetMCPMode(true)
	path, err := InitLogFile()
	require.NoError(t, err)

	Log("TEST", "mcp session line\n")
	require.NoError(t, CloseLogFile())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "mcp session line")
	_ = os.Remove(path)
}
