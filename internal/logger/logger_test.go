package logger

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func capture(t *testing.T, verbose bool) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetVerbose(verbose)
	t.Cleanup(func() {
		SetVerbose(false)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestSetVerbose(t *testing.T) {
	capture(t, false)
	assert.False(t, IsVerbose())
	assert.True(t, Enabled(LevelWarn))
	assert.False(t, Enabled(LevelInfo))

	SetVerbose(true)
	assert.True(t, IsVerbose())
	assert.True(t, Enabled(LevelDebug))

	SetVerbose(false)
	assert.False(t, IsVerbose())
}

func TestLevels_Quiet(t *testing.T) {
	buf := capture(t, false)

	Debug("hidden %d", 1)
	Info("hidden %d", 2)
	Section("Hidden")
	Warn("shown %s", "warn")
	Error("shown %s", "error")

	assert.Equal(t, "[WARN] shown warn\n[ERROR] shown error\n", buf.String())
}

func TestLevels_Verbose(t *testing.T) {
	buf := capture(t, true)

	Debug("saved %s v%d", "b1", 2)
	Info("reindexed %d documents", 3)
	Section("Pipeline")

	assert.Equal(t, "[DEBUG] saved b1 v2\n[INFO] reindexed 3 documents\n\n=== Pipeline ===\n", buf.String())
}

func TestSetLevel(t *testing.T) {
	buf := capture(t, false)
	SetLevel(LevelError)

	Warn("dropped")
	Error("kept")

	assert.Equal(t, "[ERROR] kept\n", buf.String())
}

func TestEntry_Fields(t *testing.T) {
	buf := capture(t, true)

	run := With("run", "abc")
	run.Debug("entered %s", "synthesis")
	run.With("doc", "s1").Warn("not persisted")
	run.Info("done")

	assert.Equal(t,
		"[DEBUG] run=abc entered synthesis\n"+
			"[WARN] run=abc doc=s1 not persisted\n"+
			"[INFO] run=abc done\n",
		buf.String())
}

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "LOG", Level(42).String())
}
