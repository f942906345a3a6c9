package debuglog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

func TestNewDisabledIsNop(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := New(Options{Dir: dir})
	require.NoError(t, err)
	logger.Info("dropped")

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "disabled logger must not create the log dir")
}

func TestNewWritesJSONLines(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	logger, err := New(Options{Enabled: true, Dir: dir})
	require.NoError(t, err)

	logger.Debug("tool call", zap.String("tool", "readFile"), zap.Int("iteration", 2))
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(Path(dir))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	line := lines[0]
	assert.Equal(t, "tool call", gjson.Get(line, "msg").String())
	assert.Equal(t, "debug", gjson.Get(line, "level").String())
	assert.Equal(t, "readFile", gjson.Get(line, "tool").String())
	assert.Equal(t, int64(2), gjson.Get(line, "iteration").Int())
	assert.True(t, gjson.Get(line, "timestamp").Exists())
}

func TestNewRespectsLevel(t *testing.T) {
	dir := t.TempDir()
	logger, err := New(Options{Enabled: true, Dir: dir, Level: "warn"})
	require.NoError(t, err)

	logger.Info("quiet")
	logger.Warn("loud")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(Path(dir))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "quiet")
	assert.Contains(t, string(data), "loud")
}

func TestNewRejectsBadOptions(t *testing.T) {
	_, err := New(Options{Enabled: true})
	assert.Error(t, err)

	_, err = New(Options{Enabled: true, Dir: t.TempDir(), Level: "chatty"})
	assert.Error(t, err)
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	l := zap.NewExample()
	assert.Same(t, l, OrNop(l))
}
