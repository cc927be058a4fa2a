package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBufferKeepsLinesInOrder(t *testing.T) {
	buf := NewBuffer(10)

	_, err := buf.Write([]byte("first\n"))
	require.NoError(t, err)
	_, err = buf.Write([]byte("second\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"first", "second"}, buf.Lines())
}

func TestBufferSplitsMultiLineWrites(t *testing.T) {
	buf := NewBuffer(10)

	_, err := buf.Write([]byte("one\ntwo\nthree\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two", "three"}, buf.Lines())
}

func TestBufferDropsOldestWhenFull(t *testing.T) {
	buf := NewBuffer(3)

	buf.Write([]byte("a\n"))
	buf.Write([]byte("b\n"))
	buf.Write([]byte("c\n"))
	buf.Write([]byte("d\n"))

	assert.Equal(t, []string{"b", "c", "d"}, buf.Lines())
}

func TestBufferLinesReturnsSnapshot(t *testing.T) {
	buf := NewBuffer(5)
	buf.Write([]byte("a\n"))

	lines := buf.Lines()
	buf.Write([]byte("b\n"))

	assert.Equal(t, []string{"a"}, lines)
	assert.Equal(t, []string{"a", "b"}, buf.Lines())
}

func TestNewTeesIntoBuffer(t *testing.T) {
	buf := NewBuffer(10)
	logger, err := New("debug", buf)
	require.NoError(t, err)

	logger.Info("crawl started", zap.Int64("task_id", 7))

	lines := buf.Lines()
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "INFO")
	assert.Contains(t, lines[0], "crawl started")
}

func TestNewBufferCoreIgnoresDebug(t *testing.T) {
	buf := NewBuffer(10)
	logger, err := New("debug", buf)
	require.NoError(t, err)

	logger.Debug("noisy poll")

	assert.Empty(t, buf.Lines())
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("shouting", NewBuffer(10))
	assert.Error(t, err)
}
