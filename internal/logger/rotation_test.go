package logger

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRotatingWriterCreatesDirectory(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "subdir", "feedbackbot.log")

	rw, err := NewRotatingWriter(logFile, 10, 7, false)
	require.NoError(t, err)
	defer rw.Close()

	_, err = os.Stat(logFile)
	assert.NoError(t, err)
}

func TestRotatingWriterAppends(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "feedbackbot.log")
	require.NoError(t, os.WriteFile(logFile, []byte("earlier\n"), 0644))

	rw, err := NewRotatingWriter(logFile, 1, 7, false)
	require.NoError(t, err)

	data := []byte("feedback recorded\n")
	n, err := rw.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	require.NoError(t, rw.Close())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "earlier\nfeedback recorded\n", string(content))
}

func rotated(t *testing.T, logFile string) []string {
	t.Helper()
	files, err := filepath.Glob(logFile + ".*")
	require.NoError(t, err)
	return files
}

func TestRotatingWriterRotatesAtLimit(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "feedbackbot.log")
	rw, err := newRotatingWriter(logFile, 10, 0, false)
	require.NoError(t, err)

	_, err = rw.Write([]byte("12345678"))
	require.NoError(t, err)
	assert.Empty(t, rotated(t, logFile))

	_, err = rw.Write([]byte("abcdef"))
	require.NoError(t, err)
	_, err = rw.Write([]byte("ghijkl"))
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	files := rotated(t, logFile)
	require.Len(t, files, 2)

	current, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "ghijkl", string(current))
}

func TestRotatingWriterOversizedWriteIsKeptWhole(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "feedbackbot.log")
	rw, err := newRotatingWriter(logFile, 4, 0, false)
	require.NoError(t, err)

	_, err = rw.Write([]byte("a long line"))
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	current, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "a long line", string(current))
	assert.Empty(t, rotated(t, logFile))
}

func TestRotatingWriterCompressesRotatedFiles(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "feedbackbot.log")
	rw, err := newRotatingWriter(logFile, 5, 0, true)
	require.NoError(t, err)

	_, err = rw.Write([]byte("first"))
	require.NoError(t, err)
	_, err = rw.Write([]byte("second"))
	require.NoError(t, err)
	require.NoError(t, rw.Close())

	files := rotated(t, logFile)
	require.Len(t, files, 1)
	require.True(t, strings.HasSuffix(files[0], ".gz"))

	f, err := os.Open(files[0])
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	body, err := io.ReadAll(gz)
	require.NoError(t, err)
	assert.Equal(t, "first", string(body))
}

func TestRotatingWriterWriteAfterClose(t *testing.T) {
	rw, err := NewRotatingWriter(filepath.Join(t.TempDir(), "feedbackbot.log"), 10, 7, false)
	require.NoError(t, err)

	require.NoError(t, rw.Close())
	require.NoError(t, rw.Close())

	_, err = rw.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestRotatingWriterPrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, "feedbackbot.log")

	oldFile := logFile + ".20200101-120000.000"
	freshFile := logFile + ".20990101-120000.000"
	unrelated := filepath.Join(dir, "ledger.db")
	for _, f := range []string{oldFile, freshFile, unrelated} {
		require.NoError(t, os.WriteFile(f, []byte("x"), 0644))
	}
	old := time.Now().AddDate(0, 0, -10)
	require.NoError(t, os.Chtimes(oldFile, old, old))
	require.NoError(t, os.Chtimes(unrelated, old, old))

	rw, err := NewRotatingWriter(logFile, 10, 7, false)
	require.NoError(t, err)
	defer rw.Close()

	_, err = os.Stat(oldFile)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(freshFile)
	assert.NoError(t, err)
	_, err = os.Stat(unrelated)
	assert.NoError(t, err)
}
