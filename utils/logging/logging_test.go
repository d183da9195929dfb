package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerFanout(t *testing.T) {
	stream := new(bytes.Buffer)
	console := new(bytes.Buffer)

	logger := NewLogger(stream, console, "campus_hub", slog.LevelInfo)
	logger.Info("task assigned", "task_id", "abc", "code", TASK_ASSIGN)
	logger.Debug("dropped")

	var record map[string]interface{}
	require.NoError(t, json.Unmarshal(stream.Bytes(), &record))
	assert.Equal(t, "task assigned", record["msg"])
	assert.Equal(t, "campus_hub", record["service"])
	assert.Equal(t, "TASK_ASSIGN", record["code"])

	assert.True(t, strings.Contains(console.String(), "task assigned"))
	assert.False(t, strings.Contains(console.String(), "dropped"))
}

func TestNewLoggerSingleStream(t *testing.T) {
	stream := new(bytes.Buffer)
	NewLogger(stream, nil, "audit", slog.LevelInfo).Info("hello")
	assert.Equal(t, 1, strings.Count(stream.String(), "\n"))
}

func TestNewRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "hub.log")

	file, err := NewRotatingFile(path, 1)
	require.NoError(t, err)
	defer file.Close()

	_, err = file.Write([]byte("line\n"))
	require.NoError(t, err)
	assert.FileExists(t, path)
}
