package log

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRejectsUnknownLevel(t *testing.T) {
	_, err := Build(Options{Level: "chatty"})
	assert.Error(t, err)
}

func TestBuildWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "unplug.log")

	logger, err := Build(Options{Level: "debug", File: path})
	require.NoError(t, err)

	logger.Info("pipeline started")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"pipeline started"`)
	assert.Contains(t, string(data), `"timestamp"`)
}

func TestGetInstanceIsStable(t *testing.T) {
	a := GetInstance()
	b := GetInstance()
	assert.Same(t, a, b)
}
