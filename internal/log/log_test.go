package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetLoggerWritesAtConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	backend, err := New(&buf, "INFO")
	require.NoError(t, err)

	logger := backend.GetLogger("test-module")
	logger.Debug("should not appear")
	logger.Info("should appear")

	output := buf.String()
	require.NotContains(t, output, "should not appear")
	require.Contains(t, output, "should appear")
	require.Contains(t, output, "test-module")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(nil, "NOT_A_LEVEL")
	require.Error(t, err)
}

func TestNewDefaultsLevelWhenEmpty(t *testing.T) {
	var buf bytes.Buffer
	backend, err := New(&buf, "")
	require.NoError(t, err)
	logger := backend.GetLogger("m")
	logger.Info("hi")
	require.Contains(t, buf.String(), "hi")
}
