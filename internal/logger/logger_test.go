package logger

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flysure.log")

	l := New(path)
	l.Info("policy created")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	line := strings.TrimSpace(string(data))
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &entry))
	assert.Equal(t, "policy created", entry["msg"])
	assert.Equal(t, "info", entry["level"])
}

func TestNew_WithoutFile(t *testing.T) {
	l := New("")
	require.NotNil(t, l)
	l.Info("stdout only")
}
