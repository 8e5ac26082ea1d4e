package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "psinterop.log")
	require.NoError(t, Init("debug", path, false))
	t.Cleanup(func() { Close() })

	assert.Equal(t, logrus.DebugLevel, Get().GetLevel())

	WithFields(logrus.Fields{"key": "positions"}).Debug("registered buffer")
	Infof("mapped %d bytes", 64)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "registered buffer")
	assert.Contains(t, string(data), "key=positions")
	assert.Contains(t, string(data), "mapped 64 bytes")
}

func TestInitUnknownLevelFallsBack(t *testing.T) {
	require.NoError(t, Init("chatty", "", false))
	t.Cleanup(func() { Close() })
	assert.Equal(t, logrus.InfoLevel, Get().GetLevel())
}

func TestGetWithoutInit(t *testing.T) {
	require.NoError(t, Close())
	assert.NotNil(t, Get())
}
