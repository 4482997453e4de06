package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithOutput(&buf, "debug", "json")
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())

	logger.WithField("post_id", "p-1").Info("published")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "published", entry["msg"])
	assert.Equal(t, "p-1", entry["post_id"])
}

func TestNewInvalidLevelDefaultsToInfo(t *testing.T) {
	logger := NewWithOutput(&bytes.Buffer{}, "chatty", "text")
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
