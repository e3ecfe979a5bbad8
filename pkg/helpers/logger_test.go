package helpers

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_ProductionWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	l := newLogger(&buf, "portal", "production", "")
	assert.Equal(t, logrus.InfoLevel, l.GetLevel())

	buf.Reset()
	LogError(l, "dispatch failed", errors.New("smtp down"), logrus.Fields{"template": "verify_email"})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "dispatch failed", entry["msg"])
	assert.Equal(t, "smtp down", entry["error"])
	assert.Equal(t, "verify_email", entry["template"])
}

func TestNewLogger_LevelOverride(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, logrus.DebugLevel, newLogger(&buf, "portal", "development", "").GetLevel())
	assert.Equal(t, logrus.WarnLevel, newLogger(&buf, "portal", "development", "warn").GetLevel())
	assert.Equal(t, logrus.InfoLevel, newLogger(&buf, "portal", "staging", "loud").GetLevel())
}
