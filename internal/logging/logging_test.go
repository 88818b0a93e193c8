package logging_test

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/Mohsinsiddi/w3vault/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New("debug", logging.FormatJSON, &buf)
	require.NoError(t, err)

	logger.WithField("recipient", "0xabc").Debug("grant added")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "grant added", line["msg"])
	assert.Equal(t, "0xabc", line["recipient"])
	assert.Equal(t, "debug", line["level"])
}

func TestNewTextLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.New("warn", logging.FormatText, &buf)
	require.NoError(t, err)

	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
}

func TestNewRejectsBadInput(t *testing.T) {
	_, err := logging.New("loud", logging.FormatText, nil)
	assert.Error(t, err)

	_, err = logging.New("info", "xml", nil)
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	entry := logging.Discard()
	require.NotNil(t, entry)
	entry.Info("nothing happens")
}
