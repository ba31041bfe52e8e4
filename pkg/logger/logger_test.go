package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoggerDefaults(t *testing.T) {
	l := newLogger()

	formatter, ok := l.Formatter.(*logrus.TextFormatter)
	require.True(t, ok)
	assert.Equal(t, time.RFC3339Nano, formatter.TimestampFormat)
	assert.True(t, formatter.FullTimestamp)
}

func TestGetLoggerFromContext(t *testing.T) {
	entry := logrus.NewEntry(logrus.New()).WithField("skill", "pdf")
	ctx := WithLogger(context.Background(), entry)

	got := G(ctx)
	assert.Equal(t, "pdf", got.Data["skill"])
}

func TestGetLoggerFallsBackToGlobal(t *testing.T) {
	got := G(context.Background())
	assert.Equal(t, L.Logger, got.Logger)
}

func TestSetup(t *testing.T) {
	original := L.Logger.GetLevel()
	defer L.Logger.SetLevel(original)
	defer SetLogFormat("fmt")

	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(os.Stderr)

	require.NoError(t, Setup("debug", "json"))
	assert.Equal(t, logrus.DebugLevel, L.Logger.GetLevel())

	L.Debug("hello")
	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "hello", line["message"])
	assert.Equal(t, "debug", line["logLevel"])
	assert.Contains(t, line, "timestamp")

	err := Setup("loud", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}
