package logger

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoggerLevels(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewWithWriter("warn", buf)

	l.Info("hidden %s", "info")
	assert.Empty(t, buf.String())

	l.Warn("shown %s", "warn")
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "shown warn")

	buf.Reset()
	l.Error(errors.New("boom"))
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), "boom")
}

func TestLoggerUnknownLevelDefaultsToInfo(t *testing.T) {
	buf := new(bytes.Buffer)
	l := NewWithWriter("loud", buf)

	l.Debug("hidden")
	assert.Empty(t, buf.String())

	l.Info("visible")
	assert.Contains(t, buf.String(), "visible")
}
