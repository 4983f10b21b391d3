package mqttsn

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestLogrusLogger(t *testing.T) {
	t.Run("implements Logger", func(_ *testing.T) {
		var _ Logger = NewLogrusLogger(nil)
	})

	t.Run("writes structured fields", func(t *testing.T) {
		buf := &bytes.Buffer{}
		base := logrus.New()
		base.SetOutput(buf)
		base.SetLevel(logrus.DebugLevel)

		logger := NewLogrusLogger(base)
		logger.Info("client connected", LogFields{LogFieldClientID: "c1"})

		output := buf.String()
		assert.Contains(t, output, "client connected")
		assert.Contains(t, output, "c1")
	})

	t.Run("with fields chains", func(t *testing.T) {
		buf := &bytes.Buffer{}
		base := logrus.New()
		base.SetOutput(buf)

		child := NewLogrusLogger(base).WithFields(LogFields{LogFieldClientID: "c1"})
		child.Warn("slow peer", LogFields{LogFieldDuration: "2s"})

		output := buf.String()
		assert.Contains(t, output, "c1")
		assert.Contains(t, output, "slow peer")
	})

	t.Run("level mapping round trips", func(t *testing.T) {
		logger := NewLogrusLogger(logrus.New())

		logger.SetLevel(LogLevelDebug)
		assert.Equal(t, LogLevelDebug, logger.Level())

		logger.SetLevel(LogLevelError)
		assert.Equal(t, LogLevelError, logger.Level())
	})
}
