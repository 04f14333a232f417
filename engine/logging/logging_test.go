package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (Logger, *observer.ObservedLogs) {
	level := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	core, logs := observer.New(level)
	return NewFromZap(zap.New(core), level), logs
}

func TestLevels(t *testing.T) {
	log, logs := observed()

	log.Debugf("hidden %d", 1)
	log.Infof("shown %d", 2)
	log.Warnf("warn")
	log.Errorf("err")
	assert.False(t, log.DebugEnabled())
	require.Equal(t, 3, logs.Len())
	assert.Equal(t, "shown 2", logs.All()[0].Message)

	log.SetDebug(true)
	assert.True(t, log.DebugEnabled())
	log.Debugf("visible")
	assert.Equal(t, 1, logs.FilterMessage("visible").Len())

	log.SetDebug(false)
	log.Debugf("hidden again")
	assert.Equal(t, 0, logs.FilterMessage("hidden again").Len())
}

func TestNamedSharesLevel(t *testing.T) {
	log, logs := observed()
	child := log.Named("orchestrator")

	log.SetDebug(true)
	assert.True(t, child.DebugEnabled())
	child.Debugf("frame %d", 7)

	entries := logs.FilterMessage("frame 7").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "orchestrator", entries[0].LoggerName)
}

func TestNopLogger(t *testing.T) {
	n := NewNopLogger()
	n.SetDebug(true)
	assert.False(t, n.DebugEnabled())
	assert.NoError(t, n.Sync())
	assert.Equal(t, n, n.Named("x"))

	assert.Equal(t, n, OrNop(nil))
	log, _ := observed()
	assert.Equal(t, log, OrNop(log))
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger("lightcull", true)
	require.NoError(t, err)
	assert.True(t, log.DebugEnabled())

	log, err = NewLogger("", false)
	require.NoError(t, err)
	assert.False(t, log.DebugEnabled())
}
