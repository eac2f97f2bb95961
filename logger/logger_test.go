package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoggerIsUsable(t *testing.T) {
	require.NotNil(t, Log)
	Log.Infof("discarded %d", 1)
}

func TestInit(t *testing.T) {
	prev := Log
	defer func() { Log = prev }()

	require.NoError(t, Init("debug", true))
	assert.NotSame(t, prev, Log)

	assert.Error(t, Init("loud", false))
}
