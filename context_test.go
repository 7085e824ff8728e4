package accel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LynnColeArt/accel/backend"
	"github.com/LynnColeArt/accel/backend/cpu"
)

func TestParseVerbosity(t *testing.T) {
	for _, v := range []Verbosity{Silent, Summarize, Verbose, DebugVerbose} {
		got, err := ParseVerbosity(v.String())
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}
	_, err := ParseVerbosity("loud")
	assert.Error(t, err)
}

func TestContextFromEnvironment(t *testing.T) {
	t.Setenv("ACCEL_VERBOSITY", "verbose")
	t.Setenv("ACCEL_ASYNC_REDUCTION", "1")
	t.Setenv("ACCEL_ENABLE_TUNING", "0")
	t.Setenv("ACCEL_API_PROFILE", "true")
	t.Setenv("ACCEL_RECOVERABLE_CODES", "ErrorLaunchOutOfResources")
	t.Setenv("ACCEL_WORKERS", "2")

	c, err := NewContext(WithLogger(quietLogger()))
	require.NoError(t, err)
	assert.Equal(t, Verbose, c.Verbosity())
	assert.True(t, c.AsyncReduction())
	assert.NotNil(t, c.APIProfile())
	assert.True(t, c.Recoverable(backend.ErrorLaunchOutOfResources))
	assert.False(t, c.Recoverable(backend.ErrorInvalidConfiguration))
	assert.Equal(t, cpu.Name, c.Backend().Device().Backend)

	c, err = NewContext(WithLogger(quietLogger()), WithAsyncReduction(false), WithVerbosity(Silent))
	require.NoError(t, err)
	assert.False(t, c.AsyncReduction(), "options override the environment")
	assert.Equal(t, Silent, c.Verbosity())
}

func TestContextRejectsUnknownCodes(t *testing.T) {
	t.Setenv("ACCEL_RECOVERABLE_CODES", "ErrorInvalidValue,ErrorBogus")
	_, err := NewContext(WithLogger(quietLogger()))
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestContextUnknownBackend(t *testing.T) {
	t.Setenv("ACCEL_BACKEND", "quantum")
	_, err := NewContext(WithLogger(quietLogger()))
	assert.ErrorIs(t, err, backend.ErrNoBackend)
}

func TestVerbosityFollowsDebugLevel(t *testing.T) {
	t.Setenv("ACCEL_DEBUG", "1")
	assert.Equal(t, Verbose, verbosityFromEnv())
	t.Setenv("ACCEL_DEBUG", "2")
	assert.Equal(t, DebugVerbose, verbosityFromEnv())
	t.Setenv("ACCEL_DEBUG", "")
	assert.Equal(t, Summarize, verbosityFromEnv())
}

func TestDefaultContext(t *testing.T) {
	a, err := Default()
	require.NoError(t, err)
	b, err := Default()
	require.NoError(t, err)
	assert.Same(t, a, b)
}
