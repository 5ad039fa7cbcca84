package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLifecycleTransitions(t *testing.T) {
	now := time.Now()
	r := New(time.Second)
	assert.Equal(t, Disconnected, r.State())

	require.NoError(t, r.BeginHandshake(now))
	assert.Equal(t, Handshaking, r.State())

	require.NoError(t, r.Establish(now))
	assert.Equal(t, Established, r.State())

	require.NoError(t, r.BeginClosing())
	assert.Equal(t, Closing, r.State())

	require.NoError(t, r.FinishClosing())
	assert.Equal(t, Disconnected, r.State())
}

func TestIllegalTransitionRejected(t *testing.T) {
	r := New(time.Second)
	err := r.Establish(time.Now())
	require.Error(t, err)
}

func TestHeartbeatCadence(t *testing.T) {
	now := time.Now()
	r := New(10 * time.Second)
	require.NoError(t, r.BeginHandshake(now))
	require.NoError(t, r.Establish(now))

	assert.False(t, r.ShouldSendHeartbeat(now.Add(5*time.Second)))
	assert.True(t, r.ShouldSendHeartbeat(now.Add(11*time.Second)))
}

func TestTimeoutAtThreeIntervals(t *testing.T) {
	now := time.Now()
	r := New(10 * time.Second)
	require.NoError(t, r.BeginHandshake(now))
	require.NoError(t, r.Establish(now))

	assert.False(t, r.TimedOut(now.Add(20*time.Second)))
	assert.True(t, r.TimedOut(now.Add(31*time.Second)))
}

func TestActivityResetsTimeout(t *testing.T) {
	now := time.Now()
	r := New(10 * time.Second)
	require.NoError(t, r.BeginHandshake(now))
	require.NoError(t, r.Establish(now))

	r.RecordActivity(now.Add(25 * time.Second))
	assert.False(t, r.TimedOut(now.Add(30*time.Second)))
}
