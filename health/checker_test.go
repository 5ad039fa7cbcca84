package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunHealthyCheck(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("ok", func(ctx context.Context) error { return nil })

	result, err := c.Run(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, StatusHealthy, result.Status)
}

func TestRunUnhealthyCheck(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("broken", func(ctx context.Context) error { return errors.New("boom") })

	result, err := c.Run(context.Background(), "broken")
	require.NoError(t, err)
	assert.Equal(t, StatusUnhealthy, result.Status)
	assert.Equal(t, "boom", result.Message)
}

func TestRunUnknownCheck(t *testing.T) {
	c := NewChecker(time.Second)
	_, err := c.Run(context.Background(), "missing")
	require.Error(t, err)
}

func TestOverallStatusUnhealthyDominates(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("ok", func(ctx context.Context) error { return nil })
	c.Register("broken", func(ctx context.Context) error { return errors.New("boom") })

	assert.Equal(t, StatusUnhealthy, c.OverallStatus(context.Background()))
}

func TestOverallStatusHealthyWithNoChecks(t *testing.T) {
	c := NewChecker(time.Second)
	assert.Equal(t, StatusHealthy, c.OverallStatus(context.Background()))
}

func TestRunCachesResult(t *testing.T) {
	c := NewChecker(time.Second)
	calls := 0
	c.Register("counted", func(ctx context.Context) error {
		calls++
		return nil
	})

	_, err := c.Run(context.Background(), "counted")
	require.NoError(t, err)
	_, err = c.Run(context.Background(), "counted")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

type fakeSessionSource struct {
	count  int
	oldest time.Time
	has    bool
}

func (f fakeSessionSource) ActiveSessions() int               { return f.count }
func (f fakeSessionSource) OldestActivity() (time.Time, bool) { return f.oldest, f.has }

func TestSessionActivityCheckPassesWhenFresh(t *testing.T) {
	check := SessionActivityCheck(fakeSessionSource{oldest: time.Now(), has: true}, time.Minute)
	assert.NoError(t, check(context.Background()))
}

func TestSessionActivityCheckFailsWhenStale(t *testing.T) {
	check := SessionActivityCheck(fakeSessionSource{oldest: time.Now().Add(-time.Hour), has: true}, time.Minute)
	assert.Error(t, check(context.Background()))
}

func TestSessionActivityCheckSkipsWhenNoSessions(t *testing.T) {
	check := SessionActivityCheck(fakeSessionSource{has: false}, time.Minute)
	assert.NoError(t, check(context.Background()))
}
