package poll

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntilDone(t *testing.T) {
	calls := 0
	err := Until(context.Background(), clock.New(), time.Second, 0, func() (bool, error) {
		calls++
		return calls == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestUntilTimeout(t *testing.T) {
	mock := clock.NewMock()
	calls := 0
	err := Until(context.Background(), mock, 5*time.Second, 0, func() (bool, error) {
		calls++
		mock.Add(time.Second)
		return false, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSensorTimeout))
	assert.Equal(t, 5, calls)
}

func TestUntilPropagatesError(t *testing.T) {
	boom := errors.New("sensor unplugged")
	err := Until(context.Background(), clock.New(), 0, 0, func() (bool, error) {
		return false, boom
	})
	assert.Equal(t, boom, err)
}

func TestUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	err := Until(ctx, clock.New(), 0, 0, func() (bool, error) {
		cancel()
		return false, nil
	})
	assert.Equal(t, context.Canceled, err)
}
