package robot

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/config"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/localizer"
	"github.com/tigerbot-team/tigerbot/go-navigator/pkg/navigation"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Navigation.ControlInterval = 0
	cfg.Navigation.SettleDelay = 0
	cfg.Localization.Scan.SampleInterval = 0
	return cfg
}

func TestSimLocalizeThenTravel(t *testing.T) {
	r, err := NewSim(testConfig(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	r.Start(context.Background())

	res, err := r.Localizer.Localize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, localizer.FullCircle, res.Strategy)

	require.NotNil(t, res.Analysis)
	assert.Greater(t, r.World.Steps(), len(res.Samples))

	start := r.Odometer.Pose()
	require.NoError(t, r.Navigator.TravelTo(context.Background(), start.X+10, start.Y))
	end := r.Odometer.Pose()
	assert.InDelta(t, start.X+10, end.X, 0.6)
	assert.InDelta(t, start.Y, end.Y, 0.6)

	require.NoError(t, r.Shutdown())
}

func TestSimAppliesTunables(t *testing.T) {
	cfg := testConfig()
	cfg.Tunables = map[string]float64{navigation.TunableFastSpeed: 150}
	r, err := NewSim(cfg, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	tn, ok := r.Tunables.Lookup(navigation.TunableFastSpeed)
	require.True(t, ok)
	assert.Equal(t, 150.0, tn.Get())
}

func TestSimRejectsUnknownTunable(t *testing.T) {
	cfg := testConfig()
	cfg.Tunables = map[string]float64{"nav.warp_factor": 9}
	_, err := NewSim(cfg, zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}

func TestSimRejectsBadConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Sim.Step = 0
	_, err := NewSim(cfg, zaptest.NewLogger(t).Sugar())
	assert.Error(t, err)
}
