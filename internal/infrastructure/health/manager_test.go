package health

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestManager_EmptyIsHealthy(t *testing.T) {
	m := NewManager(nil)
	assert.True(t, m.IsHealthy())
	assert.Empty(t, m.GetStatus())
	assert.Empty(t, m.Unhealthy())
}

func TestManager_Aggregation(t *testing.T) {
	m := NewManager(nil)

	m.Register("ingest", func() error { return nil })
	assert.True(t, m.IsHealthy())

	m.Register("dispatch", func() error { return errors.New("queue saturated") })
	assert.False(t, m.IsHealthy())

	status := m.GetStatus()
	assert.Equal(t, "Healthy", status["ingest"])
	assert.Equal(t, "Unhealthy: queue saturated", status["dispatch"])
	assert.Equal(t, []string{"dispatch"}, m.Unhealthy())
}

func TestManager_ReRegisterReplacesCheck(t *testing.T) {
	m := NewManager(nil)

	m.Register("ingest", func() error { return errors.New("stale") })
	assert.False(t, m.IsHealthy())

	m.Register("ingest", func() error { return nil })
	assert.True(t, m.IsHealthy())
}

func TestManager_ChecksEvaluatedLive(t *testing.T) {
	m := NewManager(nil)

	healthy := true
	m.Register("ingest", func() error {
		if healthy {
			return nil
		}
		return errors.New("no trades for 2m")
	})

	assert.True(t, m.IsHealthy())
	healthy = false
	assert.False(t, m.IsHealthy())
	assert.Equal(t, []string{"ingest"}, m.Unhealthy())
}
