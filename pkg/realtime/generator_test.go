package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/helios/pkg/projects"
)

// sequence returns values in order, repeating the last one
func sequence(values ...float64) func() float64 {
	i := 0
	return func() float64 {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}

func fixedGenerator(values ...float64) *MetricsGenerator {
	g := NewMetricsGenerator(sequence(values...))
	g.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	return g
}

func TestMetricsGenerator_EnergyProduction(t *testing.T) {
	tests := []struct {
		name     string
		random   float64
		expected EnergyProduction
	}{
		{"midpoint", 0.5, EnergyProduction{Current: 100, Daily: 800, Weekly: 5600, Monthly: 24000}},
		{"low", 0, EnergyProduction{Current: 90, Daily: 720, Weekly: 5040, Monthly: 21600}},
		{"high", 0.75, EnergyProduction{Current: 105, Daily: 840, Weekly: 5880, Monthly: 25200}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fixedGenerator(tt.random).EnergyProduction()
			assert.InDelta(t, tt.expected.Current, got.Current, 1e-9)
			assert.InDelta(t, tt.expected.Daily, got.Daily, 1e-9)
			assert.InDelta(t, tt.expected.Weekly, got.Weekly, 1e-9)
			assert.InDelta(t, tt.expected.Monthly, got.Monthly, 1e-9)
		})
	}
}

func TestMetricsGenerator_Efficiency(t *testing.T) {
	assert.InDelta(t, 85.0, fixedGenerator(0.5).Efficiency(nil), 1e-9)
	assert.InDelta(t, 80.0, fixedGenerator(0).Efficiency(nil), 1e-9)
	assert.InDelta(t, 89.0, fixedGenerator(0.9).Efficiency(nil), 1e-9)

	g := NewMetricsGenerator(nil)
	for i := 0; i < 1000; i++ {
		e := g.Efficiency(nil)
		assert.True(t, e >= 80 && e <= 90, "efficiency %f out of range", e)
	}
}

func TestMetricsGenerator_ComponentHealth(t *testing.T) {
	t.Run("thresholds", func(t *testing.T) {
		h := fixedGenerator(0.1, 0.06, 0.02).ComponentHealth()
		assert.Equal(t, "offline", h.Inverters)
		assert.Equal(t, "online", h.Sensors)
		assert.Equal(t, "offline", h.Communication)
		assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), h.LastCheck)
	})

	t.Run("all online", func(t *testing.T) {
		h := fixedGenerator(0.99).ComponentHealth()
		assert.Equal(t, ComponentHealth{
			Inverters:     "online",
			Sensors:       "online",
			Communication: "online",
			LastCheck:     h.LastCheck,
		}, h)
	})
}

func TestMetricsGenerator_Financial(t *testing.T) {
	t.Run("default cost", func(t *testing.T) {
		fm := fixedGenerator(0.5).Financial(&projects.Project{ID: "p1"})

		assert.Equal(t, &FinancialMetrics{
			DailyRevenue:   96,
			MonthlyRevenue: 2880,
			YearlyRevenue:  34560,
			ROI:            691.2,
			PaybackPeriod:  2.9,
		}, fm)
	})

	t.Run("estimated cost", func(t *testing.T) {
		cost := 50000.0
		fm := fixedGenerator(0.5).Financial(&projects.Project{ID: "p1", EstimatedCost: &cost})

		assert.Equal(t, 1382.4, fm.ROI)
		assert.Equal(t, 1.4, fm.PaybackPeriod)
	})

	t.Run("zero cost uses default", func(t *testing.T) {
		cost := 0.0
		fm := fixedGenerator(0.5).Financial(&projects.Project{ID: "p1", EstimatedCost: &cost})
		assert.Equal(t, 691.2, fm.ROI)
	})
}

func TestMetricsGenerator_Project(t *testing.T) {
	g := fixedGenerator(0.5)
	m := g.Project(&projects.Project{ID: "p1", OrganizationID: "org-1"})

	assert.Equal(t, "p1", m.ProjectID)
	assert.InDelta(t, 100.0, m.EnergyProduction.Current, 1e-9)
	assert.InDelta(t, 85.0, m.Efficiency, 1e-9)
	assert.Equal(t, "online", m.SystemHealth.Inverters)
	assert.NotNil(t, m.FinancialMetrics)
	assert.Equal(t, g.now(), m.Timestamp)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 2.9, round(2.8935, 1))
	assert.Equal(t, 691.2, round(691.2000001, 2))
	assert.Equal(t, 1.01, round(1.005000001, 2))
}
