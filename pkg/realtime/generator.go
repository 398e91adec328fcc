package realtime

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/platinummonkey/helios/pkg/projects"
)

const (
	baseProduction     = 100.0
	productionHours    = 8.0
	baseEfficiency     = 85.0
	pricePerKWh        = 0.12
	defaultProjectCost = 100000.0
	investmentYears    = 20.0
)

// EnergyProduction is simulated output in kWh
type EnergyProduction struct {
	Current float64 `json:"current"`
	Daily   float64 `json:"daily"`
	Weekly  float64 `json:"weekly"`
	Monthly float64 `json:"monthly"`
}

// ComponentHealth reports per-component status of a project installation
type ComponentHealth struct {
	Inverters     string    `json:"inverters"`
	Sensors       string    `json:"sensors"`
	Communication string    `json:"communication"`
	LastCheck     time.Time `json:"lastCheck"`
}

// FinancialMetrics are revenue projections derived from production
type FinancialMetrics struct {
	DailyRevenue   float64 `json:"dailyRevenue"`
	MonthlyRevenue float64 `json:"monthlyRevenue"`
	YearlyRevenue  float64 `json:"yearlyRevenue"`
	ROI            float64 `json:"roi"`
	PaybackPeriod  float64 `json:"paybackPeriod"`
}

// ProjectMetrics is the body of real-time-metrics and organization-metrics-update
type ProjectMetrics struct {
	ProjectID        string            `json:"projectId"`
	EnergyProduction EnergyProduction  `json:"energyProduction"`
	Efficiency       float64           `json:"efficiency"`
	SystemHealth     ComponentHealth   `json:"systemHealth"`
	FinancialMetrics *FinancialMetrics `json:"financialMetrics"`
	Timestamp        time.Time         `json:"timestamp"`
}

// MetricsGenerator simulates project telemetry from a random source in [0,1)
type MetricsGenerator struct {
	mu   sync.Mutex
	rand func() float64
	now  func() time.Time
}

// NewMetricsGenerator creates a generator; nil random uses a time-seeded source
func NewMetricsGenerator(random func() float64) *MetricsGenerator {
	if random == nil {
		random = rand.New(rand.NewSource(time.Now().UnixNano())).Float64
	}
	return &MetricsGenerator{rand: random, now: time.Now}
}

func (g *MetricsGenerator) next() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rand()
}

// EnergyProduction returns base production varied by up to ±10
func (g *MetricsGenerator) EnergyProduction() EnergyProduction {
	current := baseProduction + g.next()*20 - 10
	return EnergyProduction{
		Current: math.Max(0, current),
		Daily:   math.Max(0, current*productionHours),
		Weekly:  math.Max(0, current*productionHours*7),
		Monthly: math.Max(0, current*productionHours*30),
	}
}

// Efficiency returns a percentage around 85 clamped to [0,100]
func (g *MetricsGenerator) Efficiency(*projects.Project) float64 {
	return math.Max(0, math.Min(100, baseEfficiency+g.next()*10-5))
}

// ComponentHealth samples installation component status
func (g *MetricsGenerator) ComponentHealth() ComponentHealth {
	return ComponentHealth{
		Inverters:     onlineIf(g.next() > 0.1),
		Sensors:       onlineIf(g.next() > 0.05),
		Communication: onlineIf(g.next() > 0.02),
		LastCheck:     g.now(),
	}
}

func onlineIf(ok bool) string {
	if ok {
		return "online"
	}
	return "offline"
}

// Financial projects revenue from a fresh daily production sample
func (g *MetricsGenerator) Financial(project *projects.Project) *FinancialMetrics {
	cost := defaultProjectCost
	if project.EstimatedCost != nil && *project.EstimatedCost > 0 {
		cost = *project.EstimatedCost
	}

	daily := g.EnergyProduction().Daily * pricePerKWh
	monthly := daily * 30
	yearly := monthly * 12

	fm := &FinancialMetrics{
		DailyRevenue:   round(daily, 2),
		MonthlyRevenue: round(monthly, 2),
		YearlyRevenue:  round(yearly, 2),
		ROI:            round(yearly*investmentYears/cost*100, 2),
	}
	if yearly > 0 {
		fm.PaybackPeriod = round(cost/yearly, 1)
	}
	return fm
}

// Project assembles the full metrics frame for project
func (g *MetricsGenerator) Project(project *projects.Project) ProjectMetrics {
	return ProjectMetrics{
		ProjectID:        project.ID,
		EnergyProduction: g.EnergyProduction(),
		Efficiency:       g.Efficiency(project),
		SystemHealth:     g.ComponentHealth(),
		FinancialMetrics: g.Financial(project),
		Timestamp:        g.now(),
	}
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
