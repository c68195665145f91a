// Package dashboard serves the farm metrics shown on the guarded dashboard.
package dashboard

import (
	"math"
	"math/rand/v2"
	"time"
)

// SoilHealth describes the monitored field's soil.
type SoilHealth struct {
	Moisture    float64 `json:"moisture"`
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	PH          float64 `json:"pH"`
}

// SolarStatus describes the panel array.
type SolarStatus struct {
	CurrentOutput   float64 `json:"currentOutput"`
	DailyProduction float64 `json:"dailyProduction"`
	Efficiency      float64 `json:"efficiency"`
	BatteryLevel    float64 `json:"batteryLevel"`
}

// CropHealth describes the current crop.
type CropHealth struct {
	DiseaseRisk float64 `json:"diseaseRisk"`
	GrowthStage string  `json:"growthStage"`
	LastScan    string  `json:"lastScan"`
	HealthScore float64 `json:"healthScore"`
}

// Alert is a notice shown in the dashboard alert list.
type Alert struct {
	Kind     string `json:"kind"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Age      string `json:"age"`
}

// Metrics is one dashboard frame.
type Metrics struct {
	Soil      SoilHealth  `json:"soil"`
	Solar     SolarStatus `json:"solar"`
	Crop      CropHealth  `json:"cropHealth"`
	Alerts    []Alert     `json:"alerts"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// Snapshot returns the baseline metrics. The values are static until a sensor
// feed exists.
func Snapshot(now time.Time) Metrics {
	return Metrics{
		Soil:  SoilHealth{Moisture: 65, Temperature: 28, Humidity: 72, PH: 6.8},
		Solar: SolarStatus{CurrentOutput: 450, DailyProduction: 3.2, Efficiency: 82, BatteryLevel: 75},
		Crop:  CropHealth{DiseaseRisk: 35, GrowthStage: "Vegetative", LastScan: "3 hours ago", HealthScore: 78},
		Alerts: []Alert{
			{Kind: "irrigation", Severity: "critical", Message: "Low soil moisture detected in field A", Age: "2 hours ago"},
			{Kind: "weather", Severity: "info", Message: "Rain expected in 6 hours", Age: "4 hours ago"},
		},
		UpdatedAt: now.UTC(),
	}
}

// Jitter perturbs the live readings of m by up to ±2% so the feed looks alive.
// Percentages stay within [0, 100].
func Jitter(m Metrics, rng *rand.Rand) Metrics {
	wobble := func(v float64) float64 {
		return round1(v * (1 + (rng.Float64()*4-2)/100))
	}
	pct := func(v float64) float64 {
		return math.Min(100, math.Max(0, wobble(v)))
	}

	m.Soil.Moisture = pct(m.Soil.Moisture)
	m.Soil.Temperature = wobble(m.Soil.Temperature)
	m.Soil.Humidity = pct(m.Soil.Humidity)
	m.Solar.CurrentOutput = wobble(m.Solar.CurrentOutput)
	m.Solar.Efficiency = pct(m.Solar.Efficiency)
	m.Solar.BatteryLevel = pct(m.Solar.BatteryLevel)
	m.Alerts = append([]Alert(nil), m.Alerts...)
	return m
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
