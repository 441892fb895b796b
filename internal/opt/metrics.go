package opt

import "math"

// MetricParams convert cost units into distance and time. They are
// operational assumptions, not physical constants.
type MetricParams struct {
	// DistanceDivisor turns summed edge costs into kilometres.
	DistanceDivisor float64 `json:"distanceDivisor" yaml:"distance_divisor"`
	// SpeedKmPerMin is the assumed average travel speed.
	SpeedKmPerMin float64 `json:"speedKmPerMin" yaml:"speed_km_per_min"`
	// ServiceMinutes is spent at every stop. Negative means none.
	ServiceMinutes float64 `json:"serviceMinutes" yaml:"service_minutes"`
}

// DefaultMetricParams: cost/1000 km, 0.667 km/min (about 40 km/h), 60 minutes per stop.
func DefaultMetricParams() MetricParams {
	return MetricParams{DistanceDivisor: 1000, SpeedKmPerMin: 0.667, ServiceMinutes: 60}
}

func (p MetricParams) withDefaults() MetricParams {
	d := DefaultMetricParams()
	if p.DistanceDivisor <= 0 {
		p.DistanceDivisor = d.DistanceDivisor
	}
	if p.SpeedKmPerMin <= 0 {
		p.SpeedKmPerMin = d.SpeedKmPerMin
	}
	if p.ServiceMinutes < 0 {
		p.ServiceMinutes = 0
	} else if p.ServiceMinutes == 0 {
		p.ServiceMinutes = d.ServiceMinutes
	}
	return p
}

// Metrics describe a solution in human units.
type Metrics struct {
	TotalDistanceKm    float64 `json:"totalDistanceKm"`
	StopCount          int     `json:"stopCount"`
	TravelTimeMinutes  float64 `json:"travelTimeMinutes"`
	ServiceTimeMinutes float64 `json:"serviceTimeMinutes"`
	TotalTimeMinutes   float64 `json:"totalTimeMinutes"`
}

// Aggregate sums traversed edge costs over every route of sol. Dispatch cost
// is not part of the distance.
func Aggregate(sol Solution, m CostMatrix, p MetricParams) Metrics {
	var edges int64
	stops := 0
	for _, r := range sol.Routes {
		edges += m.RouteDistance(r)
		stops += len(r.Stops())
	}
	return newMetrics(edges, stops, p)
}

// RouteMetrics is Aggregate for a single route.
func RouteMetrics(r Route, m CostMatrix, p MetricParams) Metrics {
	return newMetrics(m.RouteDistance(r), len(r.Stops()), p)
}

func newMetrics(edges int64, stops int, p MetricParams) Metrics {
	p = p.withDefaults()
	km := float64(edges) / p.DistanceDivisor
	travel := round2(km / p.SpeedKmPerMin)
	service := float64(stops) * p.ServiceMinutes
	return Metrics{
		TotalDistanceKm:    km,
		StopCount:          stops,
		TravelTimeMinutes:  travel,
		ServiceTimeMinutes: service,
		TotalTimeMinutes:   travel + service,
	}
}

func round2(x float64) float64 { return math.Round(x*100) / 100 }
