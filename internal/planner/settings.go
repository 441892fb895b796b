package planner

import (
	"time"

	"shelterroute/internal/config"
	"shelterroute/internal/model"
	"shelterroute/internal/opt"
)

// Settings are the solver tunables in effect for one tenant: process
// defaults with the tenant's stored overrides applied.
type Settings struct {
	TimeBudget     time.Duration
	Workers        int
	DispatchCost   int64
	Metaheuristic  string
	Alpha          float64
	MaxStallRounds int
	SpreadFleet    bool
	OmitIdle       bool
	MaxVehicles    int
	Metric         opt.MetricParams
	DefaultOrigin  opt.Location
}

func settingsFromConfig(c config.Solver) Settings {
	return Settings{
		TimeBudget:     c.TimeBudget,
		Workers:        c.Workers,
		DispatchCost:   c.DispatchCost,
		Metaheuristic:  c.Metaheuristic,
		Alpha:          c.Alpha,
		MaxStallRounds: c.MaxStallRounds,
		SpreadFleet:    c.SpreadFleet,
		OmitIdle:       c.OmitIdle,
		MaxVehicles:    c.MaxVehicles,
		Metric: opt.MetricParams{
			DistanceDivisor: c.DistanceDivisor,
			SpeedKmPerMin:   c.SpeedKmPerMin,
			ServiceMinutes:  c.ServiceMinutes,
		},
		DefaultOrigin: opt.Location{Lat: c.OriginLat, Lng: c.OriginLng},
	}
}

// apply overlays the non-nil fields of o.
func (s Settings) apply(o *model.SolverSettings) Settings {
	if o == nil {
		return s
	}
	if o.TimeBudgetMs != nil {
		s.TimeBudget = time.Duration(*o.TimeBudgetMs) * time.Millisecond
	}
	if o.Workers != nil {
		s.Workers = *o.Workers
	}
	if o.DispatchCost != nil {
		s.DispatchCost = *o.DispatchCost
	}
	if o.Metaheuristic != nil {
		s.Metaheuristic = *o.Metaheuristic
	}
	if o.Alpha != nil {
		s.Alpha = *o.Alpha
	}
	if o.MaxStallRounds != nil {
		s.MaxStallRounds = *o.MaxStallRounds
	}
	if o.SpreadFleet != nil {
		s.SpreadFleet = *o.SpreadFleet
	}
	if o.OmitIdle != nil {
		s.OmitIdle = *o.OmitIdle
	}
	if o.SpeedKmPerMin != nil {
		s.Metric.SpeedKmPerMin = *o.SpeedKmPerMin
	}
	if o.ServiceMinutes != nil {
		s.Metric.ServiceMinutes = *o.ServiceMinutes
	}
	if o.MaxVehicles != nil {
		s.MaxVehicles = *o.MaxVehicles
	}
	if o.DefaultOrigin != nil {
		s.DefaultOrigin = opt.Location{Lat: o.DefaultOrigin.Lat, Lng: o.DefaultOrigin.Lng}
	}
	return s
}

// options maps the settings and per-request fields onto solver options.
// Zero is a meaningful dispatch cost here, so it is passed as "none".
func (s Settings) options(req model.SolveRequest) opt.Options {
	o := opt.Options{
		Vehicles:       req.Vehicles,
		DispatchCost:   s.DispatchCost,
		TimeBudget:     s.TimeBudget,
		Workers:        s.Workers,
		Metaheuristic:  s.Metaheuristic,
		Alpha:          s.Alpha,
		MaxStallRounds: s.MaxStallRounds,
		SpreadFleet:    s.SpreadFleet,
		Seed:           req.Seed,
	}
	if o.DispatchCost == 0 {
		o.DispatchCost = -1
	}
	if req.TimeBudgetMs > 0 {
		o.TimeBudget = min(time.Duration(req.TimeBudgetMs)*time.Millisecond, s.TimeBudget)
	}
	if req.Workers > 0 {
		o.Workers = req.Workers
	}
	if req.Metaheuristic != "" {
		o.Metaheuristic = req.Metaheuristic
	}
	if req.SpreadFleet != nil {
		o.SpreadFleet = *req.SpreadFleet
	}
	return o
}

func (s Settings) omitIdle(req model.SolveRequest) bool {
	if req.OmitIdle != nil {
		return *req.OmitIdle
	}
	return s.OmitIdle
}

func (s Settings) metricParams() opt.MetricParams {
	p := s.Metric
	if p.ServiceMinutes == 0 {
		p.ServiceMinutes = -1
	}
	return p
}

// View renders the settings for the config endpoints.
func (s Settings) View() map[string]any {
	return map[string]any{
		"timeBudgetMs":    s.TimeBudget.Milliseconds(),
		"workers":         s.Workers,
		"dispatchCost":    s.DispatchCost,
		"metaheuristic":   s.Metaheuristic,
		"alpha":           s.Alpha,
		"maxStallRounds":  s.MaxStallRounds,
		"spreadFleet":     s.SpreadFleet,
		"omitIdle":        s.OmitIdle,
		"maxVehicles":     s.MaxVehicles,
		"speedKmPerMin":   s.Metric.SpeedKmPerMin,
		"serviceMinutes":  s.Metric.ServiceMinutes,
		"distanceDivisor": s.Metric.DistanceDivisor,
		"defaultOrigin":   map[string]float64{"lat": s.DefaultOrigin.Lat, "lng": s.DefaultOrigin.Lng},
	}
}
