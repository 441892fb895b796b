// Package planner turns a solve request into routes: it resolves named
// shelters, applies tenant solver settings, runs the optimizer and publishes
// progress events while it runs.
package planner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"shelterroute/internal/config"
	"shelterroute/internal/events"
	"shelterroute/internal/metrics"
	"shelterroute/internal/model"
	"shelterroute/internal/opt"
	"shelterroute/internal/store"
)

// ErrTooManyVehicles is returned when a request asks for more vehicles than
// the tenant allows.
var ErrTooManyVehicles = errors.New("planner: too many vehicles")

// DefaultImproveInterval is the minimum gap between solve.improved events.
const DefaultImproveInterval = 200 * time.Millisecond

// Notifier delivers solve outcomes to a request's callback URL.
type Notifier interface {
	Notify(tenant, url, eventType string, data any) error
}

type Planner struct {
	store    store.Store
	broker   events.EventBroker
	defaults Settings
	log      logrus.FieldLogger
	stats    *StatsLog

	// ImproveInterval throttles improvement events; zero publishes every one.
	ImproveInterval time.Duration
	// Notifier is optional. Without one callback URLs are ignored.
	Notifier Notifier
}

func New(st store.Store, broker events.EventBroker, defaults config.Solver, log logrus.FieldLogger) *Planner {
	return &Planner{
		store:           st,
		broker:          broker,
		defaults:        settingsFromConfig(defaults),
		log:             log,
		stats:           NewStatsLog(DefaultStatsDepth),
		ImproveInterval: DefaultImproveInterval,
	}
}

// Stats is the recent-solve log.
func (p *Planner) Stats() *StatsLog { return p.stats }

// Defaults are the process settings before tenant overrides.
func (p *Planner) Defaults() Settings { return p.defaults }

// Settings returns the process defaults merged with the tenant's overrides.
func (p *Planner) Settings(ctx context.Context, tenant string) (Settings, error) {
	o, err := p.store.GetSolverSettings(ctx, tenant)
	if err != nil {
		return Settings{}, fmt.Errorf("load solver settings: %w", err)
	}
	return p.defaults.apply(o), nil
}

type destination struct {
	name string
	loc  opt.Location
}

func (p *Planner) destinations(ctx context.Context, tenant string, req model.SolveRequest) ([]destination, error) {
	out := make([]destination, 0, len(req.Destinations)+len(req.ShelterNames))
	for _, d := range req.Destinations {
		out = append(out, destination{name: d.Name, loc: opt.Location{Lat: d.Location.Lat, Lng: d.Location.Lng}})
	}
	if len(req.ShelterNames) == 0 {
		return out, nil
	}
	shelters, err := p.store.GetSheltersByName(ctx, tenant, req.District, req.ShelterNames)
	if err != nil {
		return nil, err
	}
	for _, s := range shelters {
		out = append(out, destination{name: s.Name, loc: opt.Location{Lat: s.Location.Lat, Lng: s.Location.Lng}})
	}
	return out, nil
}

// Solve runs one optimization. A cancelled ctx ends the search early and the
// best routes found so far are returned with stop reason "cancelled".
func (p *Planner) Solve(ctx context.Context, tenant string, req model.SolveRequest) (resp model.SolveResponse, err error) {
	set, err := p.Settings(ctx, tenant)
	if err != nil {
		return resp, err
	}
	if set.MaxVehicles > 0 && req.Vehicles > set.MaxVehicles {
		return resp, fmt.Errorf("%w: %d requested, limit %d", ErrTooManyVehicles, req.Vehicles, set.MaxVehicles)
	}
	solveID := req.SolveID
	if solveID == "" {
		solveID = uuid.NewString()
	}
	origin := set.DefaultOrigin
	if req.Origin != nil {
		origin = opt.Location{Lat: req.Origin.Lat, Lng: req.Origin.Lng}
	}

	log := p.log.WithFields(logrus.Fields{"tenant": tenant, "solve_id": solveID})
	rec := model.SolveRecord{SolveID: solveID, Vehicles: req.Vehicles, CreatedAt: time.Now().UTC()}
	start := time.Now()
	metrics.ActiveSolves.Inc()
	defer func() {
		metrics.ActiveSolves.Dec()
		rec.ElapsedMs = time.Since(start).Milliseconds()
		if err != nil {
			rec.Status, rec.Error = outcome(err), err.Error()
			metrics.Solves.WithLabelValues(rec.Status, "").Inc()
			data := map[string]any{"solveId": solveID, "error": err.Error()}
			p.broker.Publish(solveID, events.Event{Type: events.SolveFailed, Data: data})
			p.notify(log, tenant, req.CallbackURL, events.SolveFailed, data)
		}
		p.stats.Record(tenant, rec)
	}()
	defer timed(log, "solve", logrus.Fields{"vehicles": req.Vehicles})(&err)

	dests, err := p.destinations(ctx, tenant, req)
	if err != nil {
		return resp, err
	}
	rec.Destinations = len(dests)
	locs := make([]opt.Location, 0, len(dests)+1)
	locs = append(locs, origin)
	for _, d := range dests {
		locs = append(locs, d.loc)
	}
	m, err := opt.BuildCostMatrix(locs)
	if err != nil {
		return resp, err
	}

	p.broker.Publish(solveID, events.Event{Type: events.SolveStarted, Data: map[string]any{
		"solveId": solveID, "destinations": len(dests), "vehicles": req.Vehicles,
	}})
	opts := set.options(req)
	progress, stopProgress := p.progress(solveID, set.Metric.DistanceDivisor)
	opts.Progress = progress
	sol, st, err := opt.Solve(ctx, m, opts)
	stopProgress()
	if err != nil {
		return resp, err
	}

	resp = p.response(solveID, sol, st, m, locs, dests, set, req)
	rec.Status = "ok"
	rec.VehiclesUsed = resp.Metrics.VehiclesUsed
	rec.TotalDistanceKm = resp.Metrics.TotalDistanceKm
	rec.BestCost = st.BestCost
	rec.Iterations = st.Iterations
	rec.StopReason = string(st.StopReason)

	metrics.Solves.WithLabelValues("ok", string(st.StopReason)).Inc()
	metrics.SolveDuration.Observe(st.Elapsed.Seconds())
	metrics.SolveDistance.Observe(resp.Metrics.TotalDistanceKm)
	if st.InitialCost > 0 {
		metrics.SolveImprovement.Observe(1 - float64(st.BestCost)/float64(st.InitialCost))
	}
	p.broker.Publish(solveID, events.Event{Type: events.SolveCompleted, Data: map[string]any{
		"solveId":      solveID,
		"metrics":      resp.Metrics,
		"stopReason":   resp.Stats.StopReason,
		"elapsedMs":    resp.Stats.ElapsedMs,
		"vehiclesUsed": resp.Metrics.VehiclesUsed,
	}})
	p.notify(log, tenant, req.CallbackURL, events.SolveCompleted, resp)
	return resp, nil
}

func (p *Planner) notify(log logrus.FieldLogger, tenant, url, eventType string, data any) {
	if url == "" || p.Notifier == nil {
		return
	}
	if err := p.Notifier.Notify(tenant, url, eventType, data); err != nil {
		log.WithError(err).WithField("event", eventType).Warn("callback not queued")
	}
}

// progress publishes solve.improved at most once per ImproveInterval. The
// optimizer may still deliver an improvement after Solve returns; the stop
// func drops everything from then on so no improvement follows the terminal
// event.
func (p *Planner) progress(solveID string, divisor float64) (func(opt.Progress), func()) {
	if divisor <= 0 {
		divisor = opt.DefaultMetricParams().DistanceDivisor
	}
	var (
		mu      sync.Mutex
		last    time.Time
		stopped bool
	)
	publish := func(pr opt.Progress) {
		mu.Lock()
		defer mu.Unlock()
		now := time.Now()
		if stopped || (!last.IsZero() && now.Sub(last) < p.ImproveInterval) {
			return
		}
		last = now
		p.broker.Publish(solveID, events.Event{Type: events.SolveImproved, Data: map[string]any{
			"solveId":    solveID,
			"worker":     pr.Worker,
			"iteration":  pr.Iteration,
			"cost":       pr.Cost,
			"distanceKm": float64(pr.Distance) / divisor,
			"elapsedMs":  pr.Elapsed.Milliseconds(),
		}})
	}
	stop := func() {
		mu.Lock()
		stopped = true
		mu.Unlock()
	}
	return publish, stop
}

func (p *Planner) response(solveID string, sol opt.Solution, st opt.SearchStats, m opt.CostMatrix, locs []opt.Location, dests []destination, set Settings, req model.SolveRequest) model.SolveResponse {
	omit := set.omitIdle(req)
	mp := set.metricParams()

	resp := model.SolveResponse{
		SolveID:  solveID,
		Origin:   geoPoint(locs[0]),
		Routes:   [][]model.GeoPoint{},
		Vehicles: []model.VehicleRoute{},
	}
	for _, path := range opt.Extract(sol, locs, omit) {
		pts := make([]model.GeoPoint, len(path))
		for i, l := range path {
			pts[i] = geoPoint(l)
		}
		resp.Routes = append(resp.Routes, pts)
	}
	for v, r := range sol.Routes {
		if omit && r.Idle() {
			continue
		}
		rm := opt.RouteMetrics(r, m, mp)
		vr := model.VehicleRoute{
			Vehicle:           v,
			Stops:             []model.Stop{},
			StopCount:         rm.StopCount,
			DistanceKm:        rm.TotalDistanceKm,
			TravelTimeMinutes: rm.TravelTimeMinutes,
			TotalTimeMinutes:  rm.TotalTimeMinutes,
		}
		for _, idx := range r.Stops() {
			d := dests[idx-1]
			vr.Stops = append(vr.Stops, model.Stop{Index: idx - 1, Name: d.name, Location: geoPoint(d.loc)})
		}
		for _, l := range r.Path(locs) {
			vr.Path = append(vr.Path, geoPoint(l))
		}
		resp.Vehicles = append(resp.Vehicles, vr)
	}

	agg := opt.Aggregate(sol, m, mp)
	resp.Metrics = model.Metrics{
		TotalDistanceKm:    agg.TotalDistanceKm,
		TotalTimeMinutes:   agg.TotalTimeMinutes,
		TravelTimeMinutes:  agg.TravelTimeMinutes,
		ServiceTimeMinutes: agg.ServiceTimeMinutes,
		StopCount:          agg.StopCount,
		VehiclesUsed:       sol.VehiclesUsed(),
	}
	resp.Stats = model.SearchStats{
		InitialCost:   st.InitialCost,
		BestCost:      st.BestCost,
		Iterations:    st.Iterations,
		PenaltyRounds: st.PenaltyRounds,
		Improvements:  st.Improvements,
		Workers:       st.Workers,
		ElapsedMs:     st.Elapsed.Milliseconds(),
		StopReason:    string(st.StopReason),
	}
	return resp
}

func geoPoint(l opt.Location) model.GeoPoint { return model.GeoPoint{Lat: l.Lat, Lng: l.Lng} }

// outcome labels a failed solve for metrics and the stats log.
func outcome(err error) string {
	switch {
	case errors.Is(err, opt.ErrEmptyInput):
		return "empty"
	case errors.Is(err, opt.ErrInvalidLocation), errors.Is(err, opt.ErrInvalidFleet),
		errors.Is(err, ErrTooManyVehicles), errors.Is(err, store.ErrNotFound), errors.Is(err, store.ErrAmbiguous):
		return "invalid"
	default:
		return "failed"
	}
}
