package planner

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelterroute/internal/config"
	"shelterroute/internal/events"
	"shelterroute/internal/model"
	"shelterroute/internal/opt"
	"shelterroute/internal/store"
)

func newTestPlanner(t *testing.T) (*Planner, *store.Memory, *events.Broker) {
	t.Helper()
	log, _ := test.NewNullLogger()
	st := store.NewMemory()
	b := events.NewBroker()
	def := config.Default().Solver
	def.TimeBudget = 2 * time.Second
	return New(st, b, def, log), st, b
}

func boolPtr(b bool) *bool { return &b }

var squareRequest = model.SolveRequest{
	Origin: &model.GeoPoint{Lat: 0, Lng: 0},
	Destinations: []model.Destination{
		{Name: "a", Location: model.GeoPoint{Lat: 0, Lng: 1}},
		{Name: "b", Location: model.GeoPoint{Lat: 1, Lng: 0}},
		{Name: "c", Location: model.GeoPoint{Lat: 1, Lng: 1}},
	},
	Vehicles: 3,
}

func TestSolveSquareUsesOneVehicle(t *testing.T) {
	p, _, _ := newTestPlanner(t)
	resp, err := p.Solve(context.Background(), "t1", squareRequest)
	require.NoError(t, err)

	_, err = uuid.Parse(resp.SolveID)
	require.NoError(t, err)
	assert.Equal(t, model.GeoPoint{Lat: 0, Lng: 0}, resp.Origin)
	require.Len(t, resp.Routes, 3)
	for _, r := range resp.Routes {
		assert.Equal(t, resp.Origin, r[0])
		assert.Equal(t, resp.Origin, r[len(r)-1])
	}
	assert.Equal(t, 1, resp.Metrics.VehiclesUsed)
	assert.Equal(t, 3, resp.Metrics.StopCount)
	assert.InDelta(t, 400.0, resp.Metrics.TotalDistanceKm, 1e-9)
	assert.InDelta(t, 599.7, resp.Metrics.TravelTimeMinutes, 1e-9)
	assert.Equal(t, 180.0, resp.Metrics.ServiceTimeMinutes)
	assert.InDelta(t, 779.7, resp.Metrics.TotalTimeMinutes, 1e-9)
	assert.Equal(t, string(opt.StopConverged), resp.Stats.StopReason)

	require.Len(t, resp.Vehicles, 3)
	var km float64
	for _, v := range resp.Vehicles {
		km += v.DistanceKm
		assert.Len(t, v.Stops, v.StopCount)
	}
	assert.InDelta(t, resp.Metrics.TotalDistanceKm, km, 1e-9)
}

func TestSolveSpreadFleetOmitIdle(t *testing.T) {
	p, _, _ := newTestPlanner(t)
	req := squareRequest
	req.Vehicles = 5
	req.SpreadFleet = boolPtr(true)
	req.OmitIdle = boolPtr(true)

	resp, err := p.Solve(context.Background(), "t1", req)
	require.NoError(t, err)
	require.Len(t, resp.Routes, 3)
	require.Len(t, resp.Vehicles, 3)
	for i, v := range resp.Vehicles {
		assert.Equal(t, 1, v.StopCount)
		assert.Len(t, resp.Routes[i], 3)
	}
	assert.Equal(t, 3, resp.Metrics.VehiclesUsed)
}

func TestSolveEmptyInput(t *testing.T) {
	p, _, b := newTestPlanner(t)
	id := uuid.NewString()
	ch := b.Subscribe(id)

	_, err := p.Solve(context.Background(), "t1", model.SolveRequest{SolveID: id, Vehicles: 2})
	require.ErrorIs(t, err, opt.ErrEmptyInput)

	evt := <-ch
	assert.Equal(t, events.SolveFailed, evt.Type)
	assert.True(t, evt.Final())

	recent := p.Stats().Recent("t1", 0)
	require.Len(t, recent, 1)
	assert.Equal(t, "empty", recent[0].Status)
	assert.Equal(t, id, recent[0].SolveID)
}

func TestSolveRejectsTooManyVehicles(t *testing.T) {
	p, st, _ := newTestPlanner(t)
	req := squareRequest
	req.Vehicles = 26
	_, err := p.Solve(context.Background(), "t1", req)
	require.ErrorIs(t, err, ErrTooManyVehicles)

	limit := 2
	require.NoError(t, st.SaveSolverSettings(context.Background(), "t2", model.SolverSettings{MaxVehicles: &limit}))
	req.Vehicles = 3
	_, err = p.Solve(context.Background(), "t2", req)
	require.ErrorIs(t, err, ErrTooManyVehicles)
	_, err = p.Solve(context.Background(), "t1", req)
	require.NoError(t, err)
}

func TestSolveResolvesShelterNames(t *testing.T) {
	p, st, _ := newTestPlanner(t)
	_, _, err := st.CreateShelters(context.Background(), "t1", []model.ShelterIn{
		{Name: "Kita Hall", District: "Kita", Location: model.GeoPoint{Lat: 33.87, Lng: 132.75}},
		{Name: "Kita Gym", District: "Kita", Location: model.GeoPoint{Lat: 33.871, Lng: 132.751}},
		{Name: "Kita Gym", District: "Minami", Location: model.GeoPoint{Lat: 33.83, Lng: 132.77}},
	})
	require.NoError(t, err)

	resp, err := p.Solve(context.Background(), "t1", model.SolveRequest{
		ShelterNames: []string{"Kita Hall", "Kita Gym"},
		District:     "Kita",
		Vehicles:     1,
	})
	require.NoError(t, err)
	assert.Equal(t, model.GeoPoint{Lat: 33.85, Lng: 132.75}, resp.Origin)
	require.Len(t, resp.Vehicles, 1)
	names := []string{}
	for _, s := range resp.Vehicles[0].Stops {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"Kita Hall", "Kita Gym"}, names)

	_, err = p.Solve(context.Background(), "t1", model.SolveRequest{ShelterNames: []string{"Kita Gym"}, Vehicles: 1})
	require.ErrorIs(t, err, store.ErrAmbiguous)
	_, err = p.Solve(context.Background(), "t1", model.SolveRequest{ShelterNames: []string{"Nowhere"}, Vehicles: 1})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestSolvePublishesLifecycle(t *testing.T) {
	p, _, b := newTestPlanner(t)
	req := squareRequest
	req.SolveID = uuid.NewString()
	ch := b.Subscribe(req.SolveID)
	defer b.Unsubscribe(req.SolveID, ch)

	_, err := p.Solve(context.Background(), "t1", req)
	require.NoError(t, err)

	var got []string
	for len(ch) > 0 {
		got = append(got, (<-ch).Type)
	}
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, events.SolveStarted, got[0])
	assert.Equal(t, events.SolveCompleted, got[len(got)-1])
	for _, typ := range got[1 : len(got)-1] {
		assert.Equal(t, events.SolveImproved, typ)
	}
}

func TestProgressDropsImprovementsAfterStop(t *testing.T) {
	p, _, b := newTestPlanner(t)
	id := uuid.NewString()
	ch := b.Subscribe(id)
	defer b.Unsubscribe(id, ch)

	publish, stop := p.progress(id, 0)
	publish(opt.Progress{Cost: 10, Distance: 5})
	require.Len(t, ch, 1)
	assert.Equal(t, events.SolveImproved, (<-ch).Type)

	stop()
	publish(opt.Progress{Cost: 9, Distance: 4})
	assert.Empty(t, ch)
}

func TestSolveCancelledReturnsRoutes(t *testing.T) {
	p, _, _ := newTestPlanner(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp, err := p.Solve(ctx, "t1", squareRequest)
	require.NoError(t, err)
	assert.Equal(t, string(opt.StopCancelled), resp.Stats.StopReason)
	assert.Equal(t, 3, resp.Metrics.StopCount)
}

func TestSettingsMergeTenantOverrides(t *testing.T) {
	p, st, _ := newTestPlanner(t)
	budget, meta, zero := 500, "none", int64(0)
	origin := model.GeoPoint{Lat: 35.68, Lng: 139.76}
	require.NoError(t, st.SaveSolverSettings(context.Background(), "t1", model.SolverSettings{
		TimeBudgetMs:  &budget,
		Metaheuristic: &meta,
		DispatchCost:  &zero,
		DefaultOrigin: &origin,
	}))

	set, err := p.Settings(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, set.TimeBudget)
	assert.Equal(t, "none", set.Metaheuristic)
	assert.Equal(t, opt.Location{Lat: 35.68, Lng: 139.76}, set.DefaultOrigin)
	assert.Equal(t, 25, set.MaxVehicles)

	o := set.options(model.SolveRequest{Vehicles: 2, TimeBudgetMs: 10000, Workers: 3})
	assert.Equal(t, int64(-1), o.DispatchCost)
	assert.Equal(t, 500*time.Millisecond, o.TimeBudget)
	assert.Equal(t, 3, o.Workers)

	def, err := p.Settings(context.Background(), "t2")
	require.NoError(t, err)
	assert.Equal(t, p.Defaults(), def)
	assert.Equal(t, int64(1000), def.options(model.SolveRequest{Vehicles: 1}).DispatchCost)
}

type notice struct {
	tenant, url, typ string
	data             any
}

type recordingNotifier struct{ got []notice }

func (r *recordingNotifier) Notify(tenant, url, eventType string, data any) error {
	r.got = append(r.got, notice{tenant, url, eventType, data})
	return nil
}

func TestSolveNotifiesCallback(t *testing.T) {
	p, _, _ := newTestPlanner(t)
	n := &recordingNotifier{}
	p.Notifier = n

	_, err := p.Solve(context.Background(), "t1", squareRequest)
	require.NoError(t, err)
	assert.Empty(t, n.got)

	req := squareRequest
	req.CallbackURL = "https://dispatch.example/hook"
	resp, err := p.Solve(context.Background(), "t1", req)
	require.NoError(t, err)
	require.Len(t, n.got, 1)
	assert.Equal(t, events.SolveCompleted, n.got[0].typ)
	assert.Equal(t, "t1", n.got[0].tenant)
	assert.Equal(t, req.CallbackURL, n.got[0].url)
	assert.Equal(t, resp, n.got[0].data)

	_, err = p.Solve(context.Background(), "t1", model.SolveRequest{Vehicles: 1, CallbackURL: req.CallbackURL})
	require.Error(t, err)
	require.Len(t, n.got, 2)
	assert.Equal(t, events.SolveFailed, n.got[1].typ)
}

func TestStatsLogKeepsNewestFirst(t *testing.T) {
	l := NewStatsLog(3)
	for i := 0; i < 5; i++ {
		l.Record("t1", model.SolveRecord{Iterations: i})
	}
	recent := l.Recent("t1", 0)
	require.Len(t, recent, 3)
	assert.Equal(t, []int{4, 3, 2}, []int{recent[0].Iterations, recent[1].Iterations, recent[2].Iterations})
	assert.Len(t, l.Recent("t1", 2), 2)
	assert.Empty(t, l.Recent("t2", 10))
}
