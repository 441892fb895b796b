package opt

import (
	"errors"
	"time"
)

var (
	// ErrEmptyInput is returned when there is nothing to route besides the depot.
	ErrEmptyInput = errors.New("opt: no destinations to route")
	// ErrNoSolution is returned when the engine cannot assign every destination.
	ErrNoSolution = errors.New("opt: no feasible solution")
	// ErrInvalidFleet is returned for a vehicle count below one.
	ErrInvalidFleet = errors.New("opt: vehicle count must be at least 1")
	// ErrInvalidLocation is returned for NaN, infinite or out of range coordinates.
	ErrInvalidLocation = errors.New("opt: invalid location")
)

// Location is a point in degrees.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// CostMatrix holds integer transit costs; index 0 is the depot.
type CostMatrix [][]int64

// Size is the number of locations, depot included.
func (m CostMatrix) Size() int { return len(m) }

// Route is a vehicle's visit sequence in index space. It always begins and
// ends with the depot index 0; a route of length 2 is an unused vehicle.
type Route []int

// Stops returns the destination indices of the route without depot framing.
func (r Route) Stops() []int {
	if len(r) <= 2 {
		return nil
	}
	return r[1 : len(r)-1]
}

// Idle reports whether the vehicle visits nothing.
func (r Route) Idle() bool { return len(r) <= 2 }

// Solution is one route per vehicle.
type Solution struct {
	Routes []Route
	// Cost is the objective value: edge costs plus dispatch cost per used vehicle.
	Cost int64
	// Distance is the edge cost alone.
	Distance int64
}

// VehiclesUsed counts routes with at least one stop.
func (s Solution) VehiclesUsed() int {
	n := 0
	for _, r := range s.Routes {
		if !r.Idle() {
			n++
		}
	}
	return n
}

// StopReason tells why the improvement phase ended.
type StopReason string

const (
	StopConverged      StopReason = "converged"
	StopTimeBudget     StopReason = "time_budget"
	StopIterationLimit StopReason = "iteration_limit"
	StopCancelled      StopReason = "cancelled"
)

// Metaheuristic names accepted by Options.
const (
	MetaGuided = "guided"
	MetaNone   = "none"
)

const (
	DefaultDispatchCost   int64 = 1000
	DefaultTimeBudget           = 30 * time.Second
	DefaultAlpha                = 0.2
	DefaultMaxStallRounds       = 300
)

// Options tune a solve. Zero values fall back to the defaults above.
type Options struct {
	Vehicles int
	// DispatchCost is charged once per used vehicle. Negative means none.
	DispatchCost int64
	// TimeBudget bounds construction and search together. It is a hard upper
	// bound.
	TimeBudget     time.Duration
	Workers        int
	Metaheuristic  string
	Alpha          float64
	MaxStallRounds int
	// IterationLimit caps applied moves per worker; 0 means unlimited.
	IterationLimit int
	// SpreadFleet requires min(destinations, vehicles) routes to be non-empty.
	SpreadFleet bool
	Seed        int64
	// Progress receives improvements of the shared incumbent on a separate
	// goroutine. Calls are serialized and report strictly falling costs.
	// Improvements made during a slow call are coalesced into the newest one,
	// and the final call may land after Solve returns.
	Progress func(Progress)
}

func (o Options) withDefaults() Options {
	if o.DispatchCost < 0 {
		o.DispatchCost = 0
	} else if o.DispatchCost == 0 {
		o.DispatchCost = DefaultDispatchCost
	}
	if o.TimeBudget <= 0 {
		o.TimeBudget = DefaultTimeBudget
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Metaheuristic == "" {
		o.Metaheuristic = MetaGuided
	}
	if o.Alpha <= 0 {
		o.Alpha = DefaultAlpha
	}
	if o.MaxStallRounds <= 0 {
		o.MaxStallRounds = DefaultMaxStallRounds
	}
	return o
}

// Progress is a snapshot of the incumbent.
type Progress struct {
	Worker    int
	Iteration int
	Cost      int64
	Distance  int64
	Elapsed   time.Duration
}

// SearchStats summarizes a solve.
type SearchStats struct {
	InitialCost   int64
	BestCost      int64
	BestDistance  int64
	Iterations    int
	PenaltyRounds int
	Improvements  int
	Workers       int
	Elapsed       time.Duration
	StopReason    StopReason
}
