package opt

import (
	"context"
	"fmt"
	"time"
)

// Construct runs the cheapest-insertion phase alone. The result depends only
// on the matrix and options, never on timing or seeds.
func Construct(m CostMatrix, opts Options) (Solution, error) {
	opts = opts.withDefaults()
	if err := checkInput(m, opts); err != nil {
		return Solution{}, err
	}
	plans, _, err := cheapestInsertion(context.Background(), time.Time{}, m, opts.Vehicles, opts.DispatchCost, fleetFloor(m, opts))
	if err != nil {
		return Solution{}, err
	}
	return newSolution(m, plans, opts.DispatchCost), nil
}

func checkInput(m CostMatrix, opts Options) error {
	if err := m.validate(); err != nil {
		return err
	}
	if opts.Vehicles < 1 {
		return fmt.Errorf("%w: got %d", ErrInvalidFleet, opts.Vehicles)
	}
	return nil
}

// fleetFloor is the minimum number of non-empty routes a solution must keep.
func fleetFloor(m CostMatrix, opts Options) int {
	if !opts.SpreadFleet {
		return 0
	}
	return min(len(m)-1, opts.Vehicles)
}

// cheapestInsertion starts from empty routes and repeatedly inserts the
// unassigned destination with the smallest marginal cost at its best
// position. Ties go to the lowest destination, then the lowest vehicle, then
// the earliest position. While fewer than floor routes are in use, a stop may
// join an already used route only if enough destinations remain to open the
// missing ones.
//
// ctx and deadline are checked before every insertion; a zero deadline never
// expires. Once either fires, the destinations still unassigned are placed by
// appendRemaining and the returned reason says why. An empty reason means the
// construction ran to completion.
func cheapestInsertion(ctx context.Context, deadline time.Time, m CostMatrix, vehicles int, dispatch int64, floor int) ([][]int, StopReason, error) {
	plans := make([][]int, vehicles)
	assigned := make([]bool, len(m))
	used := 0
	for remaining := len(m) - 1; remaining > 0; remaining-- {
		if reason := interrupted(ctx, deadline); reason != "" {
			appendRemaining(m, plans, assigned, used, dispatch, floor)
			return plans, reason, nil
		}
		need := max(floor-used, 0)
		bestDest, bestVeh, bestPos := -1, -1, -1
		var bestDelta int64
		for d := 1; d < len(m); d++ {
			if assigned[d] {
				continue
			}
			for v, pl := range plans {
				if len(pl) > 0 && remaining-1 < need {
					continue
				}
				for p := 0; p <= len(pl); p++ {
					u, w := neighbours(pl, p)
					delta := m[u][d] + m[d][w] - m[u][w]
					if len(pl) == 0 {
						delta += dispatch
					}
					if bestDest < 0 || delta < bestDelta {
						bestDest, bestVeh, bestPos, bestDelta = d, v, p, delta
					}
				}
			}
		}
		if bestDest < 0 {
			return nil, "", ErrNoSolution
		}
		if len(plans[bestVeh]) == 0 {
			used++
		}
		plans[bestVeh] = insertAt(plans[bestVeh], bestPos, bestDest)
		assigned[bestDest] = true
	}
	return plans, "", nil
}

func interrupted(ctx context.Context, deadline time.Time) StopReason {
	if ctx.Err() != nil {
		return StopCancelled
	}
	if !deadline.IsZero() && !time.Now().Before(deadline) {
		return StopTimeBudget
	}
	return ""
}

// appendRemaining finishes an interrupted construction in O(n*vehicles). Each
// unassigned destination, in index order, opens the first empty route while
// fewer than floor routes are used, and otherwise goes to the end of the route
// where appending it costs least.
func appendRemaining(m CostMatrix, plans [][]int, assigned []bool, used int, dispatch int64, floor int) {
	for d := 1; d < len(m); d++ {
		if assigned[d] {
			continue
		}
		best := -1
		var bestDelta int64
		for v, pl := range plans {
			if used < floor && len(pl) > 0 {
				continue
			}
			last := 0
			if len(pl) > 0 {
				last = pl[len(pl)-1]
			}
			delta := m[last][d] + m[d][0] - m[last][0]
			if len(pl) == 0 {
				delta += dispatch
			}
			if best < 0 || delta < bestDelta {
				best, bestDelta = v, delta
			}
		}
		if len(plans[best]) == 0 {
			used++
		}
		plans[best] = append(plans[best], d)
		assigned[d] = true
	}
}

// neighbours returns the nodes on either side of insertion slot p of a stop
// list, with the depot closing both ends.
func neighbours(pl []int, p int) (int, int) {
	u, w := 0, 0
	if p > 0 {
		u = pl[p-1]
	}
	if p < len(pl) {
		w = pl[p]
	}
	return u, w
}

func insertAt(pl []int, pos, node int) []int {
	pl = append(pl, 0)
	copy(pl[pos+1:], pl[pos:])
	pl[pos] = node
	return pl
}

func removeAt(pl []int, pos int) []int {
	return append(pl[:pos], pl[pos+1:]...)
}

func clonePlans(plans [][]int) [][]int {
	out := make([][]int, len(plans))
	for i, pl := range plans {
		out[i] = append([]int(nil), pl...)
	}
	return out
}

// evaluate returns the edge distance and the objective of plans.
func evaluate(m CostMatrix, plans [][]int, dispatch int64) (dist, cost int64) {
	for _, pl := range plans {
		if len(pl) == 0 {
			continue
		}
		prev := 0
		for _, x := range pl {
			dist += m[prev][x]
			prev = x
		}
		dist += m[prev][0]
		cost += dispatch
	}
	return dist, dist + cost
}

func newSolution(m CostMatrix, plans [][]int, dispatch int64) Solution {
	routes := make([]Route, len(plans))
	for i, pl := range plans {
		r := make(Route, 0, len(pl)+2)
		r = append(r, 0)
		r = append(r, pl...)
		routes[i] = append(r, 0)
	}
	dist, cost := evaluate(m, plans, dispatch)
	return Solution{Routes: routes, Cost: cost, Distance: dist}
}

func plansOf(s Solution) [][]int {
	plans := make([][]int, len(s.Routes))
	for i, r := range s.Routes {
		plans[i] = append([]int(nil), r.Stops()...)
	}
	return plans
}

// mustCover panics when plans do not visit every destination exactly once.
func mustCover(n int, plans [][]int) {
	seen := make([]bool, n)
	count := 0
	for _, pl := range plans {
		for _, x := range pl {
			if x <= 0 || x >= n || seen[x] {
				panic(fmt.Sprintf("opt: destination %d visited twice or out of range", x))
			}
			seen[x] = true
			count++
		}
	}
	if count != n-1 {
		panic(fmt.Sprintf("opt: %d of %d destinations routed", count, n-1))
	}
}
