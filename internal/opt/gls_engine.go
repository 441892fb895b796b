package opt

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// searcher holds one worker's view of the search: its current plans and its
// own edge penalties. Nothing here is shared between workers.
type searcher struct {
	m        CostMatrix
	n        int
	dispatch int64
	floor    int
	plans    [][]int
	used     int
	pen      []int32
	lambda   float64

	bestCost int64
	improved bool
}

func newSearcher(m CostMatrix, plans [][]int, dispatch int64, floor int) *searcher {
	s := &searcher{
		m:        m,
		n:        len(m),
		dispatch: dispatch,
		floor:    floor,
		plans:    plans,
		pen:      make([]int32, len(m)*len(m)),
	}
	for _, pl := range plans {
		if len(pl) > 0 {
			s.used++
		}
	}
	_, s.bestCost = evaluate(m, plans, dispatch)
	return s
}

// w is the augmented edge cost c(i,j) + lambda*p(i,j).
func (s *searcher) w(i, j int) float64 {
	if s.lambda == 0 {
		return float64(s.m[i][j])
	}
	return float64(s.m[i][j]) + s.lambda*float64(s.pen[i*s.n+j])
}

// incumbent is the best solution across all workers. It only moves on a
// strict improvement of the objective.
type incumbent struct {
	mu           sync.Mutex
	plans        [][]int
	dist, cost   int64
	improvements int
	start        time.Time
	feed         *progressFeed
}

func (inc *incumbent) offer(worker, iteration int, plans [][]int, dist, cost int64) bool {
	inc.mu.Lock()
	defer inc.mu.Unlock()
	if cost >= inc.cost {
		return false
	}
	inc.plans = clonePlans(plans)
	inc.dist, inc.cost = dist, cost
	inc.improvements++
	inc.feed.push(Progress{Worker: worker, Iteration: iteration, Cost: cost, Distance: dist, Elapsed: time.Since(inc.start)})
	return true
}

// progressFeed hands incumbent improvements to the Progress callback on its
// own goroutine, so workers never wait on it. Improvements made while a call
// is running collapse into the newest one.
type progressFeed struct {
	fn      func(Progress)
	mu      sync.Mutex
	pending *Progress
	wake    chan struct{}
	done    chan struct{}
}

func startProgress(fn func(Progress)) *progressFeed {
	if fn == nil {
		return nil
	}
	f := &progressFeed{fn: fn, wake: make(chan struct{}, 1), done: make(chan struct{})}
	go f.loop()
	return f
}

func (f *progressFeed) push(p Progress) {
	if f == nil {
		return
	}
	f.mu.Lock()
	f.pending = &p
	f.mu.Unlock()
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

func (f *progressFeed) take() *Progress {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.pending
	f.pending = nil
	return p
}

func (f *progressFeed) loop() {
	for {
		select {
		case <-f.wake:
			if p := f.take(); p != nil {
				f.fn(*p)
			}
		case <-f.done:
			if p := f.take(); p != nil {
				f.fn(*p)
			}
			return
		}
	}
}

// stop ends the feed after the last pending improvement is delivered. It does
// not wait for that delivery.
func (f *progressFeed) stop() {
	if f != nil {
		close(f.done)
	}
}

type workerResult struct {
	iterations int
	rounds     int
	reason     StopReason
}

// Solve builds a cheapest-insertion solution and improves it with guided
// local search until it converges, the time budget runs out, the iteration
// limit is hit or ctx is cancelled. The best solution seen is always
// returned; running out of time is reported in SearchStats, not as an error.
// The budget and ctx also bound construction: when either fires first, the
// rest of the destinations are appended greedily and no search runs.
//
// With Workers > 1 each extra worker starts from a random perturbation of the
// constructed solution and keeps its own penalties. Workers share only the
// incumbent.
func Solve(ctx context.Context, m CostMatrix, opts Options) (Solution, SearchStats, error) {
	start := time.Now()
	opts = opts.withDefaults()
	if err := checkInput(m, opts); err != nil {
		return Solution{}, SearchStats{}, err
	}
	floor := fleetFloor(m, opts)
	deadline := start.Add(opts.TimeBudget)
	seedPlans, reason, err := cheapestInsertion(ctx, deadline, m, opts.Vehicles, opts.DispatchCost, floor)
	if err != nil {
		return Solution{}, SearchStats{}, err
	}
	mustCover(len(m), seedPlans)
	dist, cost := evaluate(m, seedPlans, opts.DispatchCost)
	if reason != "" {
		best := newSolution(m, seedPlans, opts.DispatchCost)
		return best, SearchStats{
			InitialCost:  cost,
			BestCost:     best.Cost,
			BestDistance: best.Distance,
			Workers:      opts.Workers,
			Elapsed:      time.Since(start),
			StopReason:   reason,
		}, nil
	}
	feed := startProgress(opts.Progress)
	defer feed.stop()
	inc := &incumbent{plans: clonePlans(seedPlans), dist: dist, cost: cost, start: start, feed: feed}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	results := make([]workerResult, opts.Workers)
	var wg sync.WaitGroup
	for w := 0; w < opts.Workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			plans := clonePlans(seedPlans)
			if w > 0 {
				rng := rand.New(rand.NewSource(seed + int64(w)))
				perturb(plans, floor, rng)
			}
			s := newSearcher(m, plans, opts.DispatchCost, floor)
			results[w] = s.run(ctx, deadline, opts, inc, w)
		}(w)
	}
	wg.Wait()

	inc.mu.Lock()
	plans := clonePlans(inc.plans)
	improvements := inc.improvements
	inc.mu.Unlock()
	mustCover(len(m), plans)
	best := newSolution(m, plans, opts.DispatchCost)

	stats := SearchStats{
		InitialCost:  cost,
		BestCost:     best.Cost,
		BestDistance: best.Distance,
		Improvements: improvements,
		Workers:      opts.Workers,
		Elapsed:      time.Since(start),
		StopReason:   StopConverged,
	}
	for _, r := range results {
		stats.Iterations += r.iterations
		stats.PenaltyRounds += r.rounds
		if reasonRank(r.reason) > reasonRank(stats.StopReason) {
			stats.StopReason = r.reason
		}
	}
	return best, stats, nil
}

func reasonRank(r StopReason) int {
	switch r {
	case StopCancelled:
		return 3
	case StopTimeBudget:
		return 2
	case StopIterationLimit:
		return 1
	}
	return 0
}

// run descends to a local optimum on the true cost, then alternates edge
// penalization and descent on the augmented cost. Lambda is fixed from the
// first local optimum.
func (s *searcher) run(ctx context.Context, deadline time.Time, opts Options, inc *incumbent, worker int) workerResult {
	var res workerResult
	stopped := func() bool {
		select {
		case <-ctx.Done():
			res.reason = StopCancelled
			return true
		default:
		}
		if !time.Now().Before(deadline) {
			res.reason = StopTimeBudget
			return true
		}
		if opts.IterationLimit > 0 && res.iterations >= opts.IterationLimit {
			res.reason = StopIterationLimit
			return true
		}
		return false
	}
	descend := func() bool {
		for !stopped() {
			mv := s.bestMove()
			if mv.kind == moveNone {
				return true
			}
			s.apply(mv)
			res.iterations++
			dist, cost := evaluate(s.m, s.plans, s.dispatch)
			if cost < s.bestCost {
				s.bestCost = cost
				s.improved = true
			}
			inc.offer(worker, res.iterations, s.plans, dist, cost)
		}
		return false
	}

	dist, cost := evaluate(s.m, s.plans, s.dispatch)
	inc.offer(worker, 0, s.plans, dist, cost)
	if !descend() {
		return res
	}
	res.reason = StopConverged
	if opts.Metaheuristic == MetaNone {
		return res
	}
	dist, _ = evaluate(s.m, s.plans, s.dispatch)
	edges := s.edgeCount()
	if dist == 0 || edges == 0 {
		return res
	}
	s.lambda = opts.Alpha * float64(dist) / float64(edges)

	stall := 0
	for stall < opts.MaxStallRounds {
		if !s.penalize() {
			break
		}
		res.rounds++
		s.improved = false
		if !descend() {
			return res
		}
		if s.improved {
			stall = 0
		} else {
			stall++
		}
	}
	res.reason = StopConverged
	return res
}

func (s *searcher) edgeCount() int {
	n := 0
	for _, pl := range s.plans {
		if len(pl) > 0 {
			n += len(pl) + 1
		}
	}
	return n
}

// penalize raises the penalty of every edge in the current solution whose
// utility c/(1+p) is maximal. It reports false when no edge has positive
// utility, which leaves nothing to guide the search.
func (s *searcher) penalize() bool {
	type edge struct{ i, j int }
	var top []edge
	var best float64
	for _, pl := range s.plans {
		if len(pl) == 0 {
			continue
		}
		prev := 0
		for k := 0; k <= len(pl); k++ {
			next := at(pl, k+1)
			i, j := min(prev, next), max(prev, next)
			u := float64(s.m[i][j]) / float64(1+s.pen[i*s.n+j])
			switch {
			case u > best:
				best = u
				top = append(top[:0], edge{i, j})
			case u == best && u > 0:
				top = append(top, edge{i, j})
			}
			prev = next
		}
	}
	if best <= 0 {
		return false
	}
	seen := make(map[edge]bool, len(top))
	for _, e := range top {
		if seen[e] {
			continue
		}
		seen[e] = true
		s.pen[e.i*s.n+e.j]++
		s.pen[e.j*s.n+e.i]++
	}
	return true
}

// perturb applies a few random relocations, keeping at least floor routes in use.
func perturb(plans [][]int, floor int, rng *rand.Rand) {
	total := 0
	for _, pl := range plans {
		total += len(pl)
	}
	if total == 0 {
		return
	}
	moves := 1 + rng.Intn(max(total/2, 1))
	for k := 0; k < moves; k++ {
		a := rng.Intn(len(plans))
		if len(plans[a]) == 0 {
			continue
		}
		used := 0
		for _, pl := range plans {
			if len(pl) > 0 {
				used++
			}
		}
		b := rng.Intn(len(plans))
		if len(plans[a]) == 1 && len(plans[b]) > 0 && used-1 < floor {
			continue
		}
		if a == b && len(plans[a]) == 1 {
			continue
		}
		i := rng.Intn(len(plans[a]))
		x := plans[a][i]
		plans[a] = removeAt(plans[a], i)
		plans[b] = insertAt(plans[b], rng.Intn(len(plans[b])+1), x)
	}
}
