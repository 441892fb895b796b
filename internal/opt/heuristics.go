package opt

// Neighbourhood moves for the improvement phase. Every delta is measured on
// the augmented cost w, which equals the true cost while lambda is zero.
// Slot and cut positions index the depot-framed route: position 0 is the
// leaving depot and position len(pl)+1 the returning one.

type moveKind int

const (
	moveNone moveKind = iota
	moveRelocate
	moveExchange
	moveTwoOpt
	moveTwoOptStar
)

type move struct {
	kind  moveKind
	a, b  int // routes
	i, j  int // positions
	delta float64
}

const improveEps = 1e-6

// at returns the node at framed position k of pl.
func at(pl []int, k int) int {
	if k <= 0 || k > len(pl) {
		return 0
	}
	return pl[k-1]
}

// dispatchDelta is the change in dispatch cost when route lengths go from
// (la, lb) to (na, nb), and whether the fleet floor still holds.
func (s *searcher) dispatchDelta(la, lb, na, nb int) (float64, bool) {
	change := 0
	if la > 0 && na == 0 {
		change--
	} else if la == 0 && na > 0 {
		change++
	}
	if lb > 0 && nb == 0 {
		change--
	} else if lb == 0 && nb > 0 {
		change++
	}
	if s.used+change < s.floor {
		return 0, false
	}
	return float64(change) * float64(s.dispatch), true
}

// bestMove scans every neighbourhood and returns the most improving move. Scan
// order is fixed, so equal deltas resolve the same way every time.
func (s *searcher) bestMove() move {
	best := move{delta: -improveEps}
	s.scanRelocate(&best)
	s.scanExchange(&best)
	s.scanTwoOpt(&best)
	s.scanTwoOptStar(&best)
	return best
}

func (s *searcher) consider(best *move, mv move) {
	if mv.delta < best.delta {
		*best = mv
	}
}

// scanRelocate moves one stop to another slot of the same or another route.
func (s *searcher) scanRelocate(best *move) {
	for a, pa := range s.plans {
		for i := range pa {
			x := pa[i]
			prev, next := at(pa, i), at(pa, i+2)
			gain := s.w(prev, x) + s.w(x, next) - s.w(prev, next)
			for b, pb := range s.plans {
				if a == b {
					s.relocateIntra(best, a, i, gain)
					continue
				}
				extra, ok := s.dispatchDelta(len(pa), len(pb), len(pa)-1, len(pb)+1)
				if !ok {
					continue
				}
				for j := 0; j <= len(pb); j++ {
					u, v := neighbours(pb, j)
					ins := s.w(u, x) + s.w(x, v) - s.w(u, v)
					s.consider(best, move{kind: moveRelocate, a: a, b: b, i: i, j: j, delta: ins - gain + extra})
				}
			}
		}
	}
}

// relocateIntra evaluates reinserting stop i of route a at every slot j of
// the route with i removed.
func (s *searcher) relocateIntra(best *move, a, i int, gain float64) {
	pa := s.plans[a]
	if len(pa) < 2 {
		return
	}
	// rest(k) is framed position k of pa with stop i removed.
	rest := func(k int) int {
		if k <= 0 || k > len(pa)-1 {
			return 0
		}
		if k-1 < i {
			return pa[k-1]
		}
		return pa[k]
	}
	x := pa[i]
	for j := 0; j < len(pa); j++ {
		if j == i {
			continue
		}
		u, v := rest(j), rest(j+1)
		ins := s.w(u, x) + s.w(x, v) - s.w(u, v)
		s.consider(best, move{kind: moveRelocate, a: a, b: a, i: i, j: j, delta: ins - gain})
	}
}

// scanExchange swaps two stops, within a route or across two.
func (s *searcher) scanExchange(best *move) {
	for a, pa := range s.plans {
		for i := range pa {
			x := pa[i]
			px, nx := at(pa, i), at(pa, i+2)
			for j := i + 1; j < len(pa); j++ {
				y := pa[j]
				py, ny := at(pa, j), at(pa, j+2)
				var delta float64
				if j == i+1 {
					delta = s.w(px, y) + s.w(y, x) + s.w(x, ny) - s.w(px, x) - s.w(x, y) - s.w(y, ny)
				} else {
					delta = s.w(px, y) + s.w(y, nx) - s.w(px, x) - s.w(x, nx) +
						s.w(py, x) + s.w(x, ny) - s.w(py, y) - s.w(y, ny)
				}
				s.consider(best, move{kind: moveExchange, a: a, b: a, i: i, j: j, delta: delta})
			}
			for b := a + 1; b < len(s.plans); b++ {
				pb := s.plans[b]
				for j, y := range pb {
					py, ny := at(pb, j), at(pb, j+2)
					delta := s.w(px, y) + s.w(y, nx) - s.w(px, x) - s.w(x, nx) +
						s.w(py, x) + s.w(x, ny) - s.w(py, y) - s.w(y, ny)
					s.consider(best, move{kind: moveExchange, a: a, b: b, i: i, j: j, delta: delta})
				}
			}
		}
	}
}

// scanTwoOpt reverses the framed segment i+1..k of a route, replacing edges
// (i,i+1) and (k,k+1) with (i,k) and (i+1,k+1).
func (s *searcher) scanTwoOpt(best *move) {
	for a, pa := range s.plans {
		last := len(pa) + 1
		for i := 0; i <= last-3; i++ {
			for k := i + 2; k <= last-1; k++ {
				ni, ni1, nk, nk1 := at(pa, i), at(pa, i+1), at(pa, k), at(pa, k+1)
				delta := s.w(ni, nk) + s.w(ni1, nk1) - s.w(ni, ni1) - s.w(nk, nk1)
				s.consider(best, move{kind: moveTwoOpt, a: a, b: a, i: i, j: k, delta: delta})
			}
		}
	}
}

// scanTwoOptStar swaps the tails of two routes after framed positions i and j.
func (s *searcher) scanTwoOptStar(best *move) {
	for a, pa := range s.plans {
		for b := a + 1; b < len(s.plans); b++ {
			pb := s.plans[b]
			for i := 0; i <= len(pa); i++ {
				for j := 0; j <= len(pb); j++ {
					if (i == 0 && j == 0) || (i == len(pa) && j == len(pb)) {
						continue
					}
					na, nb := i+len(pb)-j, j+len(pa)-i
					extra, ok := s.dispatchDelta(len(pa), len(pb), na, nb)
					if !ok {
						continue
					}
					ai, ai1 := at(pa, i), at(pa, i+1)
					bj, bj1 := at(pb, j), at(pb, j+1)
					delta := s.w(ai, bj1) + s.w(bj, ai1) - s.w(ai, ai1) - s.w(bj, bj1) + extra
					s.consider(best, move{kind: moveTwoOptStar, a: a, b: b, i: i, j: j, delta: delta})
				}
			}
		}
	}
}

// apply performs mv on the searcher's plans.
func (s *searcher) apply(mv move) {
	switch mv.kind {
	case moveRelocate:
		x := s.plans[mv.a][mv.i]
		s.plans[mv.a] = removeAt(s.plans[mv.a], mv.i)
		s.plans[mv.b] = insertAt(s.plans[mv.b], mv.j, x)
	case moveExchange:
		pa, pb := s.plans[mv.a], s.plans[mv.b]
		pa[mv.i], pb[mv.j] = pb[mv.j], pa[mv.i]
	case moveTwoOpt:
		s.plans[mv.a] = twoOptSwap(s.plans[mv.a], mv.i, mv.j-1)
	case moveTwoOptStar:
		pa, pb := s.plans[mv.a], s.plans[mv.b]
		na := append(append([]int(nil), pa[:mv.i]...), pb[mv.j:]...)
		nb := append(append([]int(nil), pb[:mv.j]...), pa[mv.i:]...)
		s.plans[mv.a], s.plans[mv.b] = na, nb
	}
	s.used = 0
	for _, pl := range s.plans {
		if len(pl) > 0 {
			s.used++
		}
	}
}

// twoOptSwap reverses ord[i..k] in place.
func twoOptSwap(ord []int, i, k int) []int {
	for i < k {
		ord[i], ord[k] = ord[k], ord[i]
		i++
		k--
	}
	return ord
}
