package opt

// Extract translates each route of sol from index space into coordinates.
// Every path starts and ends at locs[0]. An unused vehicle yields
// [depot, depot] unless omitIdle is set, in which case it is left out.
func Extract(sol Solution, locs []Location, omitIdle bool) [][]Location {
	out := make([][]Location, 0, len(sol.Routes))
	for _, r := range sol.Routes {
		if omitIdle && r.Idle() {
			continue
		}
		out = append(out, r.Path(locs))
	}
	return out
}

// Path returns the coordinates of r, depot framing included.
func (r Route) Path(locs []Location) []Location {
	if len(r) < 2 || r[0] != 0 || r[len(r)-1] != 0 {
		panic("opt: route is not framed by the depot")
	}
	path := make([]Location, len(r))
	for i, idx := range r {
		path[i] = locs[idx]
	}
	return path
}
