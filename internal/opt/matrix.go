package opt

import "fmt"

// BuildCostMatrix evaluates Distance for every ordered pair of locs. locs[0]
// is the depot; at least one destination must follow it.
func BuildCostMatrix(locs []Location) (CostMatrix, error) {
	if len(locs) < 2 {
		return nil, ErrEmptyInput
	}
	for i, l := range locs {
		if err := l.Validate(); err != nil {
			return nil, fmt.Errorf("location %d: %w", i, err)
		}
	}
	n := len(locs)
	m := make(CostMatrix, n)
	cells := make([]int64, n*n)
	for i := range m {
		m[i] = cells[i*n : (i+1)*n : (i+1)*n]
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := Distance(locs[i], locs[j])
			m[i][j] = d
			m[j][i] = d
		}
	}
	return m, nil
}

// validate checks the matrix is square with room for at least one destination.
func (m CostMatrix) validate() error {
	if len(m) < 2 {
		return ErrEmptyInput
	}
	for i, row := range m {
		if len(row) != len(m) {
			return fmt.Errorf("opt: cost matrix row %d has %d columns, want %d", i, len(row), len(m))
		}
		for j, c := range row {
			if c < 0 {
				return fmt.Errorf("opt: negative cost at (%d,%d)", i, j)
			}
		}
	}
	return nil
}

// RouteDistance sums the edge costs of r.
func (m CostMatrix) RouteDistance(r Route) int64 {
	var total int64
	for i := 0; i+1 < len(r); i++ {
		total += m[r[i]][r[i+1]]
	}
	return total
}
