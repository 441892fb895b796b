package opt

import (
	"fmt"
	"math"
)

// Scale converts planar degree distance into integer cost units.
const Scale = 100000

// Distance is the planar Euclidean distance between a and b, with latitude
// and longitude treated as Cartesian coordinates, scaled by Scale and
// truncated. No geodesic correction is applied.
func Distance(a, b Location) int64 {
	if a == b {
		return 0
	}
	dLat := a.Lat - b.Lat
	dLng := a.Lng - b.Lng
	return int64(math.Sqrt(dLat*dLat+dLng*dLng) * Scale)
}

// Validate rejects coordinates that cannot be routed.
func (l Location) Validate() error {
	switch {
	case math.IsNaN(l.Lat) || math.IsNaN(l.Lng), math.IsInf(l.Lat, 0) || math.IsInf(l.Lng, 0):
		return fmt.Errorf("%w: (%v, %v) is not finite", ErrInvalidLocation, l.Lat, l.Lng)
	case l.Lat < -90 || l.Lat > 90:
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidLocation, l.Lat)
	case l.Lng < -180 || l.Lng > 180:
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidLocation, l.Lng)
	}
	return nil
}
