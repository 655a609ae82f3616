package track

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// Simplify drops path points with Douglas-Peucker at the given tolerance in
// degrees. Kept points are the original observations, in order. A tolerance
// of zero or less returns a copy of path.
func Simplify(path []Observation, tolerance float64) []Observation {
	if tolerance <= 0 || len(path) < 3 {
		out := make([]Observation, len(path))
		copy(out, path)
		return out
	}

	ls := make(orb.LineString, len(path))
	for i, o := range path {
		ls[i] = o.Coordinate
	}
	kept, ok := simplify.DouglasPeucker(tolerance).Simplify(ls.Clone()).(orb.LineString)
	if !ok {
		out := make([]Observation, len(path))
		copy(out, path)
		return out
	}

	out := make([]Observation, 0, len(kept))
	j := 0
	for _, o := range path {
		if j < len(kept) && o.Coordinate.Equal(kept[j]) {
			out = append(out, o)
			j++
		}
	}
	return out
}
