package fragment

import (
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/cubestore/hypercube"
)

type visitState uint8

const (
	notVisited visitState = iota
	inFront
	selected
	ignored
)

// MakeSetCoveringRegion returns registered fragments whose union covers query,
// without fragments that add nothing to the cover. If the registered
// fragments do not cover query completely the result is a partial cover, and
// it is empty if no fragment intersects query. Callers compare the result
// against query to detect missing data.
func (s *Set) MakeSetCoveringRegion(query hypercube.Hypercube) []*Fragment {
	start := time.Now()
	defer func() {
		s.stats.SetsCreated++
		s.stats.SetCreationTime += time.Since(start)
	}()

	if s.mgr == nil || query.Dims() != s.mgr.Dims() || query.IsEmpty() {
		return nil
	}
	if f := s.LookupForShape(query); f != nil {
		return []*Fragment{f}
	}

	cubes := s.mgr.Cubes()
	states := make([]visitState, len(cubes))
	sim := make([]float64, len(cubes))
	seed, bestSim, bestOverlap := -1, -1.0, int64(-1)
	for i, c := range cubes {
		if !c.Intersects(query) {
			states[i] = ignored
			continue
		}
		sim[i] = query.ShapeSimilarity(c)
		if sim[i] < bestSim {
			continue
		}
		ov := query.Overlap(c)
		if sim[i] > bestSim || ov > bestOverlap {
			seed, bestSim, bestOverlap = i, sim[i], ov
		}
	}
	if seed < 0 {
		return nil
	}

	uncovered := hypercube.NewSet(query)
	chosen := roaring.New()
	fr := front{sim: sim}
	states[seed] = inFront
	fr.push(seed)
	for {
		for fr.len() > 0 {
			cur := fr.pop(cubes, uncovered)
			if !uncovered.Intersects(cubes[cur]) {
				states[cur] = ignored
				continue
			}
			states[cur] = selected
			chosen.Add(uint32(cur))
			uncovered.Subtract(cubes[cur])
			if uncovered.IsEmpty() {
				return s.collect(chosen)
			}
			for _, n := range s.mgr.Neighbours(cur) {
				if states[n] == notVisited {
					states[n] = inFront
					fr.push(n)
				}
			}
		}

		// The touching component is exhausted; restart from any fragment
		// that still contributes.
		next := -1
		for i, c := range cubes {
			if states[i] == notVisited && uncovered.Intersects(c) {
				next = i
				break
			}
		}
		if next < 0 {
			return s.collect(chosen)
		}
		states[next] = inFront
		fr.push(next)
	}
}

func (s *Set) collect(chosen *roaring.Bitmap) []*Fragment {
	out := make([]*Fragment, 0, chosen.GetCardinality())
	it := chosen.Iterator()
	for it.HasNext() {
		out = append(out, s.frags[it.Next()])
	}
	return out
}

// front holds candidate indices in ascending similarity; the best candidate
// is taken from the back.
type front struct {
	items []int
	sim   []float64
}

func (f *front) len() int { return len(f.items) }

func (f *front) push(i int) {
	pos := sort.Search(len(f.items), func(k int) bool {
		return f.sim[f.items[k]] > f.sim[i]
	})
	f.items = append(f.items, 0)
	copy(f.items[pos+1:], f.items[pos:])
	f.items[pos] = i
}

// pop removes the most similar candidate. Among equally similar candidates it
// takes the one covering most of the uncovered region.
func (f *front) pop(cubes []hypercube.Hypercube, uncovered *hypercube.Set) int {
	last := len(f.items) - 1
	top := f.sim[f.items[last]]
	best, bestOverlap := last, uncovered.Overlap(cubes[f.items[last]])
	for k := last - 1; k >= 0 && f.sim[f.items[k]] == top; k-- {
		if ov := uncovered.Overlap(cubes[f.items[k]]); ov > bestOverlap {
			best, bestOverlap = k, ov
		}
	}
	item := f.items[best]
	f.items = append(f.items[:best], f.items[best+1:]...)
	return item
}
