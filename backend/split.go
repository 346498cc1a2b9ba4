package backend

import (
	"math"
	"sort"

	"github.com/hupe1980/cubestore/dataspace"
	"github.com/hupe1980/cubestore/hypercube"
)

// Recommend cuts the region of space into fragments of at most
// c.MaxFragmentSize bytes using c.FragmentationMethod. The cubes are disjoint
// and tile the region.
func Recommend(space *dataspace.Dataspace, c Config) []hypercube.Hypercube {
	c = c.WithDefaults()
	if c.FragmentationMethod == Equalized {
		return splitEqualized(space, c.MaxFragmentSize)
	}
	return splitContiguous(space, c.MaxFragmentSize)
}

// splitEqualized produces fragments about as wide as high, long and deep.
func splitEqualized(space *dataspace.Dataspace, maxSize int64) []hypercube.Hypercube {
	ext := space.Extents()
	size := space.Size()
	offset := space.Offset()

	splitDims := 0
	for _, s := range size {
		if s > 1 {
			splitDims++
		}
	}
	if splitDims == 0 || maxSize <= 0 || space.ByteSize() <= maxSize {
		return []hypercube.Hypercube{ext}
	}

	edge := math.Floor(math.Pow(float64(maxSize)/float64(space.Type().Size()), 1/float64(splitDims)))
	edge = max(edge, 1)
	factors := make([]int64, len(size))
	for i, s := range size {
		factors[i] = max(int64(math.Ceil(float64(s)/edge)), 1)
	}

	var out []hypercube.Hypercube
	coords := make([]int64, len(size))
	ranges := make([]hypercube.Range, len(size))
	for {
		for i := range ranges {
			ranges[i] = hypercube.Range{
				Start: offset[i] + coords[i]*size[i]/factors[i],
				End:   offset[i] + (coords[i]+1)*size[i]/factors[i],
			}
		}
		out = append(out, hypercube.New(ranges...))

		d := len(coords) - 1
		for ; d >= 0; d-- {
			coords[d]++
			if coords[d] < factors[d] {
				break
			}
			coords[d] = 0
		}
		if d < 0 {
			return out
		}
	}
}

// splitContiguous keeps the dimensions with the smallest strides whole and
// slices the first dimension that would overflow maxSize. Dimensions with
// larger strides are cut into single elements.
func splitContiguous(space *dataspace.Dataspace, maxSize int64) []hypercube.Hypercube {
	ext := space.Extents()
	if maxSize <= 0 || space.ByteSize() <= maxSize || space.ElementCount() == 0 {
		return []hypercube.Hypercube{ext}
	}

	dims := space.Dims()
	size := space.Size()
	offset := space.Offset()
	stride := space.EffectiveStride()

	order := make([]int, dims)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return absInt64(stride[order[a]]) < absInt64(stride[order[b]])
	})

	split, fragSize := 0, space.Type().Size()
	for ; split < dims-1; split++ {
		if fragSize*size[order[split]] >= maxSize {
			break
		}
		fragSize *= size[order[split]]
	}

	thickness := max(maxSize/fragSize, 1)
	splitDim := order[split]
	slices := (size[splitDim] + thickness - 1) / thickness

	ranges := ext.Ranges()
	coords := make([]int64, dims)
	var out []hypercube.Hypercube
	for coords[split] < slices {
		ranges[splitDim] = hypercube.Range{
			Start: offset[splitDim] + coords[split]*size[splitDim]/slices,
			End:   offset[splitDim] + (coords[split]+1)*size[splitDim]/slices,
		}
		for i := split + 1; i < dims; i++ {
			d := order[i]
			ranges[d] = hypercube.Range{Start: offset[d] + coords[i], End: offset[d] + coords[i] + 1}
		}
		out = append(out, hypercube.New(ranges...))

		i := dims - 1
		for ; i > split; i-- {
			coords[i]++
			if coords[i] < size[order[i]] {
				break
			}
			coords[i] = 0
		}
		if i == split {
			coords[split]++
		}
	}
	return out
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
