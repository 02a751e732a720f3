package field

import "fmt"

// A Region is a half-open box [Start, End) in index space.
type Region struct {
	Start [Rank]int
	End   [Rank]int
}

// Shape returns the extent of the region along every axis.
func (r Region) Shape() Shape {
	var s Shape
	for i := range s {
		s[i] = r.End[i] - r.Start[i]
	}

	return s
}

// Size returns the number of elements in the region.
func (r Region) Size() int {
	return r.Shape().Size()
}

// Within tells if the region lies inside a domain of the given shape.
func (r Region) Within(domain Shape) bool {
	for i := 0; i < Rank; i++ {
		if r.Start[i] < 0 || r.End[i] > domain[i] || r.Start[i] >= r.End[i] {
			return false
		}
	}

	return true
}

func (r Region) String() string {
	return fmt.Sprintf("%v-%v", r.Start, r.End)
}

// forEachRun visits the contiguous runs of a region inside a row-major array
// of the given domain shape. For every run, fn receives the linear offset of
// the run in the domain, the offset in the region-local array and the run
// length.
func forEachRun(domain Shape, r Region, fn func(domainOff, localOff, n int)) {
	local := r.Shape()
	runLen := local[Rank-1]
	rows := local.Size() / runLen

	var coord [Rank]int
	for row := 0; row < rows; row++ {
		rem := row
		for i := Rank - 2; i >= 0; i-- {
			coord[i] = r.Start[i] + rem%local[i]
			rem /= local[i]
		}

		coord[Rank-1] = r.Start[Rank-1]
		fn(domain.Index(coord), row*runLen, runLen)
	}
}

// CopyRegion copies the region r of src, a row-major array of shape domain,
// into dst, a region-local array.
func CopyRegion(dst, src []complex128, domain Shape, r Region) {
	forEachRun(domain, r, func(domainOff, localOff, n int) {
		copy(dst[localOff:localOff+n], src[domainOff:domainOff+n])
	})
}

// PasteRegion writes the region-local array src into the region r of dst.
func PasteRegion(dst, src []complex128, domain Shape, r Region) {
	forEachRun(domain, r, func(domainOff, localOff, n int) {
		copy(dst[domainOff:domainOff+n], src[localOff:localOff+n])
	})
}
